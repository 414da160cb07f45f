package lifecycle

import (
	"errors"
	"sort"
	"strings"
	"time"

	"proposaldesk/api/internal/status"
)

var (
	ErrInvalidStatus        = errors.New("invalid status")
	ErrCommentsRequired     = errors.New("supervisor comments are required")
	ErrMissingStatus        = errors.New("missing status")
	ErrClientReviewPending  = errors.New("underwriter cannot act before client review")
	ErrInvalidOutcome       = errors.New("invalid outcome")
	ErrDeniedNeedsComment   = errors.New("comment required when policy denied")
	ErrMissingPolicyDetails = errors.New("missing required policy fields")
)

// Decision is a validated supervisor status write.
type Decision struct {
	Status   status.Status
	Comments string
}

// ApprovalDecision validates a supervisor status write. It accepts the
// legacy words approved, rejected, pending and NA as well as their current
// tokens. Approve and reject need comments; pending gets the default
// resubmission comment when none is given.
func ApprovalDecision(raw, comments string) (Decision, error) {
	canonical := status.Normalize(status.MigrateLegacy(raw)).Canonical
	if strings.TrimSpace(raw) == "" {
		return Decision{}, ErrInvalidStatus
	}
	comments = strings.TrimSpace(comments)
	switch canonical {
	case status.SupApproved, status.SupRejected:
		if comments == "" {
			return Decision{}, ErrCommentsRequired
		}
	case status.SupReview:
		if comments == "" {
			comments = DefaultResubmitComment
		}
	case status.Open:
	default:
		return Decision{}, ErrInvalidStatus
	}
	return Decision{Status: canonical, Comments: comments}, nil
}

// UnderwriterStatus maps an underwriter's requested status onto the stored
// token. Unrecognised values are stored as given.
func UnderwriterStatus(clientReviewed bool, raw string) (string, error) {
	if !clientReviewed {
		return "", ErrClientReviewPending
	}
	trimmed := strings.TrimSpace(raw)
	switch strings.ToLower(trimmed) {
	case "":
		return "", ErrMissingStatus
	case "approved", "uw_approved", "with_uw", "with uw", "withuw":
		return "With_UW", nil
	case "rejected", "uw_rejected":
		return "UW_Rejected", nil
	default:
		return trimmed, nil
	}
}

// ClientReviewed reads the client review flag as stored or posted.
func ClientReviewed(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case int:
		return v == 1
	case int64:
		return v == 1
	case float64:
		return v == 1
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "checked", "on":
			return true
		}
	}
	return false
}

// PolicyOutcome validates "Policy Created" or "Policy Denied" and returns
// the stored token. A denial needs a comment.
func PolicyOutcome(outcome, comment string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(outcome)) {
	case "policy created":
		return "Policy_Created", nil
	case "policy denied":
		if strings.TrimSpace(comment) == "" {
			return "", ErrDeniedNeedsComment
		}
		return "Policy_Denied", nil
	default:
		return "", ErrInvalidOutcome
	}
}

// RequirePolicyFields checks the fields an issued policy cannot be saved
// without: policy number, member number, member name and start date.
func RequirePolicyFields(policyNumber, memberNumber, memberName, startDate string) error {
	for _, value := range []string{policyNumber, memberNumber, memberName, startDate} {
		if strings.TrimSpace(value) == "" {
			return ErrMissingPolicyDetails
		}
	}
	return nil
}

// PolicyEndDate adds months (12 when not positive) to start, keeping the day
// of month unless the target month is shorter.
func PolicyEndDate(start time.Time, months int) time.Time {
	if months <= 0 {
		months = 12
	}
	y, m, d := start.Date()
	total := int(m) - 1 + months
	endYear := y + total/12
	endMonth := time.Month(total%12 + 1)
	lastDay := time.Date(endYear, endMonth+1, 0, 0, 0, 0, 0, start.Location()).Day()
	return time.Date(endYear, endMonth, min(d, lastDay), 0, 0, 0, 0, start.Location())
}

// Stamp sources, in tie-break order.
const (
	SourceSupervisor  = "supervisor"
	SourceUnderwriter = "underwriter"
	SourcePolicy      = "policy"
	SourceClose       = "close"
	SourceApplication = "application"
)

// Stamp is the last write of one stage.
type Stamp struct {
	Source   string
	Status   string
	Comments string
	By       string
	At       time.Time
}

// Rollup picks the stamp with the latest time; on equal times the later
// stamp in the slice wins. Stamps without a time are ignored.
func Rollup(stamps []Stamp) (Stamp, bool) {
	candidates := make([]Stamp, 0, len(stamps))
	for _, stamp := range stamps {
		if !stamp.At.IsZero() {
			candidates = append(candidates, stamp)
		}
	}
	if len(candidates) == 0 {
		return Stamp{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].At.Before(candidates[j].At)
	})
	return candidates[len(candidates)-1], true
}
