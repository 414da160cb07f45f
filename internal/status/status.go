// Package status maps stored status tokens to one canonical status and the
// label shown for it. Unknown tokens are never an error.
package status

import (
	"strings"
	"unicode"
)

// Status is a canonical status token.
type Status string

const (
	Open          Status = "OPEN"
	SupReview     Status = "SUP_REVIEW"
	SupApproved   Status = "SUP_APPROVED"
	SupRejected   Status = "SUP_REJECTED"
	ClientAgreed  Status = "CLIENT_AGREED"
	WithUW        Status = "WITH_UW"
	UWRejected    Status = "UW_REJECTED"
	PolicyCreated Status = "POLICY_CREATED"
	PolicyDenied  Status = "POLICY_DENIED"
	Closed        Status = "CLOSED"
)

// Display labels the lifecycle compares against.
const (
	LabelOpen               = "Open/Draft"
	LabelSubmittedForReview = "Submitted for Review"
	LabelPendingClient      = "Pending Client Agreement"
	LabelSupervisorRejected = "Supervisor Rejected"
	LabelClientAgreed       = "Client Agreed"
	LabelWithUnderwriter    = "With Underwriter"
	LabelPolicyDenied       = "Policy Denied"
	LabelCompleted          = "Completed"
	LabelClosed             = "Closed"
)

// Result is a normalized status.
type Result struct {
	Canonical Status `json:"canonical"`
	Label     string `json:"label"`
}

type entry struct {
	token     string
	canonical Status
	label     string
}

// table is searched in order, so the first key that matches case-insensitively
// wins.
var table = []entry{
	{"OPEN", Open, LabelOpen},
	{"SUP_REVIEW", SupReview, LabelSubmittedForReview},
	{"SUBMITTED", SupReview, LabelSubmittedForReview},
	{"SUP_APPROVED", SupApproved, LabelPendingClient},
	{"SUP_REJECTED", SupRejected, LabelSupervisorRejected},
	{"With_UW", WithUW, LabelWithUnderwriter},
	{"UW_Rejected", UWRejected, LabelPolicyDenied},
	{"Policy_Denied", PolicyDenied, LabelPolicyDenied},
	{"Policy_Created", PolicyCreated, LabelCompleted},
	{"Completed", PolicyCreated, LabelCompleted},
	{"Closed", Closed, LabelClosed},
	{"Client_Agreed", ClientAgreed, LabelClientAgreed},
	{"Client Approved", ClientAgreed, LabelClientAgreed},
	{"Client_Approved", ClientAgreed, LabelClientAgreed},
}

// Normalize resolves raw by exact match, then case-insensitive match, then
// falls back to the raw token title-cased word by word. A blank raw status is
// Open/Draft.
func Normalize(raw string) Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Result{Canonical: Open, Label: LabelOpen}
	}

	for _, e := range table {
		if e.token == trimmed {
			return Result{Canonical: e.canonical, Label: e.label}
		}
	}
	upper := strings.ToUpper(trimmed)
	for _, e := range table {
		if strings.ToUpper(e.token) == upper {
			return Result{Canonical: e.canonical, Label: e.label}
		}
	}
	return Result{Canonical: Status(ProgressKey(trimmed)), Label: titleCase(trimmed)}
}

// Label is shorthand for Normalize(raw).Label.
func Label(raw string) string {
	return Normalize(raw).Label
}

// ProgressKey uppercases raw and folds runs of spaces and hyphens into one
// underscore.
func ProgressKey(raw string) string {
	var b strings.Builder
	inSep := false
	for _, r := range strings.TrimSpace(raw) {
		if r == '-' || unicode.IsSpace(r) {
			if !inSep {
				b.WriteByte('_')
			}
			inSep = true
			continue
		}
		inSep = false
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

var legacy = map[string]string{
	"pending":     string(SupReview),
	"na":          string(Open),
	"approved":    string(SupApproved),
	"rejected":    string(SupRejected),
	"uw_approved": "With_UW",
}

// MigrateLegacy rewrites the supervisor decision words used by older rows
// (pending, NA, approved, rejected, UW_approved) to current tokens. Other
// values are returned unchanged.
func MigrateLegacy(raw string) string {
	if migrated, ok := legacy[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return migrated
	}
	return raw
}

func titleCase(raw string) string {
	words := strings.Split(raw, "_")
	for i, word := range words {
		if word == "" {
			continue
		}
		runes := []rune(strings.ToLower(word))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
