package lifecycle

import (
	"strings"

	"proposaldesk/api/internal/rbac"
	"proposaldesk/api/internal/session"
	"proposaldesk/api/internal/status"
)

// EffectType names what an adapter must do with an Effect.
type EffectType string

const (
	// Local state changes.
	EffectTransition     EffectType = "TRANSITION"
	EffectResetChanged   EffectType = "RESET_CHANGED"
	EffectReloadComments EffectType = "RELOAD_COMMENTS"
	EffectShowComment    EffectType = "SHOW_COMMENT"
	EffectAlert          EffectType = "ALERT"

	// Requests against the persistence API, run in order. A failed request
	// stops the chain.
	EffectSavePlans    EffectType = "SAVE_PLANS"
	EffectUpdateStatus EffectType = "UPDATE_STATUS"
)

// Effect is one step a command asks its adapter to perform.
type Effect struct {
	Type    EffectType `json:"type"`
	To      string     `json:"to,omitempty"`
	Comment string     `json:"comment,omitempty"`
	Plans   []string   `json:"plans,omitempty"`
}

// View is the slice of an open proposal view a command needs.
type View struct {
	UniqueID  string
	RawStatus string
	Selected  []string
	Changed   bool
	Invalid   []FieldError
}

// DefaultResubmitComment is shown when the status write gives no comment back.
const DefaultResubmitComment = "Resubmitted by agent; awaiting supervisor review."

// Alert messages.
const (
	MsgProceedDisabled   = "Disabled due to supervisor status"
	MsgSelectPlan        = "Please select at least one plan to proceed."
	MsgSaveFailed        = "Failed to save selected plans. Please try again."
	MsgApproveDisabled   = "Only a supervisor can decide a proposal submitted for review."
	MsgCommentsRequired  = "Supervisor comments are required."
	MsgStatusWriteFailed = "An error occurred while updating the status. Please try again."
)

func alert(message string) []Effect {
	return []Effect{{Type: EffectAlert, Comment: message}}
}

// Proceed submits the agent's plan selection for supervisor review. It
// returns either an alert or the two requests to run in order: save the
// selected plans, then move the status to SUP_REVIEW.
func Proceed(sess session.Session, view View) []Effect {
	if !CanDispatch(ActionProceed, sess.Role, view.RawStatus, view.Changed) {
		return alert(MsgProceedDisabled)
	}
	if len(view.Invalid) > 0 {
		return alert(Summary(view.Invalid))
	}
	plans := nonBlank(view.Selected)
	if len(plans) == 0 {
		return alert(MsgSelectPlan)
	}
	return []Effect{
		{Type: EffectSavePlans, Plans: plans},
		{Type: EffectUpdateStatus, To: string(status.SupReview)},
	}
}

// PlansSaved continues Proceed after the save request. A failed save leaves
// local state alone.
func PlansSaved(err error) []Effect {
	if err != nil {
		return alert(MsgSaveFailed)
	}
	return nil
}

// Resubmitted finishes Proceed after the status request. The transition to
// SUBMITTED is kept even when the status write failed; the default comment
// is shown in that case and whenever the server returned none.
func Resubmitted(serverComment string, err error) []Effect {
	effects := []Effect{
		{Type: EffectTransition, To: StageSubmitted},
		{Type: EffectResetChanged},
		{Type: EffectReloadComments},
	}
	comment := strings.TrimSpace(serverComment)
	if err != nil || comment == "" {
		comment = DefaultResubmitComment
	}
	return append(effects, Effect{Type: EffectShowComment, Comment: comment})
}

// Decide records a supervisor decision. Approve and reject need a comment.
func Decide(sess session.Session, view View, approve bool, comment string) []Effect {
	if !CanDispatch(ActionApprove, sess.Role, view.RawStatus, view.Changed) {
		return alert(MsgApproveDisabled)
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return alert(MsgCommentsRequired)
	}
	to := status.SupRejected
	if approve {
		to = status.SupApproved
	}
	return []Effect{{Type: EffectUpdateStatus, To: string(to), Comment: comment}}
}

// Decided finishes Decide. Unlike resubmission, a failed decision write is
// not applied locally.
func Decided(to string, err error) []Effect {
	if err != nil {
		return alert(MsgStatusWriteFailed)
	}
	return []Effect{
		{Type: EffectTransition, To: to},
		{Type: EffectReloadComments},
	}
}

// CanToggleSupervisor reports whether supervisor checkboxes accept changes.
func CanToggleSupervisor(role rbac.Role, raw string) bool {
	return CanDispatch(ActionApprove, role, raw, false)
}

// CanToggleClient reports whether client agreement checkboxes accept
// changes.
func CanToggleClient(role rbac.Role, raw string) bool {
	return CanDispatch(ActionAgree, role, raw, false)
}

func nonBlank(values []string) []string {
	var out []string
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
