package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"proposaldesk/api/internal/lifecycle"
	"proposaldesk/api/internal/plans"
	"proposaldesk/api/internal/rbac"
	"proposaldesk/api/internal/reconcile"
	"proposaldesk/api/internal/session"
	"proposaldesk/api/internal/status"
	"proposaldesk/api/internal/store"
)

// systemSectionKey names the section built from stored system plans when
// the payload carries no plan sections.
const systemSectionKey = "system_proposed"

// ProposalView is everything the proposal screen renders.
type ProposalView struct {
	Record            reconcile.ProposalRecord `json:"record"`
	Status            status.Result            `json:"status"`
	ApplicationStatus status.Result            `json:"application_status"`
	Progress          lifecycle.Progress       `json:"progress"`
	Matrix            *plans.Matrix            `json:"matrix"`
	Can               ViewPermissions          `json:"can"`
	Changed           bool                     `json:"changed"`
	Invalid           []lifecycle.FieldError   `json:"invalid"`
	InvalidSummary    string                   `json:"invalid_summary,omitempty"`
	Combinations      *plans.Summary           `json:"combinations,omitempty"`
	Policy            *PolicyView              `json:"policy,omitempty"`
}

// ViewPermissions gates the screen's action buttons.
type ViewPermissions struct {
	Proceed  bool `json:"proceed"`
	Approve  bool `json:"approve"`
	Reassign bool `json:"reassign"`
	Agree    bool `json:"agree"`
}

type PolicyView struct {
	PolicyNumber string `json:"policy_number"`
	PolicyName   string `json:"policy_name"`
	MemberNumber string `json:"member_number"`
	MemberName   string `json:"member_name"`
	StartDate    string `json:"policy_start_date"`
	PeriodMonths int    `json:"policy_period_months"`
	EndDate      string `json:"policy_end_date"`
	Details      string `json:"policy_details,omitempty"`
}

// GetView reconciles a stored proposal and lays out its status, progress
// track and plan matrix. Stored plan selections and comments take
// precedence over copies left in the payload.
func (s *Service) GetView(ctx context.Context, sess session.Session, uniqueID, mode string, order []string) (ProposalView, error) {
	if err := s.authorize(sess, rbac.ActionRead); err != nil {
		return ProposalView{}, err
	}
	item, err := s.loadSubmission(ctx, sess, uniqueID)
	if err != nil {
		return ProposalView{}, err
	}
	payload, err := reconcile.ParsePayload(item.Payload)
	if err != nil {
		return ProposalView{}, errCorruptedPayload(err)
	}
	sess = sess.WithClock(s.now)
	record := reconcile.New(sess).Reconcile(payload)
	record.UniqueID = item.UniqueID
	record.Agent = item.Agent
	record.RawStatus = item.SupervisorStatus

	selections, err := s.store.GetPlanSelections(ctx, item.UniqueID)
	if err != nil {
		return ProposalView{}, err
	}
	applySelections(&record, selections)

	comments, err := s.store.ListComments(ctx, item.UniqueID)
	if err != nil {
		return ProposalView{}, err
	}
	if len(comments) > 0 {
		record.Comments = make([]reconcile.Comment, 0, len(comments))
		for _, c := range comments {
			record.Comments = append(record.Comments, reconcile.Comment{
				Modifier:  c.Modifier,
				Comment:   c.Comment,
				Timestamp: c.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
	}

	changed := agentChangedSinceDecision(item, selections)
	progressStatus := firstNonBlank(item.ApplicationStatus, item.SupervisorStatus)
	invalid := lifecycle.ValidateRequired(record)

	view := ProposalView{
		Record:            record,
		Status:            status.Normalize(status.MigrateLegacy(item.SupervisorStatus)),
		ApplicationStatus: status.Normalize(status.MigrateLegacy(progressStatus)),
		Progress:          lifecycle.Stages(progressStatus, stageTimes(item, selections)),
		Matrix: plans.BuildMatrix(record.PlanSections, plans.Options{
			Mode:       plans.ParseMode(mode),
			Order:      order,
			Selections: record.Selections,
		}),
		Can: ViewPermissions{
			Proceed:  lifecycle.CanDispatch(lifecycle.ActionProceed, sess.Role, item.SupervisorStatus, changed),
			Approve:  lifecycle.CanDispatch(lifecycle.ActionApprove, sess.Role, item.SupervisorStatus, changed),
			Reassign: lifecycle.CanDispatch(lifecycle.ActionReassign, sess.Role, item.SupervisorStatus, changed),
			Agree:    lifecycle.CanDispatch(lifecycle.ActionAgree, sess.Role, item.SupervisorStatus, changed),
		},
		Changed:        changed,
		Invalid:        invalid,
		InvalidSummary: lifecycle.Summary(invalid),
	}
	if view.Invalid == nil {
		view.Invalid = []lifecycle.FieldError{}
	}
	view.Combinations = combinationSummary(item.Payload)

	details, err := s.store.GetPolicyDetails(ctx, item.UniqueID)
	switch {
	case err == nil:
		view.Policy = &PolicyView{
			PolicyNumber: details.PolicyNumber,
			PolicyName:   details.PolicyName,
			MemberNumber: details.MemberNumber,
			MemberName:   details.MemberName,
			StartDate:    details.StartDate.Format("2006-01-02"),
			PeriodMonths: details.PeriodMonths,
			EndDate:      details.EndDate.Format("2006-01-02"),
			Details:      details.Details,
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return ProposalView{}, err
	}
	return view, nil
}

// applySelections overrides payload selections with stored ones. When the
// payload has no plan sections the stored system plans become one section.
func applySelections(record *reconcile.ProposalRecord, stored store.PlanSelections) {
	if len(stored.System) > 0 {
		record.Selections.SystemProposed = stored.System
		if len(record.PlanSections) == 0 {
			record.PlanSections = []reconcile.PlanSection{{
				Key:   systemSectionKey,
				Name:  "System proposed plans",
				Plans: stored.System,
			}}
		}
	}
	if stored.AgentModifiedAt != nil || len(stored.Agent) > 0 {
		record.Selections.AgentSelected = stored.Agent
	}
	if stored.SupervisorModifiedAt != nil || len(stored.Supervisor) > 0 {
		record.Selections.SupervisorApproved = stored.Supervisor
	}
	if stored.ClientModifiedAt != nil || len(stored.Client) > 0 {
		record.Selections.ClientAgreed = stored.Client
	}
}

// agentChangedSinceDecision reports whether the agent touched the plan
// selection after the supervisor's last status write.
func agentChangedSinceDecision(item store.Submission, stored store.PlanSelections) bool {
	if stored.AgentModifiedAt == nil {
		return false
	}
	if item.SupervisorModifiedAt == nil {
		return true
	}
	return stored.AgentModifiedAt.After(*item.SupervisorModifiedAt)
}

func stageTimes(item store.Submission, stored store.PlanSelections) map[string]time.Time {
	at := map[string]time.Time{}
	if !item.CreatedAt.IsZero() {
		at[lifecycle.StageOpen] = item.CreatedAt
	}
	if item.SupervisorModifiedAt != nil {
		switch status.Normalize(status.MigrateLegacy(item.SupervisorStatus)).Canonical {
		case status.SupReview, status.SupRejected:
			at[lifecycle.StageSubmitted] = *item.SupervisorModifiedAt
		case status.SupApproved:
			at[lifecycle.StageSupApproved] = *item.SupervisorModifiedAt
		}
	}
	if item.ClientReview {
		if item.CloseModifiedAt != nil {
			at[lifecycle.StageClientAgreed] = *item.CloseModifiedAt
		} else if stored.ClientModifiedAt != nil {
			at[lifecycle.StageClientAgreed] = *stored.ClientModifiedAt
		}
	}
	if item.UnderwriterModifiedAt != nil {
		at[lifecycle.StageWithUW] = *item.UnderwriterModifiedAt
	}
	if item.PolicyOutcomeModifiedAt != nil {
		at[lifecycle.StagePolicyCreated] = *item.PolicyOutcomeModifiedAt
	}
	return at
}

// combinationSummary reads the upstream scorer output kept under
// combination_packages. A missing or unreadable block yields nil.
func combinationSummary(raw json.RawMessage) *plans.Summary {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil
	}
	block, ok := top["combination_packages"]
	if !ok || len(block) == 0 || strings.TrimSpace(string(block)) == "null" {
		return nil
	}
	// Some producers store the block as a JSON string.
	var nested string
	if err := json.Unmarshal(block, &nested); err == nil {
		block = json.RawMessage(nested)
	}
	combos, err := plans.DecodeCombinations(block)
	if err != nil {
		log.Printf("view: combination packages: %v", err)
		return nil
	}
	summary := combos.Summary()
	return &summary
}
