package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"proposaldesk/api/internal/lifecycle"
	"proposaldesk/api/internal/rbac"
	"proposaldesk/api/internal/reconcile"
	"proposaldesk/api/internal/session"
	"proposaldesk/api/internal/status"
	"proposaldesk/api/internal/store"
)

// UpdateChosenPlans stores the agent's plan selection. An empty selection
// clears it and resets the supervisor status to OPEN.
func (s *Service) UpdateChosenPlans(ctx context.Context, sess session.Session, uniqueID string, plans []string) (map[string]any, error) {
	if err := s.authorize(sess, rbac.ActionEdit); err != nil {
		return nil, err
	}
	item, err := s.loadSubmission(ctx, sess, uniqueID)
	if err != nil {
		return nil, err
	}
	plans = cleanPlans(plans)
	ok, err := s.store.UpdateAgentPlans(ctx, item.UniqueID, plans, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errSubmissionNotFound()
	}
	if len(plans) == 0 {
		s.metrics.Transition(lifecycle.SourceSupervisor, string(status.Open))
		return map[string]any{"success": true, "message": "Cleared chosen plans; supervisor status set to NA."}, nil
	}
	return map[string]any{"success": true, "message": "Chosen plans updated successfully."}, nil
}

// UpdateSupervisorPlans stores the supervisor's approved plans while the
// proposal is submitted for review.
func (s *Service) UpdateSupervisorPlans(ctx context.Context, sess session.Session, uniqueID string, plans []string) (map[string]any, error) {
	if err := s.authorize(sess, rbac.ActionApprove); err != nil {
		return nil, err
	}
	item, err := s.loadSubmission(ctx, sess, uniqueID)
	if err != nil {
		return nil, err
	}
	if sess.Role == rbac.RoleSupervisor && !lifecycle.CanToggleSupervisor(sess.Role, item.SupervisorStatus) {
		return nil, domainError(http.StatusConflict, "SELECTION_LOCKED", "Supervisor selections can only change while the proposal is submitted for review", map[string]any{
			"status": status.Label(item.SupervisorStatus),
		})
	}
	if err := s.store.UpdateSupervisorPlans(ctx, item.UniqueID, cleanPlans(plans), s.now().UTC()); err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "message": "Supervisor plans updated successfully."}, nil
}

// ApprovalResult is the response to a supervisor status write.
type ApprovalResult struct {
	Success            bool   `json:"success"`
	Message            string `json:"message"`
	Status             string `json:"status"`
	Label              string `json:"label"`
	SupervisorComments string `json:"supervisor_comments"`
}

// UpdateApprovalStatus writes the supervisor stage. Agents may only move a
// proposal back to review or open; deciding needs the approve permission.
func (s *Service) UpdateApprovalStatus(ctx context.Context, sess session.Session, uniqueID, raw, comments string) (ApprovalResult, error) {
	decision, err := lifecycle.ApprovalDecision(raw, comments)
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrCommentsRequired):
			return ApprovalResult{}, domainError(http.StatusBadRequest, "COMMENTS_REQUIRED", "Supervisor comments are required.", nil)
		default:
			return ApprovalResult{}, domainError(http.StatusBadRequest, "INVALID_STATUS", "Invalid status", map[string]any{"status": raw})
		}
	}
	action := rbac.ActionProceed
	if decision.Status == status.SupApproved || decision.Status == status.SupRejected {
		action = rbac.ActionApprove
	}
	if err := s.authorize(sess, action); err != nil {
		return ApprovalResult{}, err
	}
	item, err := s.loadSubmission(ctx, sess, uniqueID)
	if err != nil {
		return ApprovalResult{}, err
	}

	ok, err := s.store.UpdateSupervisorStatus(ctx, store.StageWrite{
		UniqueID: item.UniqueID,
		Status:   string(decision.Status),
		Comments: decision.Comments,
		By:       sess.Identity(),
		At:       s.now().UTC(),
	})
	if err != nil {
		return ApprovalResult{}, err
	}
	if !ok {
		return ApprovalResult{}, errSubmissionNotFound()
	}
	s.metrics.Transition(lifecycle.SourceSupervisor, string(decision.Status))

	if typed := strings.TrimSpace(comments); typed != "" {
		if _, err := s.insertComment(ctx, item, firstNonBlank(sess.UserName, sess.Identity()), typed); err != nil {
			log.Printf("comments: record supervisor comment on %s: %v", item.UniqueID, err)
		}
	}
	s.recomputeApplicationStatus(ctx, item.UniqueID)

	label := status.Label(string(decision.Status))
	return ApprovalResult{
		Success:            true,
		Message:            fmt.Sprintf("Status updated to %s.", label),
		Status:             string(decision.Status),
		Label:              label,
		SupervisorComments: decision.Comments,
	}, nil
}

// ClientReviewInput is the body of POST /update_client_plans/{uid}.
// ClientAgreedPlans is nil when the client's plans are left unchanged.
type ClientReviewInput struct {
	ClientReview      any       `json:"client_review"`
	ClientStatus      string    `json:"client_status"`
	Comment           string    `json:"comment"`
	ClientAgreedPlans *[]string `json:"client_agreed_plans"`
}

// UpdateClientReview records the client's review and agreed plans and
// mirrors the client status into the close stage.
func (s *Service) UpdateClientReview(ctx context.Context, sess session.Session, uniqueID string, input ClientReviewInput) (map[string]any, error) {
	if err := s.authorize(sess, rbac.ActionAgree); err != nil {
		return nil, err
	}
	item, err := s.loadSubmission(ctx, sess, uniqueID)
	if err != nil {
		return nil, err
	}
	if !lifecycle.CanToggleClient(sess.Role, item.SupervisorStatus) {
		return nil, domainError(http.StatusConflict, "SELECTION_LOCKED", "Client agreement can only be recorded after supervisor approval", map[string]any{
			"status": status.Label(item.SupervisorStatus),
		})
	}
	reviewed := lifecycle.ClientReviewed(input.ClientReview)
	clientStatus := strings.TrimSpace(input.ClientStatus)
	if clientStatus == "" && reviewed {
		clientStatus = string(status.ClientAgreed)
	}
	update := store.ClientUpdate{
		UniqueID: item.UniqueID,
		Reviewed: reviewed,
		Comments: strings.TrimSpace(input.Comment),
		Status:   clientStatus,
		By:       sess.Identity(),
		At:       s.now().UTC(),
	}
	if input.ClientAgreedPlans != nil {
		update.Plans = cleanPlans(*input.ClientAgreedPlans)
		if update.Plans == nil {
			update.Plans = []string{}
		}
	}
	ok, err := s.store.UpdateClientReview(ctx, update)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errSubmissionNotFound()
	}
	if clientStatus != "" {
		s.metrics.Transition(lifecycle.SourceClose, clientStatus)
	}
	s.recomputeApplicationStatus(ctx, item.UniqueID)
	return map[string]any{"message": "Client status updated successfully"}, nil
}

// UpdateUnderwriterStatus writes the underwriter stage. It needs the
// client's review first.
func (s *Service) UpdateUnderwriterStatus(ctx context.Context, sess session.Session, uniqueID, raw, comment string) (map[string]any, error) {
	if err := s.authorize(sess, rbac.ActionUnderwrite); err != nil {
		return nil, err
	}
	item, err := s.loadSubmission(ctx, sess, uniqueID)
	if err != nil {
		return nil, err
	}
	stored, err := lifecycle.UnderwriterStatus(item.ClientReview, raw)
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrClientReviewPending):
			return nil, domainError(http.StatusBadRequest, "CLIENT_REVIEW_PENDING", "Underwriter cannot act before Client review", nil)
		default:
			return nil, domainError(http.StatusBadRequest, "MISSING_STATUS", "Missing status for non-client actor", nil)
		}
	}
	ok, err := s.store.UpdateUnderwriterStatus(ctx, store.StageWrite{
		UniqueID: item.UniqueID,
		Status:   stored,
		Comments: strings.TrimSpace(comment),
		By:       sess.Identity(),
		At:       s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errSubmissionNotFound()
	}
	s.metrics.Transition(lifecycle.SourceUnderwriter, stored)
	s.recomputeApplicationStatus(ctx, item.UniqueID)
	return map[string]any{"message": "Underwriter status updated successfully", "underwriter_status": stored}, nil
}

// SetPolicyOutcome records "Policy Created" or "Policy Denied".
func (s *Service) SetPolicyOutcome(ctx context.Context, sess session.Session, uniqueID, outcome, comment string) (map[string]any, error) {
	if err := s.authorize(sess, rbac.ActionClose); err != nil {
		return nil, err
	}
	if strings.TrimSpace(uniqueID) == "" || strings.TrimSpace(outcome) == "" {
		return nil, domainError(http.StatusBadRequest, "MISSING_DATA", "Missing data", nil)
	}
	stored, err := lifecycle.PolicyOutcome(outcome, comment)
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrDeniedNeedsComment):
			return nil, domainError(http.StatusBadRequest, "COMMENT_REQUIRED", "Comment required when Policy Denied", nil)
		default:
			return nil, domainError(http.StatusBadRequest, "INVALID_OUTCOME", "Invalid outcome", nil)
		}
	}
	item, err := s.loadSubmission(ctx, sess, uniqueID)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.UpdatePolicyOutcome(ctx, store.StageWrite{
		UniqueID: item.UniqueID,
		Status:   stored,
		Comments: strings.TrimSpace(comment),
		By:       sess.Identity(),
		At:       s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errSubmissionNotFound()
	}
	s.metrics.Transition(lifecycle.SourcePolicy, stored)
	s.recomputeApplicationStatus(ctx, item.UniqueID)
	return map[string]any{"message": "Policy outcome saved"}, nil
}

// PolicyDetailsInput is the body of POST /policy_details/{uid}. The period
// may arrive as a number or a numeric string.
type PolicyDetailsInput struct {
	PolicyNumber       string `json:"policy_number"`
	PolicyName         string `json:"policy_name"`
	MemberNumber       string `json:"member_number"`
	MemberName         string `json:"member_name"`
	PolicyStartDate    string `json:"policy_start_date"`
	PolicyPeriodMonths any    `json:"policy_period_months"`
	PolicyDetails      string `json:"policy_details"`
	CloseComments      string `json:"close_comments"`
}

// SavePolicyDetails stores the issued policy, computes its end date and
// closes the proposal as Policy_Created.
func (s *Service) SavePolicyDetails(ctx context.Context, sess session.Session, uniqueID string, input PolicyDetailsInput) (map[string]any, error) {
	if err := s.authorize(sess, rbac.ActionClose); err != nil {
		return nil, err
	}
	if err := lifecycle.RequirePolicyFields(input.PolicyNumber, input.MemberNumber, input.MemberName, input.PolicyStartDate); err != nil {
		return nil, domainError(http.StatusBadRequest, "MISSING_POLICY_FIELDS", "Missing required policy fields", nil)
	}
	start, ok := reconcile.ParseDate(input.PolicyStartDate)
	if !ok {
		return nil, domainError(http.StatusBadRequest, "INVALID_START_DATE", "Invalid policy start date", map[string]any{"policy_start_date": input.PolicyStartDate})
	}
	months := periodMonths(input.PolicyPeriodMonths)
	end := lifecycle.PolicyEndDate(start, months)

	item, err := s.loadSubmission(ctx, sess, uniqueID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	saved, err := s.store.SavePolicyDetails(ctx, store.PolicyDetails{
		UniqueID:     item.UniqueID,
		PolicyNumber: strings.TrimSpace(input.PolicyNumber),
		PolicyName:   strings.TrimSpace(input.PolicyName),
		MemberNumber: strings.TrimSpace(input.MemberNumber),
		MemberName:   strings.TrimSpace(input.MemberName),
		StartDate:    start,
		PeriodMonths: months,
		EndDate:      end,
		Details:      input.PolicyDetails,
		ModifiedAt:   now,
		ModifiedBy:   sess.Identity(),
	}, strings.TrimSpace(input.CloseComments))
	if err != nil {
		return nil, err
	}
	if !saved {
		return nil, errSubmissionNotFound()
	}
	s.metrics.Transition(lifecycle.SourceClose, string(status.PolicyCreated))
	s.recomputeApplicationStatus(ctx, item.UniqueID)
	return map[string]any{"message": "Policy details saved", "policy_end_date": end.Format("2006-01-02")}, nil
}

// recomputeApplicationStatus copies the most recent stage stamp onto the
// application status. Failures are logged; the stage write already stands.
func (s *Service) recomputeApplicationStatus(ctx context.Context, uniqueID string) {
	item, err := s.store.GetSubmission(ctx, uniqueID)
	if err != nil {
		log.Printf("rollup: load %s: %v", uniqueID, err)
		return
	}
	latest, ok := lifecycle.Rollup(stageStamps(item))
	if !ok {
		return
	}
	if latest.Status == item.ApplicationStatus && item.ApplicationModifiedAt != nil && item.ApplicationModifiedAt.Equal(latest.At) {
		return
	}
	if err := s.store.SetApplicationStatus(ctx, store.StageWrite{
		UniqueID: uniqueID,
		Status:   latest.Status,
		Comments: latest.Comments,
		By:       latest.By,
		At:       latest.At,
	}); err != nil {
		log.Printf("rollup: write %s: %v", uniqueID, err)
		return
	}
	log.Printf("rollup: %s application status %q from %s", uniqueID, latest.Status, latest.Source)
	s.metrics.Transition(lifecycle.SourceApplication, latest.Status)
	s.indexProposal(uniqueID, item.Name, item.Agent, latest.Status)
}

func stageStamps(item store.Submission) []lifecycle.Stamp {
	stamp := func(source, st, comments, by string, at *time.Time) lifecycle.Stamp {
		out := lifecycle.Stamp{Source: source, Status: st, Comments: comments, By: by}
		if at != nil {
			out.At = *at
		}
		return out
	}
	return []lifecycle.Stamp{
		stamp(lifecycle.SourceSupervisor, item.SupervisorStatus, item.SupervisorComments, item.SupervisorModifiedBy, item.SupervisorModifiedAt),
		stamp(lifecycle.SourceUnderwriter, item.UnderwriterStatus, item.UnderwriterComments, item.UnderwriterModifiedBy, item.UnderwriterModifiedAt),
		stamp(lifecycle.SourcePolicy, item.PolicyOutcome, item.PolicyOutcomeComment, item.PolicyOutcomeModifiedBy, item.PolicyOutcomeModifiedAt),
		stamp(lifecycle.SourceClose, item.CloseStatus, item.CloseComments, item.CloseModifiedBy, item.CloseModifiedAt),
	}
}

func periodMonths(value any) int {
	switch v := value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return 12
}

func cleanPlans(plans []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(plans))
	for _, plan := range plans {
		plan = strings.TrimSpace(plan)
		if plan == "" {
			continue
		}
		if _, dup := seen[plan]; dup {
			continue
		}
		seen[plan] = struct{}{}
		out = append(out, plan)
	}
	return out
}
