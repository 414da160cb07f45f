package lifecycle

import (
	"strings"

	"proposaldesk/api/internal/rbac"
	"proposaldesk/api/internal/session"
	"proposaldesk/api/internal/status"
)

// Action is a mutating command a role may dispatch from the proposal view.
type Action string

const (
	ActionProceed  Action = "proceed"
	ActionApprove  Action = "approve"
	ActionReassign Action = "reassign"
	ActionAgree    Action = "agree"
)

// CanDispatch gates UI actions on role, raw status and whether the agent's
// plan selections changed since the last submit.
func CanDispatch(action Action, role rbac.Role, raw string, changed bool) bool {
	normalized := status.Normalize(status.MigrateLegacy(raw))
	switch action {
	case ActionProceed:
		if !rbac.Can(role, rbac.ActionProceed) {
			return false
		}
		switch normalized.Canonical {
		case status.SupReview, status.SupApproved:
			return false
		case status.SupRejected:
			return changed
		default:
			return true
		}
	case ActionApprove:
		return role == rbac.RoleSupervisor && normalized.Label == status.LabelSubmittedForReview
	case ActionReassign:
		return role == rbac.RoleSupervisor
	case ActionAgree:
		if !rbac.Can(role, rbac.ActionAgree) {
			return false
		}
		return normalized.Canonical == status.SupApproved || normalized.Canonical == status.ClientAgreed
	default:
		return false
	}
}

// VisibleProposals filters list down to what sess may see. Agents see
// proposals assigned to their identity: exact case-insensitive matches when
// there are any, otherwise substring matches in either direction. Clients
// only get exact matches. Every other role sees the whole list.
func VisibleProposals[T any](sess session.Session, list []T, agentOf func(T) string) []T {
	if sess.Role != rbac.RoleAgent && sess.Role != rbac.RoleClient {
		return list
	}
	identity := strings.ToLower(sess.Identity())
	if identity == "" {
		return nil
	}

	var exact, partial []T
	for _, item := range list {
		agent := strings.ToLower(strings.TrimSpace(agentOf(item)))
		if agent == "" {
			continue
		}
		switch {
		case agent == identity:
			exact = append(exact, item)
		case strings.Contains(agent, identity) || strings.Contains(identity, agent):
			partial = append(partial, item)
		}
	}
	if len(exact) > 0 || sess.Role == rbac.RoleClient {
		return exact
	}
	return partial
}

// AssignedTo reports whether a proposal assigned to agent is visible to
// sess. assigned must hold the agent of every stored proposal, so the
// substring fallback is judged against the whole list like VisibleProposals.
func AssignedTo(sess session.Session, assigned []string, agent string) bool {
	agent = strings.ToLower(strings.TrimSpace(agent))
	for _, visible := range VisibleProposals(sess, assigned, func(a string) string { return a }) {
		if strings.ToLower(strings.TrimSpace(visible)) == agent {
			return true
		}
	}
	return false
}
