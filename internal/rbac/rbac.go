package rbac

import "strings"

type Role string
type Action string

const (
	RoleAgent       Role = "agent"
	RoleSupervisor  Role = "supervisor"
	RoleClient      Role = "client"
	RoleUnderwriter Role = "underwriter"
	RoleAdmin       Role = "admin"
	RoleSuperAdmin  Role = "superadmin"
)

const (
	ActionRead       Action = "read"
	ActionEdit       Action = "edit"
	ActionProceed    Action = "proceed"
	ActionApprove    Action = "approve"
	ActionReassign   Action = "reassign"
	ActionAgree      Action = "agree"
	ActionUnderwrite Action = "underwrite"
	ActionClose      Action = "close"
	ActionComment    Action = "comment"
	ActionAdmin      Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleSuperAdmin, RoleAdmin:
		return true
	case RoleSupervisor:
		return action == ActionRead || action == ActionApprove || action == ActionReassign || action == ActionComment
	case RoleAgent:
		// Agents relay client agreement and record the policy outcome.
		return action == ActionRead || action == ActionEdit || action == ActionProceed ||
			action == ActionComment || action == ActionAgree || action == ActionClose
	case RoleClient:
		return action == ActionRead || action == ActionAgree
	case RoleUnderwriter:
		return action == ActionRead || action == ActionUnderwrite || action == ActionComment
	default:
		return false
	}
}

// Normalize maps a stored role string to a Role. Unknown roles become agents,
// the least privileged staff role.
func Normalize(role string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(role))); r {
	case RoleAgent, RoleSupervisor, RoleClient, RoleUnderwriter, RoleAdmin, RoleSuperAdmin:
		return r
	default:
		return RoleAgent
	}
}
