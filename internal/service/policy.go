package service

import (
	"fmt"

	"github.com/noah-isme/ami-audit-api/internal/models"
)

// AuditPolicy is the single authority for role-based capability checks on
// audit sessions. All decisions are pure functions of the principal and the
// session so they can be evaluated anywhere without I/O.
type AuditPolicy struct{}

// NewAuditPolicy creates the policy evaluator.
func NewAuditPolicy() AuditPolicy {
	return AuditPolicy{}
}

func sameDepartment(p models.Principal, session *models.AuditSession) bool {
	return p.Department != nil && *p.Department == session.Department
}

// assignedOrUnassigned reports whether an Auditor principal may act on the
// session: either it is assigned to them or no auditor is assigned yet.
func assignedOrUnassigned(p models.Principal, session *models.AuditSession) bool {
	return session.AssignedAuditorID == nil || *session.AssignedAuditorID == p.UserID
}

// CanView reports whether the principal may read the session at all.
// Admin-class roles and the auditor lead see everything, auditors see their
// own and unassigned sessions, department roles see their department.
func (AuditPolicy) CanView(p models.Principal, session *models.AuditSession) bool {
	switch p.Role {
	case models.RoleSuperAdmin, models.RoleAdmin, models.RoleAuditorLead:
		return true
	case models.RoleAuditor:
		return assignedOrUnassigned(p, session)
	case models.RoleDeptHead, models.RoleAuditee:
		return sameDepartment(p, session)
	default:
		return false
	}
}

// CanEditAuditeeFields reports whether the principal may write the
// auditee-side question fields (self assessment, evidence, action plan).
func (AuditPolicy) CanEditAuditeeFields(p models.Principal, session *models.AuditSession) bool {
	switch p.Role {
	case models.RoleDeptHead, models.RoleAuditee:
		return sameDepartment(p, session)
	default:
		return false
	}
}

// CanEditAuditorFields reports whether the principal may write the
// auditor-side question fields (verdict, notes, action plan deadline).
// Plain auditors additionally need the assignment tie: the session must be
// assigned to them or still unassigned.
func (AuditPolicy) CanEditAuditorFields(p models.Principal, session *models.AuditSession) bool {
	if !p.Role.AuditorClass() {
		return false
	}
	if p.Role == models.RoleAuditor {
		return assignedOrUnassigned(p, session)
	}
	return true
}

// CanSchedule reports whether the principal may create new audit sessions.
func (AuditPolicy) CanSchedule(p models.Principal) bool {
	switch p.Role {
	case models.RoleSuperAdmin, models.RoleAdmin, models.RoleAuditorLead:
		return true
	default:
		return false
	}
}

// CanDelete reports whether the principal may delete the session. Deletion
// covers both unstarted schedules and historical records.
func (AuditPolicy) CanDelete(p models.Principal, session *models.AuditSession) bool {
	return p.Role == models.RoleSuperAdmin || p.Role == models.RoleAdmin
}

// CanTransition reports whether the principal may perform the given
// lifecycle operation on the session. It checks actor capability only; state
// preconditions are enforced separately by the lifecycle engine.
func (policy AuditPolicy) CanTransition(p models.Principal, session *models.AuditSession, op models.AuditOperation) bool {
	switch op {
	case models.OpSchedule, models.OpConfirmSchedule, models.OpStart, models.OpReschedule:
		return policy.CanSchedule(p)
	case models.OpSubmitSelfAssessment:
		switch p.Role {
		case models.RoleDeptHead, models.RoleAuditee:
			return sameDepartment(p, session)
		default:
			return false
		}
	case models.OpSubmitVerification:
		return policy.CanEditAuditorFields(p, session)
	case models.OpApproveCompletion:
		return p.Role == models.RoleDeptHead && sameDepartment(p, session)
	case models.OpDelete:
		return policy.CanDelete(p, session)
	default:
		return false
	}
}

// ScopeFilter narrows a session filter to what the principal may see. The
// second return is false when the principal can see no sessions at all
// (a department-scoped role with no department assigned). The repository
// applies the auditor scope as "assigned to me or unassigned".
func (AuditPolicy) ScopeFilter(p models.Principal, filter models.AuditFilter) (models.AuditFilter, bool) {
	switch p.Role {
	case models.RoleSuperAdmin, models.RoleAdmin, models.RoleAuditorLead:
		return filter, true
	case models.RoleAuditor:
		filter.AssignedAuditorID = p.UserID
		return filter, true
	case models.RoleDeptHead, models.RoleAuditee:
		if p.Department == nil {
			return filter, false
		}
		filter.Department = *p.Department
		return filter, true
	default:
		return filter, false
	}
}

// CanManageEntities reports whether the principal may administer master data
// (units, master questions, settings, users).
func (AuditPolicy) CanManageEntities(p models.Principal) bool {
	return p.Role == models.RoleSuperAdmin || p.Role == models.RoleAdmin
}

// CanManageUser reports whether the actor may modify or delete the target
// account. SuperAdmin accounts are protected from non-SuperAdmin actors.
func (policy AuditPolicy) CanManageUser(p models.Principal, target *models.User) bool {
	if !policy.CanManageEntities(p) {
		return false
	}
	if target.Role == models.RoleSuperAdmin && p.Role != models.RoleSuperAdmin {
		return false
	}
	return true
}

// transitionRule drives the state machine: the states an operation accepts
// and the state it produces.
type transitionRule struct {
	from []models.AuditStatus
	to   models.AuditStatus
}

var transitionRules = map[models.AuditOperation]transitionRule{
	models.OpConfirmSchedule:      {from: []models.AuditStatus{models.StatusPendingScheduling}, to: models.StatusPlanned},
	models.OpStart:                {from: []models.AuditStatus{models.StatusPlanned}, to: models.StatusInProgress},
	models.OpSubmitSelfAssessment: {from: []models.AuditStatus{models.StatusInProgress}, to: models.StatusSubmitted},
	models.OpSubmitVerification:   {from: []models.AuditStatus{models.StatusSubmitted, models.StatusInProgress}, to: models.StatusReviewDeptHead},
	models.OpApproveCompletion:    {from: []models.AuditStatus{models.StatusReviewDeptHead}, to: models.StatusCompleted},
}

// NextStatus resolves the target state for an operation given the current
// state. It returns an error naming both states when the operation does not
// apply, so callers can surface a precise precondition failure.
func NextStatus(current models.AuditStatus, op models.AuditOperation) (models.AuditStatus, error) {
	rule, ok := transitionRules[op]
	if !ok {
		return "", fmt.Errorf("operation %s is not a status transition", op)
	}
	for _, s := range rule.from {
		if s == current {
			return rule.to, nil
		}
	}
	return "", fmt.Errorf("operation %s requires status %s, current status is %s", op, rule.from[0], current)
}
