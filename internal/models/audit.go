package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AuditStatus is the lifecycle state of an audit session.
type AuditStatus string

const (
	StatusPendingScheduling AuditStatus = "PENDING_SCHEDULING"
	StatusPlanned           AuditStatus = "PLANNED"
	StatusInProgress        AuditStatus = "IN_PROGRESS"
	StatusSubmitted         AuditStatus = "SUBMITTED"
	StatusReviewDeptHead    AuditStatus = "REVIEW_DEPT_HEAD"
	StatusCompleted         AuditStatus = "COMPLETED"
)

// Compliance is a judgment on a single instrument item. The auditor verdict
// and the auditee self-assessment both use this scale but are independent.
type Compliance string

const (
	ComplianceCompliant    Compliance = "COMPLIANT"
	ComplianceObservation  Compliance = "OBSERVATION"
	ComplianceNonCompliant Compliance = "NON_COMPLIANT"
)

// ValidCompliance reports whether the value is a known verdict.
func ValidCompliance(c Compliance) bool {
	switch c {
	case ComplianceCompliant, ComplianceObservation, ComplianceNonCompliant:
		return true
	default:
		return false
	}
}

// NextCompliance cycles Compliant -> Observation -> Non-Compliant -> Compliant.
func NextCompliance(c Compliance) Compliance {
	switch c {
	case ComplianceCompliant:
		return ComplianceObservation
	case ComplianceObservation:
		return ComplianceNonCompliant
	default:
		return ComplianceCompliant
	}
}

// AuditQuestion is one instrument item instantiated for a specific audit run.
// Items are mutated in place during execution, never added or removed.
type AuditQuestion struct {
	ID                 string      `json:"id"`
	Category           string      `json:"category"`
	QuestionText       string      `json:"question_text"`
	Compliance         *Compliance `json:"compliance,omitempty"`
	SelfAssessment     *Compliance `json:"self_assessment,omitempty"`
	Evidence           string      `json:"evidence,omitempty"`
	EvidenceFileName   string      `json:"evidence_file_name,omitempty"`
	AuditorNotes       string      `json:"auditor_notes,omitempty"`
	ActionPlan         string      `json:"action_plan,omitempty"`
	ActionPlanDeadline *time.Time  `json:"action_plan_deadline,omitempty"`
}

// AuditQuestions is the JSONB-backed question snapshot of a session.
type AuditQuestions []AuditQuestion

// Value implements driver.Valuer for JSONB storage.
func (q AuditQuestions) Value() (driver.Value, error) {
	if q == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(q)
}

// Scan implements sql.Scanner for JSONB storage.
func (q *AuditQuestions) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*q = nil
		return nil
	case []byte:
		return json.Unmarshal(v, q)
	case string:
		return json.Unmarshal([]byte(v), q)
	default:
		return fmt.Errorf("unsupported scan type %T for AuditQuestions", src)
	}
}

// StringList is a JSONB-backed string slice (AI recommendations).
type StringList []string

// Value implements driver.Valuer for JSONB storage.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner for JSONB storage.
func (l *StringList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported scan type %T for StringList", src)
	}
}

// AuditSession is the central aggregate. The question snapshot is fixed in
// length and id set once created; version guards concurrent transitions.
type AuditSession struct {
	ID                string         `db:"id" json:"id"`
	Name              string         `db:"name" json:"name"`
	Department        string         `db:"department" json:"department"`
	Standard          Standard       `db:"standard" json:"standard"`
	Status            AuditStatus    `db:"status" json:"status"`
	Date              time.Time      `db:"date" json:"date"`
	AuditeeDeadline   time.Time      `db:"auditee_deadline" json:"auditee_deadline"`
	AuditorDeadline   time.Time      `db:"auditor_deadline" json:"auditor_deadline"`
	AssignedAuditorID *string        `db:"assigned_auditor_id" json:"assigned_auditor_id,omitempty"`
	Questions         AuditQuestions `db:"questions" json:"questions"`
	AISummary         *string        `db:"ai_summary" json:"ai_summary,omitempty"`
	AIRecommendations StringList     `db:"ai_recommendations" json:"ai_recommendations,omitempty"`
	Version           int            `db:"version" json:"version"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// Overdue reports whether the scheduled date has passed without the audit
// being started. Advisory only; it never auto-transitions state.
func (s *AuditSession) Overdue(now time.Time) bool {
	if s.Status != StatusPlanned && s.Status != StatusPendingScheduling {
		return false
	}
	return s.Date.Before(now.Truncate(24 * time.Hour))
}

// Question returns the embedded question with the given id, or nil.
func (s *AuditSession) Question(id string) *AuditQuestion {
	for i := range s.Questions {
		if s.Questions[i].ID == id {
			return &s.Questions[i]
		}
	}
	return nil
}

// AuditFilter captures filtering criteria for listing audit sessions.
type AuditFilter struct {
	Department        string
	Status            *AuditStatus
	Standard          *Standard
	AssignedAuditorID string
	Search            string
	Page              int
	PageSize          int
}

// AuditOperation names a lifecycle transition for policy checks.
type AuditOperation string

const (
	OpSchedule             AuditOperation = "SCHEDULE"
	OpConfirmSchedule      AuditOperation = "CONFIRM_SCHEDULE"
	OpStart                AuditOperation = "START"
	OpSubmitSelfAssessment AuditOperation = "SUBMIT_SELF_ASSESSMENT"
	OpSubmitVerification   AuditOperation = "SUBMIT_VERIFICATION"
	OpApproveCompletion    AuditOperation = "APPROVE_COMPLETION"
	OpReschedule           AuditOperation = "RESCHEDULE"
	OpDelete               AuditOperation = "DELETE"
)

// AuditEventType enumerates domain events emitted by lifecycle transitions.
type AuditEventType string

const (
	EventAuditScheduled          AuditEventType = "AUDIT_SCHEDULED"
	EventAuditConfirmed          AuditEventType = "AUDIT_CONFIRMED"
	EventAuditStarted            AuditEventType = "AUDIT_STARTED"
	EventSelfAssessmentSubmitted AuditEventType = "SELF_ASSESSMENT_SUBMITTED"
	EventVerificationSubmitted   AuditEventType = "VERIFICATION_SUBMITTED"
	EventAuditCompleted          AuditEventType = "AUDIT_COMPLETED"
	EventAuditRescheduled        AuditEventType = "AUDIT_RESCHEDULED"
)

// AuditEvent is a domain event describing a committed lifecycle transition.
// The engine returns events instead of notifying directly; the dispatcher
// resolves audiences and fans out notifications.
type AuditEvent struct {
	Type              AuditEventType `json:"type"`
	SessionID         string         `json:"session_id"`
	SessionName       string         `json:"session_name"`
	Department        string         `json:"department"`
	AssignedAuditorID *string        `json:"assigned_auditor_id,omitempty"`
	Date              time.Time      `json:"date"`
	OccurredAt        time.Time      `json:"occurred_at"`
}
