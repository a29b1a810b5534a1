package models

import "time"

// TrailAction constants represent actions recorded in the audit trail.
const (
	TrailActionLogin           = "LOGIN"
	TrailActionLogout          = "LOGOUT"
	TrailActionUserCreate      = "USER_CREATE"
	TrailActionUserUpdate      = "USER_UPDATE"
	TrailActionUserDelete      = "USER_DELETE"
	TrailActionPasswordChange  = "PASSWORD_CHANGE"
	TrailActionUnitCreate      = "UNIT_CREATE"
	TrailActionUnitUpdate      = "UNIT_UPDATE"
	TrailActionUnitDelete      = "UNIT_DELETE"
	TrailActionQuestionCreate  = "QUESTION_CREATE"
	TrailActionQuestionUpdate  = "QUESTION_UPDATE"
	TrailActionQuestionDelete  = "QUESTION_DELETE"
	TrailActionSettingsUpdate  = "SETTINGS_UPDATE"
	TrailActionAuditSchedule   = "AUDIT_SCHEDULE"
	TrailActionAuditTransition = "AUDIT_TRANSITION"
	TrailActionAuditDelete     = "AUDIT_DELETE"
)

// TrailRecord represents an audit trail entry for administrative actions.
type TrailRecord struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
