package models

import "time"

// SystemSettings is the process-wide configuration singleton with
// get/replace semantics.
type SystemSettings struct {
	AppName         string    `db:"app_name" json:"app_name"`
	LogoURL         string    `db:"logo_url" json:"logo_url"`
	DefaultStandard Standard  `db:"default_standard" json:"default_standard"`
	AuditPeriod     string    `db:"audit_period" json:"audit_period"`
	UpdatedBy       *string   `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
