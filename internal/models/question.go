package models

import "time"

// Standard identifies an accreditation framework whose instrument (question
// set) is applied during an audit.
type Standard string

const (
	StandardBANPT              Standard = "BAN_PT"
	StandardLAMTeknik          Standard = "LAM_TEKNIK"
	StandardLAMInfokom         Standard = "LAM_INFOKOM"
	StandardPermendiktisaintek Standard = "PERMENDIKTISAINTEK_2025"
)

// KnownStandards lists the supported accreditation frameworks.
var KnownStandards = []Standard{
	StandardBANPT,
	StandardLAMTeknik,
	StandardLAMInfokom,
	StandardPermendiktisaintek,
}

// ValidStandard reports whether the value names a supported framework.
func ValidStandard(s Standard) bool {
	for _, known := range KnownStandards {
		if s == known {
			return true
		}
	}
	return false
}

// MasterQuestion is a reusable instrument item belonging to one standard.
// A snapshot of matching questions is copied into an audit session at
// creation time; later template edits never touch in-flight audits.
type MasterQuestion struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Standard  Standard  `db:"standard" json:"standard"`
	Category  string    `db:"category" json:"category"`
	Text      string    `db:"text" json:"text"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// QuestionFilter captures filtering criteria for listing master questions.
type QuestionFilter struct {
	Standard *Standard
	Category string
	Search   string
	Page     int
	PageSize int
}
