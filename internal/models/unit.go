package models

import "time"

// UnitType enumerates kinds of organizational nodes.
type UnitType string

const (
	UnitTypeProgram     UnitType = "PROGRAM"
	UnitTypeFaculty     UnitType = "FACULTY"
	UnitTypeDirectorate UnitType = "DIRECTORATE"
)

// TopLevelFaculty marks a unit without a parent faculty.
const TopLevelFaculty = "-"

// Unit represents an organizational node (program, faculty, directorate).
// Audit sessions reference units by denormalized name, so deleting a unit
// never cascades into existing sessions.
type Unit struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Type      UnitType  `db:"type" json:"type"`
	Faculty   string    `db:"faculty" json:"faculty"`
	Head      string    `db:"head" json:"head"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// UnitFilter captures filtering criteria for listing units.
type UnitFilter struct {
	Type     *UnitType
	Faculty  string
	Search   string
	Page     int
	PageSize int
}
