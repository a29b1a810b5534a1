package models

// Predicate is the accreditation band derived from the mean item score.
type Predicate string

const (
	PredicateUnggul             Predicate = "Unggul"
	PredicateBaikSekali         Predicate = "Baik Sekali"
	PredicateBaik               Predicate = "Baik"
	PredicateTidakTerakreditasi Predicate = "Tidak Terakreditasi"
	PredicateBelumTerakreditasi Predicate = "Belum Terakreditasi"
)

// ReportAnalysis is the narrative enrichment produced for a finished audit.
type ReportAnalysis struct {
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
}
