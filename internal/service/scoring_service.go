package service

import (
	"math"

	"github.com/noah-isme/ami-audit-api/internal/models"

	appErrors "github.com/noah-isme/ami-audit-api/pkg/errors"
)

// Numeric values assigned to auditor verdicts.
const (
	scoreCompliant    = 4.0
	scoreObservation  = 3.0
	scoreNonCompliant = 2.0

	manualScoreMin = 2.0
	manualScoreMax = 4.0
)

// ScoreOverride is a per-item what-if adjustment used by simulations. A
// manual value wins over a verdict override; verdict overrides win over the
// stored verdict. Overrides are never persisted.
type ScoreOverride struct {
	Compliance *models.Compliance `json:"compliance,omitempty"`
	Manual     *float64           `json:"manual,omitempty"`
}

// ItemScore is the effective score of one instrument item.
type ItemScore struct {
	QuestionID string   `json:"question_id"`
	Category   string   `json:"category"`
	Score      *float64 `json:"score,omitempty"`
	Source     string   `json:"source"`
}

// Item score sources.
const (
	ScoreSourceVerdict  = "verdict"
	ScoreSourceOverride = "override"
	ScoreSourceManual   = "manual"
	ScoreSourceUnscored = "unscored"
)

// ScoreResult is the aggregate outcome of scoring a session.
type ScoreResult struct {
	Score       float64          `json:"score"`
	Predicate   models.Predicate `json:"predicate"`
	ScoredItems int              `json:"scored_items"`
	TotalItems  int              `json:"total_items"`
	Items       []ItemScore      `json:"items"`
}

// ScoringService computes accreditation scores and predicates from auditor
// verdicts. It is deliberately free of I/O so that live scoring and what-if
// simulation share one code path.
type ScoringService struct{}

// NewScoringService creates the scoring engine.
func NewScoringService() *ScoringService {
	return &ScoringService{}
}

// ComplianceScore maps a verdict to its numeric value.
func ComplianceScore(c models.Compliance) float64 {
	switch c {
	case models.ComplianceCompliant:
		return scoreCompliant
	case models.ComplianceObservation:
		return scoreObservation
	default:
		return scoreNonCompliant
	}
}

// ClampManual bounds a manual override to the valid score range.
func ClampManual(v float64) float64 {
	if v < manualScoreMin {
		return manualScoreMin
	}
	if v > manualScoreMax {
		return manualScoreMax
	}
	return v
}

// ClassifyPredicate maps a mean score onto the accreditation band. A session
// with no scored items is not yet accreditable regardless of the mean.
func ClassifyPredicate(mean float64, scoredItems int) models.Predicate {
	if scoredItems == 0 {
		return models.PredicateBelumTerakreditasi
	}
	switch {
	case mean >= 3.61:
		return models.PredicateUnggul
	case mean >= 3.01:
		return models.PredicateBaikSekali
	case mean >= 2.00:
		return models.PredicateBaik
	default:
		return models.PredicateTidakTerakreditasi
	}
}

// Score computes the effective score of every item and the session mean.
// Only auditor verdicts count; auditee self assessments never contribute.
// Items without a verdict and without an override are excluded from the
// mean rather than treated as zero.
func (s *ScoringService) Score(session *models.AuditSession, overrides map[string]ScoreOverride) ScoreResult {
	result := ScoreResult{
		TotalItems: len(session.Questions),
		Items:      make([]ItemScore, 0, len(session.Questions)),
	}

	var sum float64
	for i := range session.Questions {
		q := &session.Questions[i]
		item := ItemScore{QuestionID: q.ID, Category: q.Category, Source: ScoreSourceUnscored}

		if ov, ok := overrides[q.ID]; ok && ov.Manual != nil {
			v := ClampManual(*ov.Manual)
			item.Score = &v
			item.Source = ScoreSourceManual
		} else if ok && ov.Compliance != nil {
			v := ComplianceScore(*ov.Compliance)
			item.Score = &v
			item.Source = ScoreSourceOverride
		} else if q.Compliance != nil {
			v := ComplianceScore(*q.Compliance)
			item.Score = &v
			item.Source = ScoreSourceVerdict
		}

		if item.Score != nil {
			sum += *item.Score
			result.ScoredItems++
		}
		result.Items = append(result.Items, item)
	}

	// Classify on the exact mean; the band edges are sharp and rounding
	// first would lift means just below a threshold into the next band.
	var mean float64
	if result.ScoredItems > 0 {
		mean = sum / float64(result.ScoredItems)
	}
	result.Predicate = ClassifyPredicate(mean, result.ScoredItems)
	// Round to two decimals for stable presentation.
	result.Score = math.Round(mean*100) / 100
	return result
}

// ValidateOverrides rejects overrides that reference unknown items or carry
// unknown verdict values. Manual scores outside the valid range are clamped
// later, not rejected.
func (s *ScoringService) ValidateOverrides(session *models.AuditSession, overrides map[string]ScoreOverride) error {
	for id, ov := range overrides {
		if session.Question(id) == nil {
			return appErrors.Clone(appErrors.ErrValidation, "unknown question id in simulation: "+id)
		}
		if ov.Compliance != nil && !models.ValidCompliance(*ov.Compliance) {
			return appErrors.Clone(appErrors.ErrValidation, "invalid compliance value in simulation")
		}
	}
	return nil
}
