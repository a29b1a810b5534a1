package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ami-audit-api/internal/models"
)

func compliancePtr(c models.Compliance) *models.Compliance { return &c }

func scoredSession(verdicts ...*models.Compliance) *models.AuditSession {
	session := &models.AuditSession{ID: "sess-1"}
	for i, v := range verdicts {
		session.Questions = append(session.Questions, models.AuditQuestion{
			ID:         string(rune('a' + i)),
			Compliance: v,
		})
	}
	return session
}

func TestComplianceScoreMapping(t *testing.T) {
	assert.Equal(t, 4.0, ComplianceScore(models.ComplianceCompliant))
	assert.Equal(t, 3.0, ComplianceScore(models.ComplianceObservation))
	assert.Equal(t, 2.0, ComplianceScore(models.ComplianceNonCompliant))
}

func TestClassifyPredicateBands(t *testing.T) {
	cases := []struct {
		mean   float64
		scored int
		want   models.Predicate
	}{
		{3.61, 5, models.PredicateUnggul},
		{4.00, 5, models.PredicateUnggul},
		{3.60, 5, models.PredicateBaikSekali},
		{3.01, 5, models.PredicateBaikSekali},
		{3.00, 5, models.PredicateBaik},
		{2.00, 5, models.PredicateBaik},
		{1.99, 5, models.PredicateTidakTerakreditasi},
		{0, 0, models.PredicateBelumTerakreditasi},
		{3.80, 0, models.PredicateBelumTerakreditasi},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyPredicate(tc.mean, tc.scored), "mean %.2f scored %d", tc.mean, tc.scored)
	}
}

func TestScoreMeanIgnoresUnscored(t *testing.T) {
	svc := NewScoringService()
	session := scoredSession(
		compliancePtr(models.ComplianceCompliant),
		compliancePtr(models.ComplianceNonCompliant),
		nil,
	)

	result := svc.Score(session, nil)
	assert.Equal(t, 3.0, result.Score, "unscored item must not drag the mean down")
	assert.Equal(t, 2, result.ScoredItems)
	assert.Equal(t, 3, result.TotalItems)
	assert.Equal(t, models.PredicateBaik, result.Predicate)
	assert.Equal(t, ScoreSourceUnscored, result.Items[2].Source)
	assert.Nil(t, result.Items[2].Score)
}

func TestScoreSelfAssessmentNeverCounts(t *testing.T) {
	svc := NewScoringService()
	session := scoredSession(nil)
	session.Questions[0].SelfAssessment = compliancePtr(models.ComplianceCompliant)

	result := svc.Score(session, nil)
	assert.Equal(t, 0, result.ScoredItems)
	assert.Equal(t, models.PredicateBelumTerakreditasi, result.Predicate)
}

func TestScoreWithVerdictOverride(t *testing.T) {
	svc := NewScoringService()
	session := scoredSession(compliancePtr(models.ComplianceNonCompliant))

	result := svc.Score(session, map[string]ScoreOverride{
		"a": {Compliance: compliancePtr(models.ComplianceCompliant)},
	})
	assert.Equal(t, 4.0, result.Score)
	assert.Equal(t, ScoreSourceOverride, result.Items[0].Source)

	// Overrides are transient; the session verdict is untouched.
	assert.Equal(t, models.ComplianceNonCompliant, *session.Questions[0].Compliance)
}

func TestScoreManualOverrideClamped(t *testing.T) {
	svc := NewScoringService()
	session := scoredSession(compliancePtr(models.ComplianceCompliant))

	low := 0.5
	result := svc.Score(session, map[string]ScoreOverride{"a": {Manual: &low}})
	require.NotNil(t, result.Items[0].Score)
	assert.Equal(t, 2.0, *result.Items[0].Score)
	assert.Equal(t, ScoreSourceManual, result.Items[0].Source)

	high := 9.9
	result = svc.Score(session, map[string]ScoreOverride{"a": {Manual: &high}})
	assert.Equal(t, 4.0, *result.Items[0].Score)
}

func TestScoreManualBeatsVerdictOverride(t *testing.T) {
	svc := NewScoringService()
	session := scoredSession(nil)

	manual := 3.5
	result := svc.Score(session, map[string]ScoreOverride{"a": {
		Compliance: compliancePtr(models.ComplianceNonCompliant),
		Manual:     &manual,
	}})
	assert.Equal(t, 3.5, *result.Items[0].Score)
	assert.Equal(t, ScoreSourceManual, result.Items[0].Source)
}

func TestValidateOverrides(t *testing.T) {
	svc := NewScoringService()
	session := scoredSession(nil)

	err := svc.ValidateOverrides(session, map[string]ScoreOverride{"missing": {}})
	assert.Error(t, err)

	bad := models.Compliance("MAYBE")
	err = svc.ValidateOverrides(session, map[string]ScoreOverride{"a": {Compliance: &bad}})
	assert.Error(t, err)

	err = svc.ValidateOverrides(session, map[string]ScoreOverride{"a": {Compliance: compliancePtr(models.ComplianceObservation)}})
	assert.NoError(t, err)
}

func TestScoreRounding(t *testing.T) {
	svc := NewScoringService()
	session := scoredSession(
		compliancePtr(models.ComplianceCompliant),
		compliancePtr(models.ComplianceCompliant),
		compliancePtr(models.ComplianceNonCompliant),
	)

	result := svc.Score(session, nil)
	assert.Equal(t, 3.33, result.Score)
	assert.Equal(t, models.PredicateBaikSekali, result.Predicate)
}

func TestScorePredicateClassifiesExactMean(t *testing.T) {
	svc := NewScoringService()

	// 14 Compliant + 9 Observation: mean 83/23 = 3.6087, which rounds up
	// to 3.61 but sits below the Unggul threshold.
	verdicts := make([]*models.Compliance, 0, 23)
	for i := 0; i < 14; i++ {
		verdicts = append(verdicts, compliancePtr(models.ComplianceCompliant))
	}
	for i := 0; i < 9; i++ {
		verdicts = append(verdicts, compliancePtr(models.ComplianceObservation))
	}
	session := scoredSession(verdicts...)

	result := svc.Score(session, nil)
	assert.Equal(t, 3.61, result.Score)
	assert.Equal(t, models.PredicateBaikSekali, result.Predicate, "displayed rounding must not promote the predicate")
}

func TestScoreIdempotent(t *testing.T) {
	svc := NewScoringService()
	session := scoredSession(
		compliancePtr(models.ComplianceCompliant),
		compliancePtr(models.ComplianceObservation),
		nil,
	)
	manual := 3.5
	overrides := map[string]ScoreOverride{"c": {Manual: &manual}}

	first := svc.Score(session, overrides)
	second := svc.Score(session, overrides)
	assert.Equal(t, first, second)
}

func TestScoreMonotonicOnRaisedVerdict(t *testing.T) {
	svc := NewScoringService()
	ladder := []models.Compliance{
		models.ComplianceNonCompliant,
		models.ComplianceObservation,
		models.ComplianceCompliant,
	}

	prev := -1.0
	for _, verdict := range ladder {
		session := scoredSession(
			compliancePtr(verdict),
			compliancePtr(models.ComplianceObservation),
			compliancePtr(models.ComplianceNonCompliant),
		)
		result := svc.Score(session, nil)
		assert.GreaterOrEqual(t, result.Score, prev, "raising a verdict must never lower the mean")
		prev = result.Score
	}
}
