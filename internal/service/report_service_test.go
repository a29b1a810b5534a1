package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ami-audit-api/internal/models"
	appErrors "github.com/noah-isme/ami-audit-api/pkg/errors"
)

type fakeAnalyzer struct {
	enabled  bool
	analysis *models.ReportAnalysis
	err      error
	calls    int
}

func (f *fakeAnalyzer) AnalyzeSession(ctx context.Context, session *models.AuditSession, score ScoreResult) (*models.ReportAnalysis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.analysis, nil
}

func (f *fakeAnalyzer) Enabled() bool { return f.enabled }

func newTestReportService(repo *mockAuditRepo, analyzer reportAnalyzer) *ReportService {
	audits, _, _ := newTestAuditService(repo, nil)
	return NewReportService(audits, NewScoringService(), analyzer, nil)
}

func TestReportBuild(t *testing.T) {
	repo := newMockAuditRepo()
	session := seedSession(repo, models.StatusSubmitted)
	repo.sessions[session.ID].Questions[0].Compliance = compliancePtr(models.ComplianceCompliant)

	svc := newTestReportService(repo, nil)
	report, err := svc.Build(context.Background(), principal(models.RoleAdmin, ""), session.ID)
	require.NoError(t, err)

	assert.Equal(t, 4.0, report.Score.Score)
	assert.Equal(t, models.PredicateUnggul, report.Score.Predicate)
	assert.Equal(t, 1, report.Score.ScoredItems)
	assert.Equal(t, 2, report.Score.TotalItems)
	assert.False(t, report.GeneratedAt.IsZero())
}

func TestReportBuildOutsideScope(t *testing.T) {
	repo := newMockAuditRepo()
	session := seedSession(repo, models.StatusSubmitted)

	svc := newTestReportService(repo, nil)
	_, err := svc.Build(context.Background(), principal(models.RoleAuditee, "Mesin"), session.ID)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestReportSimulateAppliesOverrides(t *testing.T) {
	repo := newMockAuditRepo()
	session := seedSession(repo, models.StatusSubmitted)
	repo.sessions[session.ID].Questions[0].Compliance = compliancePtr(models.ComplianceNonCompliant)

	svc := newTestReportService(repo, nil)
	manual := 10.0
	report, err := svc.Simulate(context.Background(), principal(models.RoleAuditorLead, ""), session.ID, map[string]ScoreOverride{
		"q-1": {Compliance: compliancePtr(models.ComplianceCompliant)},
		"q-2": {Manual: &manual},
	})
	require.NoError(t, err)

	assert.Equal(t, 4.0, report.Score.Score, "verdict override plus clamped manual")
	assert.Equal(t, ScoreSourceOverride, report.Score.Items[0].Source)
	assert.Equal(t, ScoreSourceManual, report.Score.Items[1].Source)
	assert.Equal(t, 4.0, *report.Score.Items[1].Score)

	// Simulation must never write back.
	assert.Equal(t, 0, repo.updateCalls)
	stored, _ := repo.FindByID(context.Background(), session.ID)
	assert.Nil(t, stored.Questions[1].Compliance)
}

func TestReportSimulateRejectsUnknownQuestion(t *testing.T) {
	repo := newMockAuditRepo()
	session := seedSession(repo, models.StatusSubmitted)

	svc := newTestReportService(repo, nil)
	_, err := svc.Simulate(context.Background(), principal(models.RoleAdmin, ""), session.ID, map[string]ScoreOverride{
		"q-404": {Compliance: compliancePtr(models.ComplianceCompliant)},
	})

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestReportExportCSV(t *testing.T) {
	repo := newMockAuditRepo()
	session := seedSession(repo, models.StatusSubmitted)
	repo.sessions[session.ID].Questions[0].Compliance = compliancePtr(models.ComplianceObservation)

	svc := newTestReportService(repo, nil)
	data, filename, err := svc.ExportCSV(context.Background(), principal(models.RoleAdmin, ""), session.ID)
	require.NoError(t, err)

	expected := fmt.Sprintf("laporan-ami-Teknik Informatika-%s.csv", time.Now().UTC().Format("20060102"))
	assert.Equal(t, expected, filename)

	body := string(data)
	assert.Contains(t, body, "Kategori")
	assert.Contains(t, body, "Pertanyaan pertama")
	assert.Contains(t, body, "3.00")
}

func TestReportExportPDF(t *testing.T) {
	repo := newMockAuditRepo()
	session := seedSession(repo, models.StatusCompleted)
	repo.sessions[session.ID].Questions[0].Compliance = compliancePtr(models.ComplianceCompliant)
	repo.sessions[session.ID].Questions[1].Compliance = compliancePtr(models.ComplianceCompliant)

	svc := newTestReportService(repo, nil)
	data, filename, err := svc.ExportPDF(context.Background(), principal(models.RoleAdmin, ""), session.ID)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(filename, ".pdf"))
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}

func TestReportEnrichForbiddenRole(t *testing.T) {
	repo := newMockAuditRepo()
	session := seedSession(repo, models.StatusSubmitted)

	svc := newTestReportService(repo, &fakeAnalyzer{enabled: true})
	_, err := svc.Enrich(context.Background(), principal(models.RoleAuditee, "Teknik Informatika"), session.ID)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestReportEnrichDisabled(t *testing.T) {
	repo := newMockAuditRepo()
	session := seedSession(repo, models.StatusSubmitted)

	for _, analyzer := range []reportAnalyzer{nil, &fakeAnalyzer{enabled: false}} {
		svc := newTestReportService(repo, analyzer)
		_, err := svc.Enrich(context.Background(), principal(models.RoleAuditorLead, ""), session.ID)

		var appErr *appErrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, appErrors.ErrPrecondition.Code, appErr.Code)
	}
}

func TestReportEnrichAnalyzerFailure(t *testing.T) {
	repo := newMockAuditRepo()
	session := seedSession(repo, models.StatusSubmitted)

	analyzer := &fakeAnalyzer{enabled: true, err: errors.New("model timeout")}
	svc := newTestReportService(repo, analyzer)
	_, err := svc.Enrich(context.Background(), principal(models.RoleAuditorLead, ""), session.ID)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUpstream.Code, appErr.Code)

	stored, _ := repo.FindByID(context.Background(), session.ID)
	assert.Nil(t, stored.AISummary)
	assert.Equal(t, 0, repo.updateCalls)
}

func TestReportEnrichStoresAnalysis(t *testing.T) {
	repo := newMockAuditRepo()
	session := seedSession(repo, models.StatusSubmitted)

	analyzer := &fakeAnalyzer{enabled: true, analysis: &models.ReportAnalysis{
		Summary:         "Capaian mutu baik dengan catatan pada dokumentasi.",
		Recommendations: []string{"Lengkapi bukti dokumen renstra", "Perbarui SOP monitoring"},
	}}
	svc := newTestReportService(repo, analyzer)

	updated, err := svc.Enrich(context.Background(), principal(models.RoleAuditorLead, ""), session.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.AISummary)
	assert.Equal(t, analyzer.analysis.Summary, *updated.AISummary)
	assert.Len(t, updated.AIRecommendations, 2)
	assert.Equal(t, 1, analyzer.calls)

	stored, _ := repo.FindByID(context.Background(), session.ID)
	require.NotNil(t, stored.AISummary)
	assert.Equal(t, analyzer.analysis.Summary, *stored.AISummary)
}
