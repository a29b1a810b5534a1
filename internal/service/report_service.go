package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ami-audit-api/internal/models"
	appErrors "github.com/noah-isme/ami-audit-api/pkg/errors"
	"github.com/noah-isme/ami-audit-api/pkg/export"
)

// reportAnalyzer produces narrative enrichment for a finished report.
type reportAnalyzer interface {
	AnalyzeSession(ctx context.Context, session *models.AuditSession, score ScoreResult) (*models.ReportAnalysis, error)
	Enabled() bool
}

// ComplianceReport is the assembled report for one audit session.
type ComplianceReport struct {
	Session     *models.AuditSession `json:"session"`
	Score       ScoreResult          `json:"score"`
	GeneratedAt time.Time            `json:"generated_at"`
}

// ReportService assembles compliance reports and renders them as CSV or
// PDF. AI enrichment is optional and never blocks report generation.
type ReportService struct {
	audits   *AuditService
	scoring  *ScoringService
	analyzer reportAnalyzer
	policy   AuditPolicy
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
}

// NewReportService creates an instance of ReportService. The analyzer may
// be nil when AI enrichment is disabled.
func NewReportService(audits *AuditService, scoring *ScoringService, analyzer reportAnalyzer, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		audits:   audits,
		scoring:  scoring,
		analyzer: analyzer,
		policy:   NewAuditPolicy(),
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
	}
}

// Build assembles the report for a session visible to the principal.
func (s *ReportService) Build(ctx context.Context, p models.Principal, sessionID string) (*ComplianceReport, error) {
	session, err := s.audits.Get(ctx, p, sessionID)
	if err != nil {
		return nil, err
	}
	return &ComplianceReport{
		Session:     session,
		Score:       s.scoring.Score(session, nil),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// Simulate scores the session with transient what-if overrides. Nothing is
// persisted.
func (s *ReportService) Simulate(ctx context.Context, p models.Principal, sessionID string, overrides map[string]ScoreOverride) (*ComplianceReport, error) {
	session, err := s.audits.Get(ctx, p, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.scoring.ValidateOverrides(session, overrides); err != nil {
		return nil, err
	}
	return &ComplianceReport{
		Session:     session,
		Score:       s.scoring.Score(session, overrides),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func complianceLabel(c *models.Compliance) string {
	if c == nil {
		return ""
	}
	return string(*c)
}

func (s *ReportService) dataset(report *ComplianceReport) export.Dataset {
	headers := []string{"No", "Kategori", "Pertanyaan", "Asesmen Mandiri", "Hasil Verifikasi", "Skor", "Catatan Auditor", "Rencana Tindak Lanjut"}
	rows := make([][]string, 0, len(report.Session.Questions))
	for i, q := range report.Session.Questions {
		score := ""
		if item := report.Score.Items[i]; item.Score != nil {
			score = fmt.Sprintf("%.2f", *item.Score)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			q.Category,
			q.QuestionText,
			complianceLabel(q.SelfAssessment),
			complianceLabel(q.Compliance),
			score,
			q.AuditorNotes,
			q.ActionPlan,
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

// ExportCSV renders the report as CSV.
func (s *ReportService) ExportCSV(ctx context.Context, p models.Principal, sessionID string) ([]byte, string, error) {
	report, err := s.Build(ctx, p, sessionID)
	if err != nil {
		return nil, "", err
	}
	data, err := s.csv.Render(s.dataset(report))
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
	}
	filename := fmt.Sprintf("laporan-ami-%s-%s.csv", report.Session.Department, report.GeneratedAt.Format("20060102"))
	return data, filename, nil
}

// ExportPDF renders the report as PDF with a score summary block.
func (s *ReportService) ExportPDF(ctx context.Context, p models.Principal, sessionID string) ([]byte, string, error) {
	report, err := s.Build(ctx, p, sessionID)
	if err != nil {
		return nil, "", err
	}

	summary := []string{
		fmt.Sprintf("Unit: %s", report.Session.Department),
		fmt.Sprintf("Standar: %s", report.Session.Standard),
		fmt.Sprintf("Tanggal Audit: %s", report.Session.Date.Format("2006-01-02")),
		fmt.Sprintf("Skor Akhir: %.2f (%d dari %d butir ternilai)", report.Score.Score, report.Score.ScoredItems, report.Score.TotalItems),
		fmt.Sprintf("Predikat: %s", report.Score.Predicate),
	}
	if report.Session.AISummary != nil {
		summary = append(summary, "Ringkasan: "+*report.Session.AISummary)
	}

	data, err := s.pdf.Render(s.dataset(report), "Laporan Audit Mutu Internal: "+report.Session.Name, summary)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
	}
	filename := fmt.Sprintf("laporan-ami-%s-%s.pdf", report.Session.Department, report.GeneratedAt.Format("20060102"))
	return data, filename, nil
}

// Enrich runs the AI analyzer over the session and stores the summary and
// recommendations. A failed analysis leaves the session untouched.
func (s *ReportService) Enrich(ctx context.Context, p models.Principal, sessionID string) (*models.AuditSession, error) {
	session, err := s.audits.Get(ctx, p, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanEditAuditorFields(p, session) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role may not enrich reports")
	}
	if s.analyzer == nil || !s.analyzer.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrPrecondition, "report analysis is disabled")
	}

	score := s.scoring.Score(session, nil)
	analysis, err := s.analyzer.AnalyzeSession(ctx, session, score)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "report analysis failed")
	}

	updated, err := s.audits.SetAnalysis(ctx, sessionID, analysis)
	if err != nil {
		return nil, err
	}
	s.logger.Info("report enriched", zap.String("session_id", sessionID))
	return updated, nil
}
