package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/ami-audit-api/internal/models"
	"github.com/noah-isme/ami-audit-api/pkg/config"
)

// AIClient talks to the external AI collaborator over HTTP. Two endpoints
// are used: checklist generation at scheduling time and narrative analysis
// for reports. Both are plain JSON POSTs with bearer auth.
type AIClient struct {
	baseURL string
	apiKey  string
	enabled bool
	client  *http.Client
	logger  *zap.Logger
}

// NewAIClient builds the collaborator client from configuration. A disabled
// client still satisfies the interfaces and reports Enabled() == false.
func NewAIClient(cfg config.GeneratorConfig, logger *zap.Logger) *AIClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AIClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		enabled: cfg.Enabled && cfg.BaseURL != "",
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

// Enabled reports whether the collaborator is configured and active.
func (c *AIClient) Enabled() bool {
	return c.enabled
}

func (c *AIClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call collaborator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collaborator returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type checklistRequest struct {
	Standard   string `json:"standard"`
	Department string `json:"department"`
}

type checklistResponse struct {
	Items []struct {
		Category     string `json:"category"`
		QuestionText string `json:"question_text"`
	} `json:"items"`
}

// GenerateChecklist asks the collaborator for an audit instrument tailored
// to the department. Ids are assigned by the caller.
func (c *AIClient) GenerateChecklist(ctx context.Context, standard models.Standard, department string) ([]models.AuditQuestion, error) {
	if !c.enabled {
		return nil, fmt.Errorf("checklist generator is disabled")
	}
	var resp checklistResponse
	err := c.post(ctx, "/v1/checklists", checklistRequest{Standard: string(standard), Department: department}, &resp)
	if err != nil {
		c.logger.Warn("checklist generation failed",
			zap.String("standard", string(standard)),
			zap.String("department", department),
			zap.Error(err))
		return nil, err
	}
	questions := make([]models.AuditQuestion, 0, len(resp.Items))
	for _, item := range resp.Items {
		questions = append(questions, models.AuditQuestion{
			Category:     item.Category,
			QuestionText: item.QuestionText,
		})
	}
	return questions, nil
}

type analysisRequest struct {
	SessionName string               `json:"session_name"`
	Department  string               `json:"department"`
	Standard    string               `json:"standard"`
	Score       float64              `json:"score"`
	Predicate   string               `json:"predicate"`
	Findings    []analysisFindingRow `json:"findings"`
}

type analysisFindingRow struct {
	Category     string `json:"category"`
	QuestionText string `json:"question_text"`
	Compliance   string `json:"compliance,omitempty"`
	AuditorNotes string `json:"auditor_notes,omitempty"`
}

type analysisResponse struct {
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
}

// AnalyzeSession asks the collaborator for a narrative summary and
// recommendations over the scored session.
func (c *AIClient) AnalyzeSession(ctx context.Context, session *models.AuditSession, score ScoreResult) (*models.ReportAnalysis, error) {
	if !c.enabled {
		return nil, fmt.Errorf("report analyzer is disabled")
	}
	req := analysisRequest{
		SessionName: session.Name,
		Department:  session.Department,
		Standard:    string(session.Standard),
		Score:       score.Score,
		Predicate:   string(score.Predicate),
	}
	for _, q := range session.Questions {
		row := analysisFindingRow{Category: q.Category, QuestionText: q.QuestionText, AuditorNotes: q.AuditorNotes}
		if q.Compliance != nil {
			row.Compliance = string(*q.Compliance)
		}
		req.Findings = append(req.Findings, row)
	}

	var resp analysisResponse
	if err := c.post(ctx, "/v1/analysis", req, &resp); err != nil {
		c.logger.Warn("report analysis failed", zap.String("session_id", session.ID), zap.Error(err))
		return nil, err
	}
	return &models.ReportAnalysis{Summary: resp.Summary, Recommendations: resp.Recommendations}, nil
}
