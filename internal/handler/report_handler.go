package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ami-audit-api/internal/service"
	appErrors "github.com/noah-isme/ami-audit-api/pkg/errors"
	"github.com/noah-isme/ami-audit-api/pkg/response"
)

// ReportHandler wires HTTP endpoints to the report service.
type ReportHandler struct {
	service *service.ReportService
}

// NewReportHandler creates a new handler.
func NewReportHandler(svc *service.ReportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// Get godoc
// @Summary Get compliance report
// @Description Build the scored compliance report for an audit session
// @Tags Reports
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /audits/{id}/report [get]
func (h *ReportHandler) Get(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	report, err := h.service.Build(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, report, nil)
}

// Simulate godoc
// @Summary Simulate score
// @Description What-if scoring with transient overrides, nothing is persisted
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body map[string]service.ScoreOverride true "Overrides keyed by question ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /audits/{id}/report/simulate [post]
func (h *ReportHandler) Simulate(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Overrides map[string]service.ScoreOverride `json:"overrides"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid simulation payload"))
		return
	}

	report, err := h.service.Simulate(c.Request.Context(), p, c.Param("id"), payload.Overrides)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, report, nil)
}

// ExportCSV godoc
// @Summary Export report as CSV
// @Tags Reports
// @Produce text/csv
// @Param id path string true "Session ID"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /audits/{id}/report/export/csv [get]
func (h *ReportHandler) ExportCSV(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	data, filename, err := h.service.ExportCSV(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "text/csv", data)
}

// ExportPDF godoc
// @Summary Export report as PDF
// @Tags Reports
// @Produce application/pdf
// @Param id path string true "Session ID"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /audits/{id}/report/export/pdf [get]
func (h *ReportHandler) ExportPDF(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	data, filename, err := h.service.ExportPDF(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/pdf", data)
}

// Enrich godoc
// @Summary Enrich report with analysis
// @Description Request a narrative analysis from the AI collaborator and store it
// @Tags Reports
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /audits/{id}/report/enrich [post]
func (h *ReportHandler) Enrich(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	session, err := h.service.Enrich(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, session, nil)
}
