package handler

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/noah-isme/ami-audit-api/internal/models"
	"github.com/noah-isme/ami-audit-api/internal/service"
	appErrors "github.com/noah-isme/ami-audit-api/pkg/errors"
	"github.com/noah-isme/ami-audit-api/pkg/response"
	"github.com/noah-isme/ami-audit-api/pkg/storage"
)

// AuditHandler wires HTTP endpoints to the audit lifecycle service. Every
// committed transition fans out notifications, records a metric and drops
// the dashboard cache.
type AuditHandler struct {
	service       *service.AuditService
	notifications *service.NotificationService
	dashboard     *service.DashboardService
	metrics       *service.MetricsService
	storage       *storage.LocalStorage
	signer        *storage.SignedURLSigner
}

// NewAuditHandler creates a new handler.
func NewAuditHandler(
	svc *service.AuditService,
	notifications *service.NotificationService,
	dashboard *service.DashboardService,
	metrics *service.MetricsService,
	store *storage.LocalStorage,
	signer *storage.SignedURLSigner,
) *AuditHandler {
	return &AuditHandler{
		service:       svc,
		notifications: notifications,
		dashboard:     dashboard,
		metrics:       metrics,
		storage:       store,
		signer:        signer,
	}
}

type transitionFn func(ctx context.Context, p models.Principal, id string) (*models.AuditSession, []models.AuditEvent, error)

func (h *AuditHandler) committed(c *gin.Context, op models.AuditOperation, status models.AuditStatus, events []models.AuditEvent) {
	h.metrics.RecordTransition(op, status)
	h.notifications.Dispatch(c.Request.Context(), events)
	if h.dashboard != nil {
		h.dashboard.Invalidate(c.Request.Context())
	}
}

func (h *AuditHandler) runTransition(c *gin.Context, op models.AuditOperation, fn transitionFn) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	session, events, err := fn(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.committed(c, op, session.Status, events)
	response.JSON(c, http.StatusOK, session, nil)
}

// List godoc
// @Summary List audit sessions
// @Description List audit sessions visible to the current user
// @Tags Audits
// @Produce json
// @Param status query string false "Filter by lifecycle status"
// @Param standard query string false "Filter by accreditation standard"
// @Param department query string false "Filter by department"
// @Param search query string false "Search by name or department"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /audits [get]
func (h *AuditHandler) List(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	page, pageSize := pageParams(c)
	filter := models.AuditFilter{
		Department: c.Query("department"),
		Search:     c.Query("search"),
		Page:       page,
		PageSize:   pageSize,
	}
	if status := c.Query("status"); status != "" {
		s := models.AuditStatus(strings.ToUpper(status))
		filter.Status = &s
	}
	if std := c.Query("standard"); std != "" {
		s := models.Standard(strings.ToUpper(std))
		filter.Standard = &s
	}

	sessions, pagination, err := h.service.List(c.Request.Context(), p, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, sessions, pagination)
}

// Get godoc
// @Summary Get audit session
// @Tags Audits
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /audits/{id} [get]
func (h *AuditHandler) Get(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	session, err := h.service.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, session, nil)
}

// Overdue godoc
// @Summary List overdue sessions
// @Description Sessions past their planned date that never started
// @Tags Audits
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /audits/overdue [get]
func (h *AuditHandler) Overdue(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sessions, err := h.service.ListOverdueVisible(c.Request.Context(), p)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, sessions, nil)
}

// Schedule godoc
// @Summary Schedule audit
// @Description Create a new audit session with its instrument snapshot
// @Tags Audits
// @Accept json
// @Produce json
// @Param payload body service.ScheduleAuditRequest true "Schedule payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /audits [post]
func (h *AuditHandler) Schedule(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ScheduleAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid schedule payload"))
		return
	}

	session, events, err := h.service.Schedule(c.Request.Context(), p, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.committed(c, models.OpSchedule, session.Status, events)
	response.Created(c, session)
}

// ConfirmSchedule godoc
// @Summary Confirm audit schedule
// @Tags Audits
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /audits/{id}/confirm [post]
func (h *AuditHandler) ConfirmSchedule(c *gin.Context) {
	h.runTransition(c, models.OpConfirmSchedule, h.service.ConfirmSchedule)
}

// Start godoc
// @Summary Start audit
// @Tags Audits
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /audits/{id}/start [post]
func (h *AuditHandler) Start(c *gin.Context) {
	h.runTransition(c, models.OpStart, h.service.Start)
}

// StartAll godoc
// @Summary Start all planned audits
// @Description Bulk start every session currently in PLANNED
// @Tags Audits
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /audits/start-all [post]
func (h *AuditHandler) StartAll(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	result, events, err := h.service.StartAllPlanned(c.Request.Context(), p)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.committed(c, models.OpStart, models.StatusInProgress, events)
	response.JSON(c, http.StatusOK, result, nil)
}

// SubmitSelfAssessment godoc
// @Summary Submit self assessment
// @Tags Audits
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /audits/{id}/submit-self-assessment [post]
func (h *AuditHandler) SubmitSelfAssessment(c *gin.Context) {
	h.runTransition(c, models.OpSubmitSelfAssessment, h.service.SubmitSelfAssessment)
}

// SubmitVerification godoc
// @Summary Submit verification results
// @Tags Audits
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /audits/{id}/submit-verification [post]
func (h *AuditHandler) SubmitVerification(c *gin.Context) {
	h.runTransition(c, models.OpSubmitVerification, h.service.SubmitVerification)
}

// ApproveCompletion godoc
// @Summary Approve audit completion
// @Tags Audits
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /audits/{id}/approve [post]
func (h *AuditHandler) ApproveCompletion(c *gin.Context) {
	h.runTransition(c, models.OpApproveCompletion, h.service.ApproveCompletion)
}

// Reschedule godoc
// @Summary Reschedule audit
// @Description Move an audit to a new date, deadlines are recomputed
// @Tags Audits
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.RescheduleAuditRequest true "Reschedule payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /audits/{id}/reschedule [post]
func (h *AuditHandler) Reschedule(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.RescheduleAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reschedule payload"))
		return
	}

	session, events, err := h.service.Reschedule(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.committed(c, models.OpReschedule, session.Status, events)
	response.JSON(c, http.StatusOK, session, nil)
}

// Delete godoc
// @Summary Delete audit session
// @Tags Audits
// @Produce json
// @Param id path string true "Session ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /audits/{id} [delete]
func (h *AuditHandler) Delete(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), p, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	if h.dashboard != nil {
		h.dashboard.Invalidate(c.Request.Context())
	}
	response.NoContent(c)
}

// ValidateTransition godoc
// @Summary Validate lifecycle transition
// @Description Dry-run check whether an operation is allowed, nothing is committed
// @Tags Audits
// @Produce json
// @Param id path string true "Session ID"
// @Param operation query string true "Lifecycle operation"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /audits/{id}/validate-transition [get]
func (h *AuditHandler) ValidateTransition(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	op := models.AuditOperation(strings.ToUpper(c.Query("operation")))
	if op == "" {
		response.Error(c, appErrors.New(appErrors.ErrValidation.Code, http.StatusBadRequest, "operation query parameter required"))
		return
	}

	preview, err := h.service.ValidateTransition(c.Request.Context(), p, c.Param("id"), op)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, preview, nil)
}

// UpdateAuditeeFields godoc
// @Summary Update auditee fields
// @Description Update the auditee-owned fields of one checklist item
// @Tags Audits
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param questionId path string true "Question ID"
// @Param payload body service.UpdateAuditeeFieldsRequest true "Auditee fields"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /audits/{id}/questions/{questionId}/auditee [patch]
func (h *AuditHandler) UpdateAuditeeFields(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateAuditeeFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	session, err := h.service.UpdateAuditeeFields(c.Request.Context(), p, c.Param("id"), c.Param("questionId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, session, nil)
}

// UpdateAuditorFields godoc
// @Summary Update auditor fields
// @Description Update the auditor-owned fields of one checklist item
// @Tags Audits
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param questionId path string true "Question ID"
// @Param payload body service.UpdateAuditorFieldsRequest true "Auditor fields"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /audits/{id}/questions/{questionId}/auditor [patch]
func (h *AuditHandler) UpdateAuditorFields(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateAuditorFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	session, err := h.service.UpdateAuditorFields(c.Request.Context(), p, c.Param("id"), c.Param("questionId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, session, nil)
}

// ToggleCompliance godoc
// @Summary Toggle compliance verdict
// @Description Cycle the verification verdict of one checklist item
// @Tags Audits
// @Produce json
// @Param id path string true "Session ID"
// @Param questionId path string true "Question ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /audits/{id}/questions/{questionId}/toggle-compliance [post]
func (h *AuditHandler) ToggleCompliance(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	session, err := h.service.ToggleCompliance(c.Request.Context(), p, c.Param("id"), c.Param("questionId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, session, nil)
}

// UploadEvidence godoc
// @Summary Upload evidence file
// @Description Store an evidence document against one checklist item
// @Tags Audits
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Session ID"
// @Param questionId path string true "Question ID"
// @Param file formData file true "Evidence document"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /audits/{id}/questions/{questionId}/evidence [post]
func (h *AuditHandler) UploadEvidence(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "evidence file required"))
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "evidence file unreadable"))
		return
	}
	defer src.Close()

	sessionID := c.Param("id")
	relPath := fmt.Sprintf("evidence/%s/%s%s", sessionID, uuid.NewString(), filepath.Ext(fileHeader.Filename))
	stored, err := h.storage.SaveStream(relPath, src)
	if err != nil {
		response.Error(c, err)
		return
	}

	session, err := h.service.AttachEvidence(c.Request.Context(), p, sessionID, c.Param("questionId"), stored, fileHeader.Filename)
	if err != nil {
		response.Error(c, err)
		return
	}

	token, expiresAt, err := h.signer.Generate(sessionID, stored)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"session":      session,
		"evidence_url": "/api/v1/files/" + token,
		"expires_at":   expiresAt,
	}, nil)
}

// SignEvidence godoc
// @Summary Sign evidence URL
// @Description Issue a fresh signed download link for a stored evidence file
// @Tags Audits
// @Produce json
// @Param id path string true "Session ID"
// @Param path query string true "Stored evidence path"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /audits/{id}/evidence-url [get]
func (h *AuditHandler) SignEvidence(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sessionID := c.Param("id")
	if _, err := h.service.Get(c.Request.Context(), p, sessionID); err != nil {
		response.Error(c, err)
		return
	}

	relPath := c.Query("path")
	if relPath == "" {
		response.Error(c, appErrors.New(appErrors.ErrValidation.Code, http.StatusBadRequest, "path query parameter required"))
		return
	}

	token, expiresAt, err := h.signer.Generate(sessionID, relPath)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"url":        "/api/v1/files/" + token,
		"expires_at": expiresAt,
	}, nil)
}

// DownloadFile godoc
// @Summary Download signed file
// @Description Serve a stored file referenced by a signed token, no auth required
// @Tags Files
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /files/{token} [get]
func (h *AuditHandler) DownloadFile(c *gin.Context) {
	_, relPath, _, err := h.signer.Parse(c.Param("token"), false)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrForbidden.Code, http.StatusForbidden, "invalid or expired file token"))
		return
	}

	file, err := h.storage.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}
	file.Close()

	c.FileAttachment(h.storage.Path(relPath), filepath.Base(relPath))
}
