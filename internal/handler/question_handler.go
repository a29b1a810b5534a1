package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ami-audit-api/internal/models"
	"github.com/noah-isme/ami-audit-api/internal/service"
	appErrors "github.com/noah-isme/ami-audit-api/pkg/errors"
	"github.com/noah-isme/ami-audit-api/pkg/response"
)

// QuestionHandler wires HTTP endpoints to the master question service.
type QuestionHandler struct {
	service *service.QuestionService
}

// NewQuestionHandler creates a new handler.
func NewQuestionHandler(svc *service.QuestionService) *QuestionHandler {
	return &QuestionHandler{service: svc}
}

// List godoc
// @Summary List master questions
// @Description List the question catalog with filtering and pagination
// @Tags Questions
// @Produce json
// @Param standard query string false "Filter by accreditation standard"
// @Param category query string false "Filter by category"
// @Param search query string false "Search by code or text"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /questions [get]
func (h *QuestionHandler) List(c *gin.Context) {
	page, pageSize := pageParams(c)
	filter := models.QuestionFilter{
		Category: c.Query("category"),
		Search:   c.Query("search"),
		Page:     page,
		PageSize: pageSize,
	}
	if std := c.Query("standard"); std != "" {
		s := models.Standard(strings.ToUpper(std))
		filter.Standard = &s
	}

	questions, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, questions, pagination)
}

// Get godoc
// @Summary Get master question by ID
// @Tags Questions
// @Produce json
// @Param id path string true "Question ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /questions/{id} [get]
func (h *QuestionHandler) Get(c *gin.Context) {
	question, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, question, nil)
}

// Create godoc
// @Summary Create master question
// @Tags Questions
// @Accept json
// @Produce json
// @Param payload body service.CreateQuestionRequest true "Question payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /questions [post]
func (h *QuestionHandler) Create(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid question payload"))
		return
	}

	question, err := h.service.Create(c.Request.Context(), p, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, question)
}

// Update godoc
// @Summary Update master question
// @Description Update a catalog question, running audits keep their snapshot
// @Tags Questions
// @Accept json
// @Produce json
// @Param id path string true "Question ID"
// @Param payload body service.UpdateQuestionRequest true "Question payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /questions/{id} [put]
func (h *QuestionHandler) Update(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid question payload"))
		return
	}

	question, err := h.service.Update(c.Request.Context(), p, c.Param("id"), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, question, nil)
}

// Delete godoc
// @Summary Delete master question
// @Tags Questions
// @Produce json
// @Param id path string true "Question ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /questions/{id} [delete]
func (h *QuestionHandler) Delete(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), p, c.Param("id"), requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
