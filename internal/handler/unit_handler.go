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

// UnitHandler wires HTTP endpoints to the organizational unit service.
type UnitHandler struct {
	service *service.UnitService
}

// NewUnitHandler creates a new handler.
func NewUnitHandler(svc *service.UnitService) *UnitHandler {
	return &UnitHandler{service: svc}
}

// List godoc
// @Summary List units
// @Description List organizational units with filtering and pagination
// @Tags Units
// @Produce json
// @Param type query string false "Filter by unit type"
// @Param faculty query string false "Filter by faculty"
// @Param search query string false "Search by name or code"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /units [get]
func (h *UnitHandler) List(c *gin.Context) {
	page, pageSize := pageParams(c)
	filter := models.UnitFilter{
		Faculty:  c.Query("faculty"),
		Search:   c.Query("search"),
		Page:     page,
		PageSize: pageSize,
	}
	if t := c.Query("type"); t != "" {
		ut := models.UnitType(strings.ToUpper(t))
		filter.Type = &ut
	}

	units, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, units, pagination)
}

// Get godoc
// @Summary Get unit by ID
// @Tags Units
// @Produce json
// @Param id path string true "Unit ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /units/{id} [get]
func (h *UnitHandler) Get(c *gin.Context) {
	unit, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, unit, nil)
}

// Create godoc
// @Summary Create unit
// @Tags Units
// @Accept json
// @Produce json
// @Param payload body service.CreateUnitRequest true "Unit payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /units [post]
func (h *UnitHandler) Create(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid unit payload"))
		return
	}

	unit, err := h.service.Create(c.Request.Context(), p, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, unit)
}

// Update godoc
// @Summary Update unit
// @Tags Units
// @Accept json
// @Produce json
// @Param id path string true "Unit ID"
// @Param payload body service.UpdateUnitRequest true "Unit payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /units/{id} [put]
func (h *UnitHandler) Update(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid unit payload"))
		return
	}

	unit, err := h.service.Update(c.Request.Context(), p, c.Param("id"), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, unit, nil)
}

// Delete godoc
// @Summary Delete unit
// @Description Remove an organizational unit, existing audits keep the unit name
// @Tags Units
// @Produce json
// @Param id path string true "Unit ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /units/{id} [delete]
func (h *UnitHandler) Delete(c *gin.Context) {
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
