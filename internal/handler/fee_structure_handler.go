package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vikram-labs/schoolpay-api/internal/service"
	appErrors "github.com/vikram-labs/schoolpay-api/pkg/errors"
	"github.com/vikram-labs/schoolpay-api/pkg/response"
)

// FeeStructureHandler exposes fee structure and balance endpoints.
type FeeStructureHandler struct {
	structures *service.FeeStructureService
}

// NewFeeStructureHandler constructs FeeStructureHandler.
func NewFeeStructureHandler(structures *service.FeeStructureService) *FeeStructureHandler {
	return &FeeStructureHandler{structures: structures}
}

// List godoc
// @Summary List fee structures
// @Tags Fees
// @Produce json
// @Param class_id query string false "Filter by class"
// @Param academic_year query string false "Filter by academic year"
// @Success 200 {object} response.Envelope
// @Router /fees/structures [get]
func (h *FeeStructureHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	structures, err := h.structures.List(c.Request.Context(), actor, c.Query("class_id"), c.Query("academic_year"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, structures, nil)
}

// Get godoc
// @Summary Get fee structure
// @Tags Fees
// @Produce json
// @Param id path string true "Structure ID"
// @Success 200 {object} response.Envelope
// @Router /fees/structures/{id} [get]
func (h *FeeStructureHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	structure, err := h.structures.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, structure, nil)
}

// Create godoc
// @Summary Create fee structure
// @Tags Fees
// @Accept json
// @Produce json
// @Param payload body service.FeeStructureRequest true "Structure payload"
// @Success 201 {object} response.Envelope
// @Router /fees/structures [post]
func (h *FeeStructureHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.FeeStructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	structure, err := h.structures.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, structure)
}

// Update godoc
// @Summary Update fee structure
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path string true "Structure ID"
// @Param payload body service.FeeStructureRequest true "Structure payload"
// @Success 200 {object} response.Envelope
// @Router /fees/structures/{id} [put]
func (h *FeeStructureHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.FeeStructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	structure, err := h.structures.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, structure, nil)
}

// Delete godoc
// @Summary Delete fee structure
// @Description Removes a structure that has no recorded payments
// @Tags Fees
// @Produce json
// @Param id path string true "Structure ID"
// @Success 204
// @Router /fees/structures/{id} [delete]
func (h *FeeStructureHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.structures.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// StudentStatus godoc
// @Summary Fee status for one student
// @Tags Fees
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /fees/students/{id}/status [get]
func (h *FeeStructureHandler) StudentStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	status, err := h.structures.StudentStatus(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Defaulters godoc
// @Summary List students with overdue balances
// @Tags Fees
// @Produce json
// @Param class_id query string false "Filter by class"
// @Success 200 {object} response.Envelope
// @Router /fees/defaulters [get]
func (h *FeeStructureHandler) Defaulters(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	defaulters, err := h.structures.Defaulters(c.Request.Context(), actor, c.Query("class_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, defaulters, nil)
}

// RefreshOverdue godoc
// @Summary Recompute overdue flags for the school
// @Tags Fees
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /fees/overdue/refresh [post]
func (h *FeeStructureHandler) RefreshOverdue(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	updated, err := h.structures.RefreshOverdue(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": updated}, nil)
}
