package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vikram-labs/schoolpay-api/internal/service"
	appErrors "github.com/vikram-labs/schoolpay-api/pkg/errors"
	"github.com/vikram-labs/schoolpay-api/pkg/response"
)

// FeeReminderHandler triggers overdue reminder runs.
type FeeReminderHandler struct {
	reminders *service.FeeReminderService
}

// NewFeeReminderHandler constructs FeeReminderHandler.
func NewFeeReminderHandler(reminders *service.FeeReminderService) *FeeReminderHandler {
	return &FeeReminderHandler{reminders: reminders}
}

// Send godoc
// @Summary Send overdue fee reminders
// @Description Emails every defaulter's guardian and reports per-recipient
// delivery outcomes. The optional body narrows the run to specific students.
// @Tags Reminders
// @Accept json
// @Produce json
// @Param class_id query string false "Limit to one class"
// @Param payload body service.ReminderRequest false "Explicit student ids"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /fees/reminders [post]
func (h *FeeReminderHandler) Send(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ReminderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reminder payload"))
			return
		}
	}
	if req.ClassID == "" {
		req.ClassID = c.Query("class_id")
	}

	report, err := h.reminders.SendReminders(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
