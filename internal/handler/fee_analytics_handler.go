package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vikram-labs/schoolpay-api/internal/middleware"
	"github.com/vikram-labs/schoolpay-api/internal/service"
	appErrors "github.com/vikram-labs/schoolpay-api/pkg/errors"
	"github.com/vikram-labs/schoolpay-api/pkg/response"
)

// FeeAnalyticsHandler exposes collection analytics endpoints.
type FeeAnalyticsHandler struct {
	analytics *service.FeeAnalyticsService
}

// NewFeeAnalyticsHandler constructs FeeAnalyticsHandler.
func NewFeeAnalyticsHandler(analytics *service.FeeAnalyticsService) *FeeAnalyticsHandler {
	return &FeeAnalyticsHandler{analytics: analytics}
}

// Collect godoc
// @Summary Fee collection analytics
// @Description Aggregated collections, mode breakdown, monthly trend and
// class-wise rates for the caller's school. Defaults to the trailing year.
// @Tags Analytics
// @Produce json
// @Param date_from query string false "Start date (2006-01-02)"
// @Param date_to query string false "End date (2006-01-02)"
// @Success 200 {object} response.Envelope
// @Router /analytics/fees [get]
func (h *FeeAnalyticsHandler) Collect(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var dateFrom, dateTo time.Time
	if raw := c.Query("date_from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date_from must be formatted as 2006-01-02"))
			return
		}
		dateFrom = parsed
	}
	if raw := c.Query("date_to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date_to must be formatted as 2006-01-02"))
			return
		}
		dateTo = parsed
	}

	analytics, cacheHit, err := h.analytics.Collect(c.Request.Context(), actor, dateFrom, dateTo)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, analytics, nil, middleware.ExtractMeta(c))
}
