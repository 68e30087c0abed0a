package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vikram-labs/schoolpay-api/internal/service"
	appErrors "github.com/vikram-labs/schoolpay-api/pkg/errors"
	"github.com/vikram-labs/schoolpay-api/pkg/response"
)

// GatewayHandler exposes online checkout endpoints.
type GatewayHandler struct {
	gateways *service.GatewayService
}

// NewGatewayHandler constructs GatewayHandler.
func NewGatewayHandler(gateways *service.GatewayService) *GatewayHandler {
	return &GatewayHandler{gateways: gateways}
}

// CreateOrder godoc
// @Summary Create a provider order for online payment
// @Tags Gateway
// @Accept json
// @Produce json
// @Param payload body service.CreateOrderRequest true "Order payload"
// @Success 201 {object} response.Envelope
// @Router /gateway/order [post]
func (h *GatewayHandler) CreateOrder(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	order, err := h.gateways.CreateOrder(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, order)
}

// Callback godoc
// @Summary Verify a provider callback and record the payment
// @Description The signature is verified against the provider before any
// ledger write. A replayed callback returns the already recorded payment.
// @Tags Gateway
// @Accept json
// @Produce json
// @Param payload body service.GatewayCallbackRequest true "Callback payload"
// @Success 200 {object} response.Envelope
// @Router /gateway/callback [post]
func (h *GatewayHandler) Callback(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.GatewayCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.gateways.Callback(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
