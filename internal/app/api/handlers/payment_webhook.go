package handlers

import (
	"errors"
	"net/http"

	"github.com/fatflowers/payflow/internal/app/service/callback"
	"github.com/fatflowers/payflow/pkg/logctx"
	"github.com/fatflowers/payflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// SignatureHeader carries the gateway's JWS token for callback verification.
const SignatureHeader = "X-Gateway-Signature"

// @Summary      Gateway Webhook
// @Description  Handles push notifications from the payment gateway. The transaction is re-verified against the gateway before any state change.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        payload body callback.Notification true "Gateway notification payload"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/webhook/gateway [post]
// ApiGatewayWebhook handles payment gateway notifications
func ApiGatewayWebhook(h *callback.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		logctx.FromCtx(c, h.Logger).Infow("webhook_gateway_received")

		var n callback.Notification
		if err := c.ShouldBindJSON(&n); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		if err := h.Handle(c.Request.Context(), &n, c.GetHeader(SignatureHeader)); err != nil {
			logctx.FromCtx(c, h.Logger).Errorw("webhook_gateway_handle_error", "error", err.Error())
			if errors.Is(err, callback.ErrInvalidSignature) || errors.Is(err, callback.ErrUnknownTransaction) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		logctx.FromCtx(c, h.Logger).Infow("webhook_gateway_handled")
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterPaymentWebhookRoutes(r gin.IRouter, h *callback.Handler) {
	// Mount under provided group, expected at "/api/v1/webhook"
	r.POST("/gateway", ApiGatewayWebhook(h))
}
