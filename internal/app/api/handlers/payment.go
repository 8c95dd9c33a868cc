package handlers

import (
	"errors"
	"net/http"

	"github.com/fatflowers/payflow/internal/app/service/payment"
	"github.com/fatflowers/payflow/internal/models"
	"github.com/fatflowers/payflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// @Summary      Create payment
// @Description  Opens a payment for an order and submits it to the gateway.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body payment.CreateRequest true "Payment creation request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/payments [post]
func ApiCreatePayment(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.CreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		p, err := svc.CreateAndSubmit(c.Request.Context(), &req)
		if err != nil {
			if errors.Is(err, models.ErrNegativePaidAmount) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(p))
	}
}

// @Summary      Get payment
// @Description  Returns one payment record by id.
// @Tags         Payment
// @Produce      json
// @Param        id path string true "payment id"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/payments/{id} [get]
func ApiGetPayment(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, payment.ErrPaymentNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(p))
	}
}

func RegisterPaymentRoutes(r gin.IRouter, svc *payment.Service) {
	r.POST("/payments", ApiCreatePayment(svc))
	r.GET("/payments/:id", ApiGetPayment(svc))
}
