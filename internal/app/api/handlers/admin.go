package handlers

import (
	"net/http"
	"time"

	"github.com/fatflowers/payflow/internal/app/service/payment"
	"github.com/fatflowers/payflow/internal/models"
	"github.com/fatflowers/payflow/pkg/response"
	"github.com/fatflowers/payflow/pkg/types"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

type ListPaymentsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type PaymentItem struct {
	ID                 string              `json:"id"`
	OrderID            string              `json:"order_id"`
	UserID             string              `json:"user_id"`
	TotalAmount        int64               `json:"total_amount"`
	UsedPoint          int64               `json:"used_point"`
	CouponDiscount     int64               `json:"coupon_discount"`
	PaidAmount         int64               `json:"paid_amount"`
	Status             types.PaymentStatus `json:"status"`
	ExternalPaymentKey *string             `json:"external_payment_key"`
	FailureMessage     *string             `json:"failure_message"`
	Version            int64               `json:"version"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

type ListPaymentsResponse struct {
	Items []*PaymentItem `json:"items"`
	Total int64          `json:"total"`
}

func toPaymentItem(m *models.Payment) *PaymentItem {
	return &PaymentItem{
		ID:                 m.ID,
		OrderID:            m.OrderID,
		UserID:             m.UserID,
		TotalAmount:        m.TotalAmount,
		UsedPoint:          m.UsedPoint,
		CouponDiscount:     m.CouponDiscount,
		PaidAmount:         m.PaidAmount,
		Status:             m.Status,
		ExternalPaymentKey: m.ExternalPaymentKey,
		FailureMessage:     m.FailureMessage,
		Version:            m.Version,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

// @Summary      List Payments (Admin)
// @Description  Scans payment records with filters, pagination, and sorting.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ListPaymentsRequest true "List payments request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespListPayments
// @Router       /api/v1/admin/list_payments [post]
func ApiListPayments(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListPaymentsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		scanReq := &payment.ScanRequest{Filters: req.Filters, From: req.From, Size: req.Size, SortBy: req.SortBy, SortOrder: req.SortOrder}
		items, total, err := svc.Scan(c.Request.Context(), scanReq)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		views := lo.Map(items, func(it *models.Payment, _ int) *PaymentItem { return toPaymentItem(it) })
		c.JSON(http.StatusOK, response.OKT(&ListPaymentsResponse{Items: views, Total: total}))
	}
}

func RegisterAdminPaymentRoutes(r gin.IRouter, svc *payment.Service) {
	r.POST("/list_payments", ApiListPayments(svc))
}
