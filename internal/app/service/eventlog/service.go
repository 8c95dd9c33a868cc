package eventlog

import (
	"context"
	"encoding/json"

	"github.com/fatflowers/payflow/internal/models"
	"github.com/fatflowers/payflow/pkg/logctx"
	"github.com/fatflowers/payflow/pkg/tool"
	"github.com/fatflowers/payflow/pkg/types"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service appends payment events to the outbox and persists callback audit
// logs. Writes are fire-and-forget: a failed audit write must never fail
// the payment flow, so errors are logged and dropped.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// RecordFinalized appends a terminal-transition event for downstream
// consumers of the outbox.
func (s *Service) RecordFinalized(ctx context.Context, p *models.Payment) {
	eventType := types.PaymentEventTypePaid
	if p.Status == types.PaymentStatusFailed {
		eventType = types.PaymentEventTypeFailed
	}
	payload, err := json.Marshal(p)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorf("failed to marshal payment event payload: %v", err)
		return
	}
	event := &models.PaymentEvent{
		ID:        tool.GenerateUUIDV7(),
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Type:      eventType,
		Payload:   datatypes.JSON(payload),
	}
	go func() {
		if err := s.db.Create(event).Error; err != nil {
			s.log.Errorf("failed to append payment event: %v", err)
		}
	}()
}

// SaveCallbackLog persists one callback delivery audit row.
func (s *Service) SaveCallbackLog(ctx context.Context, l *models.CallbackLog) {
	if l.ID == "" {
		l.ID = tool.GenerateUUIDV7()
	}
	go func() {
		if err := s.db.Create(l).Error; err != nil {
			s.log.Errorf("failed to save callback log: %v", err)
		}
	}()
}
