package eventlog

import (
	"github.com/fatflowers/payflow/internal/app/service/payment"

	"go.uber.org/fx"
)

// Module exposes the event log via Fx, bound to the payment service's
// EventRecorder port.
var Module = fx.Options(
	fx.Provide(NewService),
	fx.Provide(func(s *Service) payment.EventRecorder { return s }),
)
