package compensation

import (
	"github.com/fatflowers/payflow/internal/app/service/payment"

	"go.uber.org/fx"
)

// Module exposes the coordinator via Fx, bound to the payment service's
// Coordinator port.
var Module = fx.Options(
	fx.Provide(NewCoordinator),
	fx.Provide(func(c *Coordinator) payment.Coordinator { return c }),
)
