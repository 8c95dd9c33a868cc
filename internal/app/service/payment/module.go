package payment

import "go.uber.org/fx"

// Module exposes the payment store and service via Fx.
var Module = fx.Options(
	fx.Provide(NewStore),
	fx.Provide(NewService),
)
