package store

import "go.uber.org/fx"

// Module exposes the collaborator stores via Fx.
var Module = fx.Options(
	fx.Provide(NewOrderStore),
	fx.Provide(NewStockStore),
	fx.Provide(NewPointLedger),
	fx.Provide(NewCouponLedger),
)
