package callback

import (
	"github.com/fatflowers/payflow/internal/app/service/eventlog"
	"github.com/fatflowers/payflow/internal/app/service/gateway"

	"go.uber.org/fx"
)

// Module exposes the callback handler via Fx.
var Module = fx.Options(
	fx.Provide(func(gw gateway.Client) Querier { return gw }),
	fx.Provide(func(s *eventlog.Service) AuditLog { return s }),
	fx.Provide(NewHandler),
)
