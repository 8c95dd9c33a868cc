package app

import (
	"time"

	"github.com/fatflowers/payflow/internal/app/api/server"
	"github.com/fatflowers/payflow/internal/app/service/callback"
	"github.com/fatflowers/payflow/internal/app/service/compensation"
	"github.com/fatflowers/payflow/internal/app/service/eventlog"
	"github.com/fatflowers/payflow/internal/app/service/gateway"
	"github.com/fatflowers/payflow/internal/app/service/payment"
	"github.com/fatflowers/payflow/internal/app/service/reconcile"
	"github.com/fatflowers/payflow/internal/platform/cache"
	"github.com/fatflowers/payflow/internal/platform/db"
	"github.com/fatflowers/payflow/internal/platform/store"
	"github.com/fatflowers/payflow/pkg/config"
	"github.com/fatflowers/payflow/pkg/logger"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	cache.Module,
	server.Module,
	gateway.Module,
	store.Module,
	compensation.Module,
	eventlog.Module,
	payment.Module,
	callback.Module,
	reconcile.Module,
)
