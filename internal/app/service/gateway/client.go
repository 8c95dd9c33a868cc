package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/fatflowers/payflow/internal/platform/pgw"
	cfgpkg "github.com/fatflowers/payflow/pkg/config"
	"github.com/fatflowers/payflow/pkg/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// SubmitRequest carries what the gateway needs to charge a payment. The
// method token stands in for the card on resubmissions.
type SubmitRequest struct {
	OrderRef    string
	Amount      int64
	Card        pgw.CardInfo
	MethodToken string
}

// Client is the gateway-call abstraction. Submit never surfaces a raw
// error; every failure is classified into a SubmitOutcome. The query
// operations are idempotent and may be retried freely by callers.
type Client interface {
	Submit(ctx context.Context, req *SubmitRequest) SubmitOutcome
	QueryByKey(ctx context.Context, key string) (*pgw.Transaction, error)
	// QueryByOrder lists the gateway's transactions for an order ref,
	// newest first. An order the gateway has no record of yields a
	// not-found error, never an empty slice.
	QueryByOrder(ctx context.Context, orderRef string) ([]pgw.Transaction, error)
}

type client struct {
	wire *pgw.Client
	log  *zap.SugaredLogger

	// One breaker per operation: a query outage must not block new
	// submissions and vice versa.
	submitBreaker *gobreaker.CircuitBreaker
	queryBreaker  *gobreaker.CircuitBreaker
}

func NewClient(cfg *cfgpkg.Config, log *zap.SugaredLogger) Client {
	newBreaker := func(name string) *gobreaker.CircuitBreaker {
		return gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warnw("gateway breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return &client{
		wire:          pgw.NewClient(cfg),
		log:           log,
		submitBreaker: newBreaker("pgw-submit"),
		queryBreaker:  newBreaker("pgw-query"),
	}
}

func (c *client) Submit(ctx context.Context, req *SubmitRequest) SubmitOutcome {
	// Fully covered by points/coupon: no gateway involvement at all.
	if req.Amount == 0 {
		metrics.GatewaySubmitTotal.WithLabelValues("not_required").Inc()
		return NotRequired{}
	}

	res, err := c.submitBreaker.Execute(func() (interface{}, error) {
		return c.wire.Submit(ctx, &pgw.SubmitRequest{
			OrderRef:    req.OrderRef,
			Amount:      req.Amount,
			CardInfo:    req.Card,
			MethodToken: req.MethodToken,
		})
	})
	if err != nil {
		outcome := ClassifySubmitError(err)
		switch o := outcome.(type) {
		case Rejected:
			metrics.GatewaySubmitTotal.WithLabelValues("rejected").Inc()
			c.log.Infow("gateway rejected payment", "order_ref", req.OrderRef, "reason", o.Reason)
		case Uncertain:
			metrics.GatewaySubmitTotal.WithLabelValues("uncertain").Inc()
			c.log.Warnw("gateway submit outcome uncertain", "order_ref", req.OrderRef, "cause", o.Cause)
		case NotReached:
			metrics.GatewaySubmitTotal.WithLabelValues("not_reached").Inc()
			c.log.Warnw("gateway not reached", "order_ref", req.OrderRef, "cause", o.Cause)
		}
		return outcome
	}

	metrics.GatewaySubmitTotal.WithLabelValues("accepted").Inc()
	return Accepted{Key: res.(*pgw.SubmitResponse).TransactionKey}
}

func (c *client) QueryByKey(ctx context.Context, key string) (*pgw.Transaction, error) {
	var tx *pgw.Transaction
	err := c.retryQuery(ctx, func() error {
		res, err := c.queryBreaker.Execute(func() (interface{}, error) {
			return c.wire.QueryByKey(ctx, key)
		})
		if err != nil {
			return err
		}
		tx = res.(*pgw.Transaction)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query by key %s: %w", key, err)
	}
	return tx, nil
}

func (c *client) QueryByOrder(ctx context.Context, orderRef string) ([]pgw.Transaction, error) {
	var txs []pgw.Transaction
	err := c.retryQuery(ctx, func() error {
		res, err := c.queryBreaker.Execute(func() (interface{}, error) {
			return c.wire.QueryByOrder(ctx, orderRef)
		})
		if err != nil {
			return err
		}
		txs = res.([]pgw.Transaction)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query by order %s: %w", orderRef, err)
	}
	return txs, nil
}

// retryQuery retries transient failures of the idempotent query path with
// bounded exponential backoff. Not-found and breaker-open are not retried:
// the first is an answer, the second needs the breaker's cool-down.
func (c *client) retryQuery(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if pgw.IsNotFound(err) {
			return backoff.Permanent(err)
		}
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, 2), ctx))
}
