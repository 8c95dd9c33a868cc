package callback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fatflowers/payflow/internal/app/service/gateway"
	"github.com/fatflowers/payflow/internal/app/service/payment"
	"github.com/fatflowers/payflow/internal/models"
	"github.com/fatflowers/payflow/internal/platform/cache"
	"github.com/fatflowers/payflow/internal/platform/pgw"
	cfgpkg "github.com/fatflowers/payflow/pkg/config"
	"github.com/fatflowers/payflow/pkg/types"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	mu   sync.Mutex
	rows map[string]*models.Payment
}

func (s *memStore) Create(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.rows[p.ID] = &cp
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) GetByOrderID(_ context.Context, orderID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.rows {
		if p.OrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, payment.ErrPaymentNotFound
}

func (s *memStore) UpdateGuarded(_ context.Context, p *models.Payment, readVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.rows[p.ID]
	if !ok || stored.Version != readVersion {
		return payment.ErrConcurrentModification
	}
	cp := *p
	cp.Version = readVersion + 1
	s.rows[p.ID] = &cp
	p.Version = cp.Version
	return nil
}

func (s *memStore) ListStatusOlderThan(context.Context, types.PaymentStatus, time.Time, int) ([]*models.Payment, error) {
	panic("not used")
}

func (s *memStore) Scan(context.Context, *payment.ScanRequest) ([]*models.Payment, int64, error) {
	panic("not used")
}

type fakeQuerier struct {
	tx      *pgw.Transaction
	err     error
	queries int
}

func (f *fakeQuerier) QueryByKey(context.Context, string) (*pgw.Transaction, error) {
	f.queries++
	return f.tx, f.err
}

type fakeGatewayClient struct{}

func (fakeGatewayClient) Submit(context.Context, *gateway.SubmitRequest) gateway.SubmitOutcome {
	panic("not used")
}
func (fakeGatewayClient) QueryByKey(context.Context, string) (*pgw.Transaction, error) {
	panic("not used")
}
func (fakeGatewayClient) QueryByOrder(context.Context, string) ([]pgw.Transaction, error) {
	panic("not used")
}

type fakeCoordinator struct {
	paid   int
	failed int
}

func (f *fakeCoordinator) OnPaid(context.Context, *models.Payment) error   { f.paid++; return nil }
func (f *fakeCoordinator) OnFailed(context.Context, *models.Payment) error { f.failed++; return nil }

type fakeRecorder struct{}

func (fakeRecorder) RecordFinalized(context.Context, *models.Payment) {}

type fakeAudit struct {
	mu   sync.Mutex
	logs []*models.CallbackLog
}

func (f *fakeAudit) SaveCallbackLog(_ context.Context, l *models.CallbackLog) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *l
	f.logs = append(f.logs, &cp)
}

func (f *fakeAudit) statuses() []models.CallbackLogStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.CallbackLogStatus, 0, len(f.logs))
	for _, l := range f.logs {
		out = append(out, l.Status)
	}
	return out
}

type handlerFixture struct {
	store   *memStore
	querier *fakeQuerier
	comp    *fakeCoordinator
	audit   *fakeAudit
	handler *Handler
}

func newHandlerFixture(secret string) *handlerFixture {
	f := &handlerFixture{
		store:   &memStore{rows: map[string]*models.Payment{}},
		querier: &fakeQuerier{},
		comp:    &fakeCoordinator{},
		audit:   &fakeAudit{},
	}
	log := zap.NewNop().Sugar()
	payments := payment.NewService(f.store, fakeGatewayClient{}, f.comp, fakeRecorder{}, log)
	cfg := &cfgpkg.Config{Gateway: cfgpkg.GatewayConfig{WebhookSecret: secret}}
	f.handler = NewHandler(payments, f.querier, f.audit, &cache.Client{}, cfg, log)
	return f
}

func (f *handlerFixture) seed(t *testing.T, status types.PaymentStatus) {
	t.Helper()
	require.NoError(t, f.store.Create(context.Background(), &models.Payment{
		ID:      "pay-1",
		OrderID: "order-1",
		UserID:  "user-1",
		Status:  status,
	}))
}

func notification() *Notification {
	return &Notification{OrderRef: "order-1", ExternalPaymentKey: "tx-1"}
}

func signedToken(t *testing.T, secret, orderRef, key string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"order_ref":            orderRef,
		"external_payment_key": key,
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestHandle_SuccessVerdictFinalizesPaid(t *testing.T) {
	f := newHandlerFixture("")
	f.seed(t, types.PaymentStatusInProgress)
	f.querier.tx = &pgw.Transaction{TransactionKey: "tx-1", OrderRef: "order-1", Status: types.GatewayTxStatusSuccess}

	require.NoError(t, f.handler.Handle(context.Background(), notification(), ""))

	p, err := f.store.Get(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStatusPaid, p.Status)
	assert.Equal(t, 1, f.comp.paid)
	assert.Equal(t, []models.CallbackLogStatus{models.CallbackLogStatusReceived, models.CallbackLogStatusHandled}, f.audit.statuses())
}

func TestHandle_FailedVerdictFinalizesFailed(t *testing.T) {
	f := newHandlerFixture("")
	f.seed(t, types.PaymentStatusInProgress)
	f.querier.tx = &pgw.Transaction{TransactionKey: "tx-1", OrderRef: "order-1", Status: types.GatewayTxStatusFailed, Reason: "card declined"}

	require.NoError(t, f.handler.Handle(context.Background(), notification(), ""))

	p, err := f.store.Get(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStatusFailed, p.Status)
	require.NotNil(t, p.FailureMessage)
	assert.Equal(t, "card declined", *p.FailureMessage)
	assert.Equal(t, 1, f.comp.failed)
}

func TestHandle_TerminalPaymentIsIdempotent(t *testing.T) {
	f := newHandlerFixture("")
	f.seed(t, types.PaymentStatusPaid)

	require.NoError(t, f.handler.Handle(context.Background(), notification(), ""))

	// never re-verified, never re-finalized
	assert.Zero(t, f.querier.queries)
	assert.Zero(t, f.comp.paid)
}

func TestHandle_PendingVerdictDefersToScheduler(t *testing.T) {
	f := newHandlerFixture("")
	f.seed(t, types.PaymentStatusInProgress)
	f.querier.tx = &pgw.Transaction{TransactionKey: "tx-1", OrderRef: "order-1", Status: types.GatewayTxStatusPending}

	require.NoError(t, f.handler.Handle(context.Background(), notification(), ""))

	p, err := f.store.Get(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStatusInProgress, p.Status)
}

func TestHandle_UnknownTransactionIsRejected(t *testing.T) {
	f := newHandlerFixture("")
	f.seed(t, types.PaymentStatusInProgress)
	f.querier.err = &pgw.CallError{Op: "query", StatusCode: 404, Err: pgw.ErrTransactionNotFound}

	err := f.handler.Handle(context.Background(), notification(), "")
	require.ErrorIs(t, err, ErrUnknownTransaction)
	assert.Equal(t, []models.CallbackLogStatus{models.CallbackLogStatusReceived, models.CallbackLogStatusHandleFailed}, f.audit.statuses())
}

func TestHandle_MissingFields(t *testing.T) {
	f := newHandlerFixture("")
	err := f.handler.Handle(context.Background(), &Notification{OrderRef: "order-1"}, "")
	require.Error(t, err)
	assert.Zero(t, f.querier.queries)
}

func TestHandle_SignatureVerification(t *testing.T) {
	const secret = "webhook-secret"

	t.Run("valid token accepted", func(t *testing.T) {
		f := newHandlerFixture(secret)
		f.seed(t, types.PaymentStatusInProgress)
		f.querier.tx = &pgw.Transaction{TransactionKey: "tx-1", OrderRef: "order-1", Status: types.GatewayTxStatusSuccess}

		token := signedToken(t, secret, "order-1", "tx-1")
		require.NoError(t, f.handler.Handle(context.Background(), notification(), token))

		p, err := f.store.Get(context.Background(), "pay-1")
		require.NoError(t, err)
		assert.Equal(t, types.PaymentStatusPaid, p.Status)
	})

	t.Run("missing token rejected", func(t *testing.T) {
		f := newHandlerFixture(secret)
		f.seed(t, types.PaymentStatusInProgress)

		err := f.handler.Handle(context.Background(), notification(), "")
		require.ErrorIs(t, err, ErrInvalidSignature)
		assert.Zero(t, f.querier.queries)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		f := newHandlerFixture(secret)
		f.seed(t, types.PaymentStatusInProgress)

		token := signedToken(t, "other-secret", "order-1", "tx-1")
		err := f.handler.Handle(context.Background(), notification(), token)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("claims not matching payload rejected", func(t *testing.T) {
		f := newHandlerFixture(secret)
		f.seed(t, types.PaymentStatusInProgress)

		token := signedToken(t, secret, "order-1", "tx-other")
		err := f.handler.Handle(context.Background(), notification(), token)
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("no secret configured skips verification", func(t *testing.T) {
		f := newHandlerFixture("")
		f.seed(t, types.PaymentStatusInProgress)
		f.querier.tx = &pgw.Transaction{TransactionKey: "tx-1", OrderRef: "order-1", Status: types.GatewayTxStatusSuccess}

		require.NoError(t, f.handler.Handle(context.Background(), notification(), ""))
	})
}
