package reconcile

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/fatflowers/payflow/internal/app/service/gateway"
	"github.com/fatflowers/payflow/internal/app/service/payment"
	"github.com/fatflowers/payflow/internal/models"
	"github.com/fatflowers/payflow/internal/platform/pgw"
	cfgpkg "github.com/fatflowers/payflow/pkg/config"
	"github.com/fatflowers/payflow/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	mu   sync.Mutex
	rows map[string]*models.Payment
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]*models.Payment{}}
}

func (s *memStore) Create(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
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
	cp.CreatedAt = stored.CreatedAt
	s.rows[p.ID] = &cp
	p.Version = cp.Version
	return nil
}

func (s *memStore) ListStatusOlderThan(_ context.Context, status types.PaymentStatus, cutoff time.Time, _ int) ([]*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Payment
	for _, p := range s.rows {
		if p.Status == status && p.CreatedAt.Before(cutoff) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) Scan(context.Context, *payment.ScanRequest) ([]*models.Payment, int64, error) {
	panic("not used")
}

// fakeGateway serves canned query answers per order ref.
type fakeGateway struct {
	txsByOrder map[string][]pgw.Transaction
	errByOrder map[string]error
	submit     gateway.SubmitOutcome
	submits    int
	lastSubmit *gateway.SubmitRequest
}

func (f *fakeGateway) Submit(_ context.Context, req *gateway.SubmitRequest) gateway.SubmitOutcome {
	f.submits++
	f.lastSubmit = req
	return f.submit
}

func (f *fakeGateway) QueryByKey(context.Context, string) (*pgw.Transaction, error) {
	panic("not used")
}

func (f *fakeGateway) QueryByOrder(_ context.Context, orderRef string) ([]pgw.Transaction, error) {
	if err, ok := f.errByOrder[orderRef]; ok {
		return nil, err
	}
	if txs, ok := f.txsByOrder[orderRef]; ok {
		return txs, nil
	}
	return nil, &pgw.CallError{Op: "query", StatusCode: http.StatusNotFound, Err: pgw.ErrTransactionNotFound}
}

type fakeCoordinator struct {
	paid   int
	failed int
}

func (f *fakeCoordinator) OnPaid(context.Context, *models.Payment) error   { f.paid++; return nil }
func (f *fakeCoordinator) OnFailed(context.Context, *models.Payment) error { f.failed++; return nil }

type fakeRecorder struct{}

func (fakeRecorder) RecordFinalized(context.Context, *models.Payment) {}

func testConfig() *cfgpkg.Config {
	return &cfgpkg.Config{
		Reconcile: cfgpkg.ReconcileConfig{
			Interval:       time.Minute,
			Grace:          time.Minute,
			ForceFailAfter: 5 * time.Minute,
			BatchSize:      100,
		},
		Recovery: cfgpkg.RecoveryConfig{
			Interval:   5 * time.Minute,
			StuckAfter: 10 * time.Minute,
			BatchSize:  100,
		},
	}
}

type schedFixture struct {
	store *memStore
	gw    *fakeGateway
	comp  *fakeCoordinator
	sched *Scheduler
}

func newSchedFixture() *schedFixture {
	f := &schedFixture{
		store: newMemStore(),
		gw:    &fakeGateway{txsByOrder: map[string][]pgw.Transaction{}, errByOrder: map[string]error{}},
		comp:  &fakeCoordinator{},
	}
	log := zap.NewNop().Sugar()
	svc := payment.NewService(f.store, f.gw, f.comp, fakeRecorder{}, log)
	f.sched = NewScheduler(f.store, f.gw, svc, testConfig(), log)
	return f
}

func (f *schedFixture) seed(t *testing.T, id, orderID string, status types.PaymentStatus, age time.Duration) {
	t.Helper()
	require.NoError(t, f.store.Create(context.Background(), &models.Payment{
		ID:        id,
		OrderID:   orderID,
		UserID:    "user-1",
		Status:    status,
		CreatedAt: time.Now().Add(-age),
	}))
}

func (f *schedFixture) status(t *testing.T, id string) types.PaymentStatus {
	t.Helper()
	p, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Status
}

func TestTick_SuccessVerdictFinalizesPaid(t *testing.T) {
	f := newSchedFixture()
	f.seed(t, "pay-1", "order-1", types.PaymentStatusInProgress, 2*time.Minute)
	f.gw.txsByOrder["order-1"] = []pgw.Transaction{{TransactionKey: "tx-1", OrderRef: "order-1", Status: types.GatewayTxStatusSuccess}}

	f.sched.Tick(context.Background(), time.Now())

	assert.Equal(t, types.PaymentStatusPaid, f.status(t, "pay-1"))
	assert.Equal(t, 1, f.comp.paid)
}

func TestTick_FailedVerdictFinalizesFailed(t *testing.T) {
	f := newSchedFixture()
	f.seed(t, "pay-1", "order-1", types.PaymentStatusInProgress, 2*time.Minute)
	f.gw.txsByOrder["order-1"] = []pgw.Transaction{{TransactionKey: "tx-1", OrderRef: "order-1", Status: types.GatewayTxStatusFailed, Reason: "card declined"}}

	f.sched.Tick(context.Background(), time.Now())

	p, err := f.store.Get(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStatusFailed, p.Status)
	require.NotNil(t, p.FailureMessage)
	assert.Equal(t, "card declined", *p.FailureMessage)
	assert.Equal(t, 1, f.comp.failed)
}

func TestTick_NoGatewayRecordFinalizesFailed(t *testing.T) {
	f := newSchedFixture()
	f.seed(t, "pay-1", "order-1", types.PaymentStatusInProgress, 2*time.Minute)
	// fakeGateway answers not-found for unseeded orders

	f.sched.Tick(context.Background(), time.Now())

	p, err := f.store.Get(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStatusFailed, p.Status)
	require.NotNil(t, p.FailureMessage)
	assert.Equal(t, "no record at gateway", *p.FailureMessage)
}

func TestTick_PendingInsideWindowIsLeftAlone(t *testing.T) {
	f := newSchedFixture()
	f.seed(t, "pay-1", "order-1", types.PaymentStatusInProgress, 2*time.Minute)
	f.gw.txsByOrder["order-1"] = []pgw.Transaction{{TransactionKey: "tx-1", OrderRef: "order-1", Status: types.GatewayTxStatusPending}}

	f.sched.Tick(context.Background(), time.Now())

	assert.Equal(t, types.PaymentStatusInProgress, f.status(t, "pay-1"))
	assert.Zero(t, f.comp.paid)
	assert.Zero(t, f.comp.failed)
}

func TestTick_PendingPastWindowIsForceFailed(t *testing.T) {
	f := newSchedFixture()
	f.seed(t, "pay-1", "order-1", types.PaymentStatusInProgress, 6*time.Minute)
	f.gw.txsByOrder["order-1"] = []pgw.Transaction{{TransactionKey: "tx-1", OrderRef: "order-1", Status: types.GatewayTxStatusPending}}

	f.sched.Tick(context.Background(), time.Now())

	p, err := f.store.Get(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStatusFailed, p.Status)
	require.NotNil(t, p.FailureMessage)
	assert.Equal(t, "timeout", *p.FailureMessage)
}

func TestTick_GraceWindowSkipsYoungPayments(t *testing.T) {
	f := newSchedFixture()
	f.seed(t, "pay-1", "order-1", types.PaymentStatusInProgress, 10*time.Second)
	f.gw.txsByOrder["order-1"] = []pgw.Transaction{{TransactionKey: "tx-1", OrderRef: "order-1", Status: types.GatewayTxStatusSuccess}}

	f.sched.Tick(context.Background(), time.Now())

	// too young to touch, even though the gateway already answered
	assert.Equal(t, types.PaymentStatusInProgress, f.status(t, "pay-1"))
}

func TestTick_TransientQueryErrorLeavesPaymentForNextTick(t *testing.T) {
	f := newSchedFixture()
	f.seed(t, "pay-1", "order-1", types.PaymentStatusInProgress, 2*time.Minute)
	f.seed(t, "pay-2", "order-2", types.PaymentStatusInProgress, 2*time.Minute)
	f.gw.errByOrder["order-1"] = errors.New("gateway query failed")
	f.gw.txsByOrder["order-2"] = []pgw.Transaction{{TransactionKey: "tx-2", OrderRef: "order-2", Status: types.GatewayTxStatusSuccess}}

	f.sched.Tick(context.Background(), time.Now())

	// one bad payment never blocks the rest of the batch
	assert.Equal(t, types.PaymentStatusInProgress, f.status(t, "pay-1"))
	assert.Equal(t, types.PaymentStatusPaid, f.status(t, "pay-2"))
}

func TestTick_EmptyTransactionListTreatedAsNotFound(t *testing.T) {
	f := newSchedFixture()
	f.seed(t, "pay-1", "order-1", types.PaymentStatusInProgress, 2*time.Minute)
	// a misbehaving client answering an empty list instead of not-found
	f.gw.txsByOrder["order-1"] = []pgw.Transaction{}

	f.sched.Tick(context.Background(), time.Now())

	p, err := f.store.Get(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStatusFailed, p.Status)
	require.NotNil(t, p.FailureMessage)
	assert.Equal(t, "no record at gateway", *p.FailureMessage)
}

func TestTick_LatestTransactionWins(t *testing.T) {
	f := newSchedFixture()
	f.seed(t, "pay-1", "order-1", types.PaymentStatusInProgress, 2*time.Minute)
	// newest first: a retried charge succeeded after an earlier failure
	f.gw.txsByOrder["order-1"] = []pgw.Transaction{
		{TransactionKey: "tx-2", OrderRef: "order-1", Status: types.GatewayTxStatusSuccess},
		{TransactionKey: "tx-1", OrderRef: "order-1", Status: types.GatewayTxStatusFailed, Reason: "card declined"},
	}

	f.sched.Tick(context.Background(), time.Now())

	p, err := f.store.Get(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, types.PaymentStatusPaid, p.Status)
	require.NotNil(t, p.ExternalPaymentKey)
	assert.Equal(t, "tx-2", *p.ExternalPaymentKey)
}
