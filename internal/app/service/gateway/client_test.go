package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fatflowers/payflow/internal/platform/pgw"
	cfgpkg "github.com/fatflowers/payflow/pkg/config"
	"github.com/fatflowers/payflow/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newClientAt(baseURL string) Client {
	return NewClient(&cfgpkg.Config{Gateway: cfgpkg.GatewayConfig{
		BaseURL:       baseURL,
		MerchantKey:   "mk-test",
		SubmitTimeout: time.Second,
		QueryTimeout:  time.Second,
	}}, zap.NewNop().Sugar())
}

func TestSubmit_ZeroAmountNeverTouchesTheWire(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	defer srv.Close()

	outcome := newClientAt(srv.URL).Submit(context.Background(), &SubmitRequest{OrderRef: "order-1", Amount: 0})
	require.IsType(t, NotRequired{}, outcome)
	assert.Zero(t, calls)
}

func TestSubmit_AcceptedCarriesKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(pgw.SubmitResponse{TransactionKey: "tx-1"})
	}))
	defer srv.Close()

	outcome := newClientAt(srv.URL).Submit(context.Background(), &SubmitRequest{OrderRef: "order-1", Amount: 7000})
	require.IsType(t, Accepted{}, outcome)
	assert.Equal(t, "tx-1", outcome.(Accepted).Key)
}

func TestSubmit_UnreachableGatewayIsNotReached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	outcome := newClientAt(srv.URL).Submit(context.Background(), &SubmitRequest{OrderRef: "order-1", Amount: 7000})
	require.IsType(t, NotReached{}, outcome)
}

func TestSubmit_RejectionCarriesGatewayReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(map[string]string{"code": "card_declined", "message": "insufficient funds"})
	}))
	defer srv.Close()

	outcome := newClientAt(srv.URL).Submit(context.Background(), &SubmitRequest{OrderRef: "order-1", Amount: 7000})
	require.IsType(t, Rejected{}, outcome)
	assert.Equal(t, "insufficient funds", outcome.(Rejected).Reason)
}

func TestQueryByOrder_RetriesTransientFailures(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode([]pgw.Transaction{{TransactionKey: "tx-1", OrderRef: "order-1", Status: types.GatewayTxStatusSuccess}})
	}))
	defer srv.Close()

	txs, err := newClientAt(srv.URL).QueryByOrder(context.Background(), "order-1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, 3, attempts)
}

func TestQueryByOrder_NotFoundIsNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newClientAt(srv.URL).QueryByOrder(context.Background(), "order-1")
	require.Error(t, err)
	assert.True(t, pgw.IsNotFound(err))
	assert.Equal(t, 1, attempts)
}
