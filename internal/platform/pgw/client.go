package pgw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"sync/atomic"

	cfgpkg "github.com/fatflowers/payflow/pkg/config"
)

// Phase records how far a failed call got before it broke. The submit
// classification depends on it: a request that was never written cannot
// have been processed by the gateway.
type Phase string

const (
	// PhaseConnect: the request was not fully written to the wire.
	PhaseConnect Phase = "connect"
	// PhaseSent: the request left the process; the response never arrived
	// or arrived broken.
	PhaseSent Phase = "sent"
)

var (
	// ErrTransactionNotFound is returned when the gateway has no record of
	// the queried key or order ref.
	ErrTransactionNotFound = errors.New("transaction not found at gateway")
	// ErrRejected marks an explicit business rejection by the gateway.
	ErrRejected = errors.New("gateway rejected payment")
)

// CallError normalizes every transport or protocol failure of a gateway
// call. Raw transport errors never leave this package undressed.
type CallError struct {
	Op         string
	Phase      Phase
	StatusCode int
	Reason     string
	Err        error
}

func (e *CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("pgw %s: status %d: %s", e.Op, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("pgw %s: %s phase: %v", e.Op, e.Phase, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether the gateway answered that it has no record of
// the payment. That is an answer, not a transient failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound)
}

// Client speaks the gateway wire contract. It carries no retry or breaker
// logic; that belongs to the layer above.
type Client struct {
	baseURL     string
	merchantKey string
	callbackURL string
	submitHTTP  *http.Client
	queryHTTP   *http.Client
}

func NewClient(cfg *cfgpkg.Config) *Client {
	g := cfg.Gateway
	return &Client{
		baseURL:     g.BaseURL,
		merchantKey: g.MerchantKey,
		callbackURL: g.CallbackURL,
		submitHTTP:  &http.Client{Timeout: g.SubmitTimeout},
		queryHTTP:   &http.Client{Timeout: g.QueryTimeout},
	}
}

// Submit posts a payment to the gateway. Failures come back as *CallError;
// an explicit rejection wraps ErrRejected with the gateway's reason.
func (c *Client) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	if req.CallbackURL == "" {
		req.CallbackURL = c.callbackURL
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &CallError{Op: "submit", Phase: PhaseConnect, Err: err}
	}

	// Track whether the request body left the process. Everything before
	// WroteRequest is provably undelivered.
	var wrote atomic.Bool
	trace := &httptrace.ClientTrace{
		WroteRequest: func(httptrace.WroteRequestInfo) { wrote.Store(true) },
	}
	ctx = httptrace.WithClientTrace(ctx, trace)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payments", bytes.NewReader(body))
	if err != nil {
		return nil, &CallError{Op: "submit", Phase: PhaseConnect, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.merchantKey)

	resp, err := c.submitHTTP.Do(httpReq)
	if err != nil {
		phase := PhaseConnect
		if wrote.Load() {
			phase = PhaseSent
		}
		return nil, &CallError{Op: "submit", Phase: phase, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		// response started arriving, so the gateway saw the request
		return nil, &CallError{Op: "submit", Phase: PhaseSent, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var out SubmitResponse
		if err := json.Unmarshal(respBody, &out); err != nil {
			return nil, &CallError{Op: "submit", Phase: PhaseSent, Err: err}
		}
		if out.TransactionKey == "" {
			return nil, &CallError{Op: "submit", Phase: PhaseSent, Err: errors.New("empty transaction key")}
		}
		return &out, nil
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity:
		var eb errorBody
		_ = json.Unmarshal(respBody, &eb)
		reason := eb.Message
		if reason == "" {
			reason = "payment rejected"
		}
		return nil, &CallError{Op: "submit", StatusCode: resp.StatusCode, Reason: reason, Err: ErrRejected}
	default:
		var eb errorBody
		_ = json.Unmarshal(respBody, &eb)
		return nil, &CallError{Op: "submit", StatusCode: resp.StatusCode, Reason: eb.Message, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
}

// QueryByKey fetches the transaction for an external payment key.
func (c *Client) QueryByKey(ctx context.Context, key string) (*Transaction, error) {
	var tx Transaction
	if err := c.getJSON(ctx, c.baseURL+"/v1/payments/"+url.PathEscape(key), &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// QueryByOrder lists the gateway's transactions for an order ref, newest
// first. An order the gateway never saw yields ErrTransactionNotFound.
func (c *Client) QueryByOrder(ctx context.Context, orderRef string) ([]Transaction, error) {
	var txs []Transaction
	u := c.baseURL + "/v1/payments?order_ref=" + url.QueryEscape(orderRef)
	if err := c.getJSON(ctx, u, &txs); err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, &CallError{Op: "query", StatusCode: http.StatusNotFound, Err: ErrTransactionNotFound}
	}
	return txs, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &CallError{Op: "query", Phase: PhaseConnect, Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.merchantKey)

	resp, err := c.queryHTTP.Do(httpReq)
	if err != nil {
		return &CallError{Op: "query", Phase: PhaseConnect, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &CallError{Op: "query", Phase: PhaseSent, Err: err}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.Unmarshal(respBody, out); err != nil {
			return &CallError{Op: "query", Phase: PhaseSent, Err: err}
		}
		return nil
	case http.StatusNotFound:
		return &CallError{Op: "query", StatusCode: resp.StatusCode, Err: ErrTransactionNotFound}
	default:
		var eb errorBody
		_ = json.Unmarshal(respBody, &eb)
		return &CallError{Op: "query", StatusCode: resp.StatusCode, Reason: eb.Message, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
}
