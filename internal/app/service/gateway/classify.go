package gateway

import (
	"errors"

	"github.com/fatflowers/payflow/internal/platform/pgw"

	"github.com/sony/gobreaker"
)

// ClassifySubmitError maps a failed submission to its outcome. This is the
// load-bearing decision of the whole service: Uncertain freezes the payment
// until a query resolves it, NotReached may be failed and compensated
// immediately.
//
//   - breaker open on the submit path: fail fast, the request never left
//     -> NotReached
//   - explicit gateway rejection (402/422 with a reason): -> Rejected
//   - any other HTTP status (4xx malformed, 5xx, 429): hard rejection by
//     policy -> NotReached
//   - transport failure before the request was written (connection refused,
//     connect timeout, DNS): -> NotReached
//   - transport failure after the request was written (read timeout,
//     connection reset): cannot prove non-delivery -> Uncertain
//
// Anything unrecognized defaults to Uncertain: when in doubt, never risk a
// double charge.
func ClassifySubmitError(err error) SubmitOutcome {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return NotReached{Cause: err}
	}

	var ce *pgw.CallError
	if errors.As(err, &ce) {
		if errors.Is(ce, pgw.ErrRejected) {
			return Rejected{Reason: ce.Reason}
		}
		if ce.StatusCode != 0 {
			return NotReached{Cause: ce}
		}
		switch ce.Phase {
		case pgw.PhaseConnect:
			return NotReached{Cause: ce}
		case pgw.PhaseSent:
			return Uncertain{Cause: ce}
		}
	}
	return Uncertain{Cause: err}
}
