package gateway

// SubmitOutcome is the sealed result of a payment submission. Callers must
// switch over every variant; there is no implicit success default.
type SubmitOutcome interface {
	isSubmitOutcome()
}

// Accepted: the gateway took the payment and returned its transaction key.
type Accepted struct {
	Key string
}

// NotRequired: nothing to charge; points and coupon covered the full amount.
type NotRequired struct{}

// Rejected: the gateway explicitly refused the payment.
type Rejected struct {
	Reason string
}

// Uncertain: the request may or may not have reached the gateway. Must not
// be resubmitted; only an idempotent query can resolve it.
type Uncertain struct {
	Cause error
}

// NotReached: the gateway provably never processed the request. Safe to
// fail the payment and compensate.
type NotReached struct {
	Cause error
}

func (Accepted) isSubmitOutcome()    {}
func (NotRequired) isSubmitOutcome() {}
func (Rejected) isSubmitOutcome()    {}
func (Uncertain) isSubmitOutcome()   {}
func (NotReached) isSubmitOutcome()  {}
