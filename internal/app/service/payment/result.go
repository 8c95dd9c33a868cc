package payment

import "github.com/fatflowers/payflow/internal/models"

// FinalizeResult is the sealed outcome of a finalize attempt. Exactly one
// caller per payment ever sees Confirmed; everyone else gets
// AlreadyProcessed and must not re-run side effects.
type FinalizeResult interface {
	isFinalizeResult()
	Record() *models.Payment
}

// Confirmed: this caller performed the terminal transition.
type Confirmed struct {
	Payment *models.Payment
}

// AlreadyProcessed: the record was terminal before this attempt, or a
// concurrent writer won the race.
type AlreadyProcessed struct {
	Payment *models.Payment
}

func (Confirmed) isFinalizeResult()        {}
func (AlreadyProcessed) isFinalizeResult() {}

func (r Confirmed) Record() *models.Payment        { return r.Payment }
func (r AlreadyProcessed) Record() *models.Payment { return r.Payment }
