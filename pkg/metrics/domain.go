package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Domain counters for the payment finalization flow. Registered on the
// default registry, served by the same listener as the HTTP metrics.

var GatewaySubmitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gateway_submit_total",
	Help: "Gateway payment submissions partitioned by classified outcome.",
}, []string{"outcome"})

var PaymentFinalizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "payment_finalized_total",
	Help: "Payment finalization attempts partitioned by terminal status and result.",
}, []string{"status", "result"})

var CompensationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "compensation_total",
	Help: "Compensation steps executed on failed payments.",
}, []string{"step"})

var ReconcileCheckedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "reconcile_checked_total",
	Help: "IN_PROGRESS payments examined by the reconciliation scheduler.",
})

var RecoveryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "recovery_total",
	Help: "Stuck PENDING payments handled by the recovery sweep.",
}, []string{"result"})
