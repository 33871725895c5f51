package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PaymentTransitions counts lifecycle transitions by provider and
	// resulting status.
	PaymentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transitions_total",
			Help: "Count of payment lifecycle transitions",
		},
		[]string{"provider", "status"},
	)

	// IdempotencyHits counts idempotency-engine outcomes.
	IdempotencyHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_idempotency_outcomes_total",
			Help: "Idempotency engine outcomes: hit, executed, in_progress",
		},
		[]string{"outcome"},
	)

	// WebhookIngress counts webhook verification/dispatch outcomes per provider.
	WebhookIngress = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_ingress_total",
			Help: "Webhook ingress outcomes by provider and result",
		},
		[]string{"provider", "result"},
	)

	// SweeperBatchSize records how many due PENDING payments the sweeper
	// listed in its last pass, including any whose timeout handling failed.
	SweeperBatchSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "payment_sweeper_batch_size",
			Help: "Number of due payments listed by the most recent sweeper pass",
		},
	)
)
