package verify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	verificationsRequested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "platbook_verify_requests_total",
		Help: "Verification requests announced to the collaborator.",
	})

	verificationsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "platbook_verify_applied_total",
		Help: "Verification results folded into entities, by status.",
	}, []string{"status"})

	amplifiedSet = promauto.NewCounter(prometheus.CounterOpts{
		Name: "platbook_verify_amplified_total",
		Help: "Results that granted the amplified-confidence flag.",
	})

	resultsMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "platbook_verify_results_malformed_total",
		Help: "Result records dropped because they could not be decoded.",
	})
)
