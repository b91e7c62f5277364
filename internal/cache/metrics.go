package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	staleMarked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "platbook_cache_stale_marked_total",
		Help: "Cache entries marked stale, by tier and reason.",
	}, []string{"tier", "reason"})

	eventsDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "platbook_cache_events_deduped_total",
		Help: "Invalidation events dropped as duplicates.",
	})

	eventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "platbook_cache_events_rejected_total",
		Help: "Invalidation events rejected by tier legality, by tier and kind.",
	}, []string{"tier", "kind"})

	refreshDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "platbook_cache_refresh_dispatched_total",
		Help: "Fields included in dispatched refresh requests.",
	})

	refreshFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "platbook_cache_refresh_failures_total",
		Help: "Refresh dispatch attempts that failed.",
	})

	eventsMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "platbook_cache_events_malformed_total",
		Help: "Invalidation records dropped because they could not be decoded.",
	})
)
