// Package metrics holds the Prometheus collectors for the envelopes services.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "envelopes"

// Sync results.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

var ChallengesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "challenge",
	Name:      "created_total",
	Help:      "Total challenges created, by distribution.",
}, []string{"distribution"})

var ChallengesReset = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "challenge",
	Name:      "reset_total",
	Help:      "Total challenges reset.",
})

var EnvelopesOpened = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "challenge",
	Name:      "envelopes_opened_total",
	Help:      "Total envelopes opened for the first time.",
})

var AchievementsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "challenge",
	Name:      "achievements_unlocked_total",
	Help:      "Total achievements unlocked, by id.",
}, []string{"achievement"})

var GeneratorFallbacks = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "generator",
	Name:      "fallback_total",
	Help:      "Generations that hit the fine-tune cap and used the fallback sweep.",
})

var GeneratorFineTuneSteps = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "generator",
	Name:      "finetune_steps",
	Help:      "Fine-tune iterations spent per generation.",
	Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
})

var RemoteSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "sync",
	Name:      "remote_total",
	Help:      "Remote store and ledger syncs, by target and result.",
}, []string{"target", "result"})

var CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "cache",
	Name:      "lookups_total",
	Help:      "Challenge cache lookups, by result (hit or miss).",
}, []string{"result"})

var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by route pattern, method and status.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "method", "status"})

var RateLimited = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "rate_limited_total",
	Help:      "Write requests rejected by the per-client rate limiter.",
})

var SuspiciousRequests = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "suspicious_requests_total",
	Help:      "Requests matching scanner or traversal patterns.",
})

// ObserveHTTP records one request.
func ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// RecordSync counts one remote sync attempt against target.
func RecordSync(target string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	RemoteSyncs.WithLabelValues(target, result).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
