package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Recorder is the set of measurements the services emit.
type Recorder interface {
	RecordPhaseTransition(from, to string)
	RecordStaleLoadDiscarded()
	RecordMagicLink(outcome string)
	RecordCallback(outcome string)
	RecordUpload(slot, outcome string, size int64, duration time.Duration)
	RecordCleanup(slot string, deleted, failed int)
	RecordProfileOperation(op, outcome string)
}

// Nop returns a Recorder that discards every measurement.
func Nop() Recorder { return nop{} }

type nop struct{}

func (nop) RecordPhaseTransition(string, string)              {}
func (nop) RecordStaleLoadDiscarded()                         {}
func (nop) RecordMagicLink(string)                            {}
func (nop) RecordCallback(string)                             {}
func (nop) RecordUpload(string, string, int64, time.Duration) {}
func (nop) RecordCleanup(string, int, int)                    {}
func (nop) RecordProfileOperation(string, string)             {}

// Collector is the Prometheus Recorder.
type Collector struct {
	transitions    *prometheus.CounterVec
	staleLoads     prometheus.Counter
	magicLinks     *prometheus.CounterVec
	callbacks      *prometheus.CounterVec
	uploads        *prometheus.CounterVec
	uploadBytes    *prometheus.CounterVec
	uploadLatency  *prometheus.HistogramVec
	cleanupDeleted *prometheus.CounterVec
	cleanupFailed  *prometheus.CounterVec
	profileOps     *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
// Registration panics on duplicates, like prometheus.MustRegister.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profilekit_session_transitions_total",
			Help: "Session orchestrator phase transitions.",
		}, []string{"from", "to"}),
		staleLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "profilekit_session_stale_loads_total",
			Help: "Profile loads discarded because the identity changed while in flight.",
		}),
		magicLinks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profilekit_auth_magic_links_total",
			Help: "Magic link requests by outcome.",
		}, []string{"outcome"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profilekit_auth_callbacks_total",
			Help: "Callback exchanges by outcome.",
		}, []string{"outcome"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profilekit_media_uploads_total",
			Help: "Image uploads by slot and outcome.",
		}, []string{"slot", "outcome"}),
		uploadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profilekit_media_upload_bytes_total",
			Help: "Bytes stored by successful image uploads.",
		}, []string{"slot"}),
		uploadLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "profilekit_media_upload_duration_seconds",
			Help:    "Image upload latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"slot"}),
		cleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profilekit_media_cleanup_deleted_total",
			Help: "Superseded images removed by cleanup.",
		}, []string{"slot"}),
		cleanupFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profilekit_media_cleanup_failed_total",
			Help: "Superseded images cleanup could not remove.",
		}, []string{"slot"}),
		profileOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profilekit_profile_operations_total",
			Help: "Profile repository operations by kind and outcome.",
		}, []string{"op", "outcome"}),
	}

	reg.MustRegister(
		c.transitions,
		c.staleLoads,
		c.magicLinks,
		c.callbacks,
		c.uploads,
		c.uploadBytes,
		c.uploadLatency,
		c.cleanupDeleted,
		c.cleanupFailed,
		c.profileOps,
	)

	return c
}

func (c *Collector) RecordPhaseTransition(from, to string) {
	c.transitions.WithLabelValues(from, to).Inc()
}

func (c *Collector) RecordStaleLoadDiscarded() {
	c.staleLoads.Inc()
}

func (c *Collector) RecordMagicLink(outcome string) {
	c.magicLinks.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordCallback(outcome string) {
	c.callbacks.WithLabelValues(outcome).Inc()
}

// RecordUpload counts the upload. Size and latency are only observed for
// successful uploads.
func (c *Collector) RecordUpload(slot, outcome string, size int64, duration time.Duration) {
	c.uploads.WithLabelValues(slot, outcome).Inc()
	if outcome != OutcomeSuccess {
		return
	}
	if size > 0 {
		c.uploadBytes.WithLabelValues(slot).Add(float64(size))
	}
	c.uploadLatency.WithLabelValues(slot).Observe(duration.Seconds())
}

func (c *Collector) RecordCleanup(slot string, deleted, failed int) {
	if deleted > 0 {
		c.cleanupDeleted.WithLabelValues(slot).Add(float64(deleted))
	}
	if failed > 0 {
		c.cleanupFailed.WithLabelValues(slot).Add(float64(failed))
	}
}

func (c *Collector) RecordProfileOperation(op, outcome string) {
	c.profileOps.WithLabelValues(op, outcome).Inc()
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Outcome maps an error to an outcome label: nil is success, errors matched
// by rejected are "rejected", everything else "failed".
func Outcome(err error, rejected func(error) bool) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case rejected != nil && rejected(err):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}
