// Package metrics exposes Prometheus counters and histograms for the session
// orchestrator, the auth gateway, the profile service and the media
// repository.
//
// Services depend on the Recorder interface and default to Nop, so metrics are
// opt-in:
//
//	reg := prometheus.NewRegistry()
//	rec := metrics.NewCollector(reg)
//	orch := session.New(gw, profiles, media, session.WithMetrics(rec))
//	http.Handle("/metrics", metrics.Handler(reg))
package metrics
