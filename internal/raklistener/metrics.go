package raklistener

import "github.com/VictoriaMetrics/metrics"

// Package-level counters: one listener per process in practice, so these
// aren't labeled per-instance the way rakpeer's per-peer metrics are.
var (
	sessionsPromoted = metrics.NewCounter("raklistener_sessions_promoted_total")
	sessionsReaped   = metrics.NewCounter("raklistener_sessions_reaped_total")
	pingsAnswered    = metrics.NewCounter("raklistener_unconnected_pings_total")
)
