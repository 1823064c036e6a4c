package raknet

import "github.com/VictoriaMetrics/metrics"

// Metrics groups the reliability-engine counters for one peer. Each peer
// gets its own set, labeled by remote address, rather than one global
// counter — mirroring the per-connection metric labeling used elsewhere in
// the pack's listener code, just routed through VictoriaMetrics instead of
// bare atomics. Retransmits is registered but never incremented:
// SendQueue.Flush does not report which of its frame sets are
// retransmissions.
type Metrics struct {
	FramesSent     *metrics.Counter
	FramesReceived *metrics.Counter
	Retransmits    *metrics.Counter
	AcksSent       *metrics.Counter
	NacksSent      *metrics.Counter
}

func NewMetrics(peerLabel string) *Metrics {
	return &Metrics{
		FramesSent:     metrics.GetOrCreateCounter(`raknet_frames_sent_total{peer="` + peerLabel + `"}`),
		FramesReceived: metrics.GetOrCreateCounter(`raknet_frames_received_total{peer="` + peerLabel + `"}`),
		Retransmits:    metrics.GetOrCreateCounter(`raknet_retransmits_total{peer="` + peerLabel + `"}`),
		AcksSent:       metrics.GetOrCreateCounter(`raknet_acks_sent_total{peer="` + peerLabel + `"}`),
		NacksSent:      metrics.GetOrCreateCounter(`raknet_nacks_sent_total{peer="` + peerLabel + `"}`),
	}
}
