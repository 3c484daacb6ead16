package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	FramesIn = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_frames_in_total",
		Help: "Inbound realtime frames by action",
	}, []string{"action"})
	FramesOut = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_frames_out_total",
		Help: "Outbound realtime frames written to the socket by action",
	}, []string{"action"})
	FramesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_frames_dropped_total",
		Help: "Inbound frames dropped by reason",
	}, []string{"reason"})
	PendingOutbound = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatsync_pending_outbound",
		Help: "Frames queued while the connection is down",
	})
	ReconnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_reconnect_attempts_total",
		Help: "Scheduled automatic reconnect attempts",
	})
	DuplicatesDiscarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_duplicates_discarded_total",
		Help: "Messages discarded by the merge rule by source",
	}, []string{"source"})
	PollCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_poll_cycles_total",
		Help: "Polling backstop cycles by outcome",
	}, []string{"outcome"})
	RateLimitRefreshes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_rate_limit_refreshes_total",
		Help: "Rate limit state fetches",
	})
	RESTDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatsync_rest_duration_seconds",
		Help:    "Backend REST call duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "outcome"})
)

func init() {
	prometheus.MustRegister(
		FramesIn, FramesOut, FramesDropped, PendingOutbound, ReconnectAttempts,
		DuplicatesDiscarded, PollCycles, RateLimitRefreshes, RESTDuration,
	)
}
