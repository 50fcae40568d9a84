package sandwich

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GatewayMetrics tracks gateway related metrics.
var GatewayMetrics = struct {
	EventsTotal    *prometheus.CounterVec
	GatewayLatency *prometheus.GaugeVec
	ShardStatus    *prometheus.GaugeVec
	Reconnects     *prometheus.CounterVec
	IdentifyWait   prometheus.Histogram
}{
	EventsTotal: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandwich_gateway_events_total",
			Help: "Total number of dispatch events received, split by event type",
		},
		[]string{"event_type"},
	),
	GatewayLatency: promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sandwich_gateway_latency_seconds",
			Help: "Gateway latency in seconds, measured by heartbeat",
		},
		[]string{"shard_id"},
	),
	ShardStatus: promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sandwich_shard_status",
			Help: "Status of the shard",
		},
		[]string{"shard_id"},
	),
	Reconnects: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandwich_shard_reconnects_total",
			Help: "Number of times a shard has reconnected",
		},
		[]string{"shard_id"},
	),
	IdentifyWait: promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sandwich_identify_wait_seconds",
			Help:    "Time spent waiting for an identify slot",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	),
}

func RecordEvent(eventType string) {
	GatewayMetrics.EventsTotal.WithLabelValues(eventType).Inc()
}

func UpdateGatewayLatency(shardID int32, latency time.Duration) {
	GatewayMetrics.GatewayLatency.WithLabelValues(strconv.Itoa(int(shardID))).Set(latency.Seconds())
}

func UpdateShardStatus(shardID int32, status ShardStatus) {
	GatewayMetrics.ShardStatus.WithLabelValues(strconv.Itoa(int(shardID))).Set(float64(status))
}

func RecordReconnect(shardID int32) {
	GatewayMetrics.Reconnects.WithLabelValues(strconv.Itoa(int(shardID))).Inc()
}
