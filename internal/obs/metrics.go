package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	channelActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_channel_active",
			Help: "Whether a push channel is currently open (0 or 1).",
		},
	)
	channelEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_channel_events_total",
			Help: "Total number of push channel lifecycle events.",
		},
		[]string{"event"},
	)
	reconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_channel_reconnects_total",
			Help: "Total number of push channel reconnect attempts.",
		},
	)
	messagesIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_messages_ingested_total",
			Help: "Messages admitted into the active room's store, by source.",
		},
		[]string{"source"},
	)
	duplicatesCollapsedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_duplicates_collapsed_total",
			Help: "Inbound messages merged into an existing entry instead of appended.",
		},
	)
	framesDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_frames_dropped_total",
			Help: "Malformed or stale push frames discarded.",
		},
	)
	sendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_sends_total",
			Help: "Optimistic send outcomes.",
		},
		[]string{"outcome"},
	)
	seenAcksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_seen_acks_total",
			Help: "Seen-acknowledgement call outcomes.",
		},
		[]string{"outcome"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		channelActive,
		channelEventsTotal,
		reconnectsTotal,
		messagesIngestedTotal,
		duplicatesCollapsedTotal,
		framesDroppedTotal,
		sendsTotal,
		seenAcksTotal,
		amqpPublishErrorsTotal,
	)
}

func SetChannelActive(active bool) {
	if active {
		channelActive.Set(1)
		return
	}
	channelActive.Set(0)
}

func IncChannelEvent(event string) {
	channelEventsTotal.WithLabelValues(event).Inc()
}

func IncReconnect() {
	reconnectsTotal.Inc()
}

func IncMessageIngested(source string) {
	messagesIngestedTotal.WithLabelValues(source).Inc()
}

func IncDuplicateCollapsed() {
	duplicatesCollapsedTotal.Inc()
}

func IncFrameDropped() {
	framesDroppedTotal.Inc()
}

func IncSend(outcome string) {
	sendsTotal.WithLabelValues(outcome).Inc()
}

func IncSeenAck(outcome string) {
	seenAcksTotal.WithLabelValues(outcome).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
