package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seetheplay_stream_messages_total",
		Help: "Inbound stream messages accepted, by type",
	}, []string{"type"})

	decodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seetheplay_stream_decode_failures_total",
		Help: "Inbound payloads dropped because they could not be decoded",
	})

	sendsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seetheplay_stream_sends_dropped_total",
		Help: "Outbound requests not sent because the stream was not connected",
	})

	connectedStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "seetheplay_stream_connected",
		Help: "Number of currently connected event streams",
	})
)
