package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "lasersell_stream"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type promLabeled struct {
	vec *prometheus.CounterVec
}

func (p promLabeled) Inc(msgType string) {
	p.vec.WithLabelValues(msgType).Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry       *prometheus.Registry
	sent           *prometheus.CounterVec
	received       *prometheus.CounterVec
	decodeFailed   prometheus.Counter
	encodeFailed   prometheus.Counter
	journalWrites  prometheus.Counter
	journalFailed  prometheus.Counter
	relayPublished prometheus.Counter
	relayFailed    prometheus.Counter
	sinkWrites     prometheus.Counter
	sinkDropped    prometheus.Counter
	sinkFailed     prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	sent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "messages_sent_total",
		Help:      "Total number of stream messages sent, by type.",
	}, []string{"type"})
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "messages_received_total",
		Help:      "Total number of stream messages received and decoded, by type.",
	}, []string{"type"})
	decodeFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "decode_failed_total",
		Help:      "Total number of frames that failed to decode.",
	})
	encodeFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "encode_failed_total",
		Help:      "Total number of messages that failed to encode.",
	})
	journalWrites := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "journal_writes_total",
		Help:      "Total number of messages written to the journal.",
	})
	journalFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "journal_failed_total",
		Help:      "Total number of journal write failures.",
	})
	relayPublished := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "relay_published_total",
		Help:      "Total number of events published to kafka.",
	})
	relayFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "relay_failed_total",
		Help:      "Total number of kafka publish failures.",
	})
	sinkWrites := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "sink_writes_total",
		Help:      "Total number of position events written to timescale.",
	})
	sinkDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "sink_dropped_total",
		Help:      "Total number of position events dropped on a full timescale queue.",
	})
	sinkFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "sink_failed_total",
		Help:      "Total number of timescale insert failures.",
	})

	registry.MustRegister(sent, received, decodeFailed, encodeFailed, journalWrites, journalFailed, relayPublished, relayFailed,
		sinkWrites, sinkDropped, sinkFailed)

	m := &Metrics{
		MessagesSent:     promLabeled{sent},
		MessagesReceived: promLabeled{received},
		DecodeFailed:     promCounter{decodeFailed},
		EncodeFailed:     promCounter{encodeFailed},
		JournalWrites:    promCounter{journalWrites},
		JournalFailed:    promCounter{journalFailed},
		RelayPublished:   promCounter{relayPublished},
		RelayFailed:      promCounter{relayFailed},
		SinkWrites:       promCounter{sinkWrites},
		SinkDropped:      promCounter{sinkDropped},
		SinkFailed:       promCounter{sinkFailed},
	}

	return &Prometheus{
		Metrics:        m,
		registry:       registry,
		sent:           sent,
		received:       received,
		decodeFailed:   decodeFailed,
		encodeFailed:   encodeFailed,
		journalWrites:  journalWrites,
		journalFailed:  journalFailed,
		relayPublished: relayPublished,
		relayFailed:    relayFailed,
		sinkWrites:     sinkWrites,
		sinkDropped:    sinkDropped,
		sinkFailed:     sinkFailed,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
