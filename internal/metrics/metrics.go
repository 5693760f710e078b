package metrics

type Counter interface {
	Inc()
}

// LabeledCounter counts per message type.
type LabeledCounter interface {
	Inc(msgType string)
}

type Metrics struct {
	MessagesSent     LabeledCounter
	MessagesReceived LabeledCounter
	DecodeFailed     Counter
	EncodeFailed     Counter
	JournalWrites    Counter
	JournalFailed    Counter
	RelayPublished   Counter
	RelayFailed      Counter
	SinkWrites       Counter
	SinkDropped      Counter
	SinkFailed       Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopLabeled struct{}

func (noopLabeled) Inc(string) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	l := noopLabeled{}
	return &Metrics{
		MessagesSent:     l,
		MessagesReceived: l,
		DecodeFailed:     n,
		EncodeFailed:     n,
		JournalWrites:    n,
		JournalFailed:    n,
		RelayPublished:   n,
		RelayFailed:      n,
		SinkWrites:       n,
		SinkDropped:      n,
		SinkFailed:       n,
	}
}

// OrNoop returns m, or a no-op set when m is nil.
func OrNoop(m *Metrics) *Metrics {
	if m == nil {
		return NewNoop()
	}
	return m
}
