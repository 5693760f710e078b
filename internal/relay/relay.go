// Package relay republishes server events to kafka for downstream consumers.
package relay

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"lasersell-stream/internal/metrics"
	"lasersell-stream/internal/proto"
)

const produceTimeout = 5 * time.Second

type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

type Publisher struct {
	client  producer
	topic   string
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(brokers []string, topic string, log *zap.Logger, m *metrics.Metrics) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("relay requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("relay topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("relay initialized", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return newPublisher(client, topic, log, m), nil
}

func newPublisher(client producer, topic string, log *zap.Logger, m *metrics.Metrics) *Publisher {
	return &Publisher{client: client, topic: topic, log: log, metrics: metrics.OrNoop(m)}
}

// Publish produces msg synchronously as one record.
func (p *Publisher) Publish(ctx context.Context, msg proto.ServerMessage) error {
	record, err := buildRecord(p.topic, msg)
	if err != nil {
		p.metrics.RelayFailed.Inc()
		return err
	}
	produceCtx, cancel := context.WithTimeout(ctx, produceTimeout)
	defer cancel()
	if err := p.client.ProduceSync(produceCtx, record).FirstErr(); err != nil {
		p.metrics.RelayFailed.Inc()
		return fmt.Errorf("failed to produce %s: %w", msg.Type(), err)
	}
	p.metrics.RelayPublished.Inc()
	return nil
}

// Handler returns a stream handler that publishes every event and logs failures.
func (p *Publisher) Handler(ctx context.Context) func(proto.ServerMessage) {
	return func(msg proto.ServerMessage) {
		if err := p.Publish(ctx, msg); err != nil {
			p.log.Warn("relay publish failed", zap.Error(err))
		}
	}
}

func (p *Publisher) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

// buildRecord keys position events by position id so one position stays on one
// partition. Other events fall back to a session, wallet or type key.
func buildRecord(topic string, msg proto.ServerMessage) (*kgo.Record, error) {
	value, err := proto.EncodeServerMessage(msg)
	if err != nil {
		return nil, err
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(recordKey(msg)),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte(msg.Type())},
		},
	}, nil
}

func recordKey(msg proto.ServerMessage) string {
	switch m := msg.(type) {
	case proto.PnlUpdate:
		return positionKey(m.PositionID)
	case proto.PositionOpened:
		return positionKey(m.PositionID)
	case proto.PositionClosed:
		return positionKey(m.PositionID)
	case proto.ExitSignalWithTx:
		return positionKey(m.PositionID)
	case proto.HelloOK:
		return "session/" + strconv.FormatUint(m.SessionID, 10)
	case proto.BalanceUpdate:
		return "wallet/" + m.WalletPubkey + "/" + m.Mint
	}
	return msg.Type()
}

func positionKey(id uint64) string {
	return "position/" + strconv.FormatUint(id, 10)
}
