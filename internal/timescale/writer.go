// Package timescale stores position lifecycle events in a postgres (optionally
// timescaledb) table for dashboards and post-trade analysis.
package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"lasersell-stream/internal/config"
	"lasersell-stream/internal/metrics"
	"lasersell-stream/internal/proto"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const (
	writeTimeout = 3 * time.Second
	eventsTable  = "position_events"
)

// PositionEvent is one row of the position_events table. Nil pointers and
// empty strings are stored as NULL.
type PositionEvent struct {
	Time            time.Time
	Event           string
	SessionID       *uint64
	PositionID      uint64
	WalletPubkey    string
	Mint            string
	MarketType      string
	Tokens          *uint64
	EntryQuoteUnits *uint64
	ProfitUnits     *int64
	ProceedsUnits   *uint64
	Reason          string
	Slot            *uint64
}

// EventFromMessage maps the position events of the stream onto a row. Messages
// that do not concern a position report false. Events without a server
// timestamp are stamped with now.
func EventFromMessage(msg proto.ServerMessage, now time.Time) (PositionEvent, bool) {
	switch m := msg.(type) {
	case proto.PositionOpened:
		return PositionEvent{
			Time:            now,
			Event:           m.Type(),
			PositionID:      m.PositionID,
			WalletPubkey:    m.WalletPubkey,
			Mint:            m.Mint,
			MarketType:      marketType(m.MarketContext),
			Tokens:          &m.Tokens,
			EntryQuoteUnits: &m.EntryQuoteUnits,
			Slot:            &m.Slot,
		}, true
	case proto.PnlUpdate:
		return PositionEvent{
			Time:          msTime(m.ServerTimeMS),
			Event:         m.Type(),
			PositionID:    m.PositionID,
			ProfitUnits:   &m.ProfitUnits,
			ProceedsUnits: &m.ProceedsUnits,
		}, true
	case proto.ExitSignalWithTx:
		return PositionEvent{
			Time:         msTime(m.TriggeredAtMS),
			Event:        m.Type(),
			SessionID:    &m.SessionID,
			PositionID:   m.PositionID,
			WalletPubkey: m.WalletPubkey,
			Mint:         m.Mint,
			MarketType:   marketType(m.MarketContext),
			Tokens:       &m.PositionTokens,
			ProfitUnits:  &m.ProfitUnits,
			Reason:       m.Reason,
		}, true
	case proto.PositionClosed:
		return PositionEvent{
			Time:         now,
			Event:        m.Type(),
			PositionID:   m.PositionID,
			WalletPubkey: m.WalletPubkey,
			Mint:         m.Mint,
			Reason:       m.Reason,
			Slot:         &m.Slot,
		}, true
	}
	return PositionEvent{}, false
}

func marketType(ctx proto.MarketContext) string {
	if ctx == nil {
		return ""
	}
	return string(ctx.MarketType())
}

func msTime(ms uint64) time.Time {
	if ms > uint64(1<<63-1) {
		ms = 1<<63 - 1
	}
	return time.UnixMilli(int64(ms)).UTC()
}

// Unsigned 64-bit values do not fit BIGINT; they travel as text into NUMERIC
// columns.
func insertQuery(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (
		ts, event, session_id, position_id, wallet_pubkey, mint, market_type,
		tokens, entry_quote_units, profit_units, proceeds_units, reason, slot
	) VALUES (
		$1, $2, $3::text::numeric, $4::text::numeric, $5, $6, $7,
		$8::text::numeric, $9::text::numeric, $10::text::numeric, $11::text::numeric, $12, $13::text::numeric
	)`, table)
}

func (e PositionEvent) args() []any {
	return []any{
		e.Time.UTC(),
		e.Event,
		uintArg(e.SessionID),
		strconv.FormatUint(e.PositionID, 10),
		textArg(e.WalletPubkey),
		textArg(e.Mint),
		textArg(e.MarketType),
		uintArg(e.Tokens),
		uintArg(e.EntryQuoteUnits),
		intArg(e.ProfitUnits),
		uintArg(e.ProceedsUnits),
		textArg(e.Reason),
		uintArg(e.Slot),
	}
}

func textArg(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func uintArg(v *uint64) any {
	if v == nil {
		return nil
	}
	return strconv.FormatUint(*v, 10)
}

func intArg(v *int64) any {
	if v == nil {
		return nil
	}
	return strconv.FormatInt(*v, 10)
}

func schemaStatements(schema string) []string {
	table := schema + "." + eventsTable
	var stmts []string
	if schema != "public" {
		stmts = append(stmts, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema))
	}
	return append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		event TEXT NOT NULL,
		session_id NUMERIC(20,0),
		position_id NUMERIC(20,0) NOT NULL,
		wallet_pubkey TEXT,
		mint TEXT,
		market_type TEXT,
		tokens NUMERIC(20,0),
		entry_quote_units NUMERIC(20,0),
		profit_units NUMERIC(20,0),
		proceeds_units NUMERIC(20,0),
		reason TEXT,
		slot NUMERIC(20,0)
	)`, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_position_idx ON %s (position_id, ts)", eventsTable, table),
	)
}

// execer is the part of *sql.DB the writer uses.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Writer struct {
	db      execer
	closer  func() error
	log     *zap.Logger
	metrics *metrics.Metrics
	query   string
	events  chan PositionEvent
	now     func() time.Time
	started atomic.Bool
	dropped atomic.Uint64
}

// New connects to postgres and prepares the events table. It returns nil when
// the sink is disabled.
func New(cfg config.TimescaleConfig, log *zap.Logger, m *metrics.Metrics) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	w := newWriter(db, schema, cfg.QueueSize, log, m)
	w.closer = db.Close
	if err := w.ensureSchema(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func newWriter(db execer, schema string, queueSize int, log *zap.Logger, m *metrics.Metrics) *Writer {
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		db:      db,
		log:     log,
		metrics: metrics.OrNoop(m),
		query:   insertQuery(schema + "." + eventsTable),
		events:  make(chan PositionEvent, queueSize),
		now:     time.Now,
	}
}

func (w *Writer) ensureSchema(ctx context.Context, schema string) error {
	for _, stmt := range schemaStatements(schema) {
		if err := w.exec(ctx, stmt); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	table := schema + "." + eventsTable
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", table)); err != nil {
		w.log.Warn("timescale position_events hypertable create failed", zap.Error(err))
	}
	return nil
}

// Start runs the insert loop until ctx is done. Later calls are no-ops.
func (w *Writer) Start(ctx context.Context) {
	if w == nil || !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.events:
			w.write(ctx, ev)
		}
	}
}

// Enqueue queues msg when it is a position event. A full queue drops the event
// rather than stalling the stream reader.
func (w *Writer) Enqueue(msg proto.ServerMessage) bool {
	if w == nil {
		return false
	}
	ev, ok := EventFromMessage(msg, w.now())
	if !ok {
		return false
	}
	select {
	case w.events <- ev:
		return true
	default:
		w.metrics.SinkDropped.Inc()
		if w.dropped.Add(1) == 1 {
			w.log.Warn("timescale position queue full")
		}
		return false
	}
}

func (w *Writer) Handler() func(proto.ServerMessage) {
	return func(msg proto.ServerMessage) {
		w.Enqueue(msg)
	}
}

func (w *Writer) write(ctx context.Context, ev PositionEvent) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if _, err := w.db.ExecContext(ctx, w.query, ev.args()...); err != nil {
		w.metrics.SinkFailed.Inc()
		w.log.Warn("timescale position insert failed",
			zap.Error(err),
			zap.String("event", ev.Event),
			zap.Uint64("position_id", ev.PositionID),
		)
		return
	}
	w.metrics.SinkWrites.Inc()
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) Close() error {
	if w == nil || w.closer == nil {
		return nil
	}
	return w.closer()
}
