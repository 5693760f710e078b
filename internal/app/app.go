package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"lasersell-stream/internal/alerts"
	"lasersell-stream/internal/config"
	"lasersell-stream/internal/journal"
	"lasersell-stream/internal/journal/sqlite"
	"lasersell-stream/internal/metrics"
	"lasersell-stream/internal/proto"
	"lasersell-stream/internal/relay"
	"lasersell-stream/internal/stream"
	"lasersell-stream/internal/timescale"

	"go.uber.org/zap"
)

// App is the stream tap: it opens one session, sends the configured strategy
// and fans every server event out to the log, the journal, kafka, timescale
// and alerts.
type App struct {
	cfg       *config.Config
	log       *zap.Logger
	client    *stream.Client
	session   *Session
	store     journal.Store
	recorder  *journal.Recorder
	relay     *relay.Publisher
	positions *timescale.Writer
	alerts    *alerts.EventAlerts
	prom      *metrics.Prometheus
	metrics   *metrics.Metrics
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log, session: NewSession(), metrics: metrics.NewNoop()}
	if cfg.Metrics.EnabledValue() {
		a.prom = metrics.NewPrometheus()
		a.metrics = a.prom.Metrics
	}
	if cfg.Journal.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.SQLitePath), 0o755); err != nil {
			return nil, err
		}
		store, err := sqlite.New(cfg.Journal.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.store = store
		a.recorder = journal.NewRecorder(store, log, a.metrics)
	}
	if cfg.Kafka.Enabled {
		pub, err := relay.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, log, a.metrics)
		if err != nil {
			a.closeSinks()
			return nil, err
		}
		a.relay = pub
	}
	positions, err := timescale.New(cfg.Timescale, log, a.metrics)
	if err != nil {
		a.closeSinks()
		return nil, err
	}
	a.positions = positions
	if cfg.Telegram.Enabled {
		var opts []alerts.TelegramOption
		if cfg.Telegram.APIURL != "" {
			opts = append(opts, alerts.WithTelegramAPI(cfg.Telegram.APIURL, nil))
		}
		a.alerts = alerts.NewEventAlerts(alerts.NewTelegram(cfg.Telegram, log, opts...), cfg.Telegram.Events, log)
	}
	a.client = stream.New(cfg.Stream.URL, cfg.Stream.PingInterval, log, a.metrics)
	a.client.SetDecodeOptions(proto.DecodeOptions{StrictMarketContext: cfg.Stream.StrictMarketContext})
	return a, nil
}

func (a *App) Session() *Session {
	return a.session
}

// RunID is the journal run of this session, or "" when journaling is off.
func (a *App) RunID() string {
	if a.recorder == nil {
		return ""
	}
	return a.recorder.RunID()
}

// Run blocks until the server closes the session or ctx is done.
func (a *App) Run(ctx context.Context) error {
	defer a.closeSinks()
	if a.prom != nil {
		stop := a.serveMetrics()
		defer stop()
	}

	connectCtx, cancel := context.WithTimeout(ctx, a.cfg.Stream.ConnectTimeout)
	err := a.client.Connect(connectCtx)
	cancel()
	if err != nil {
		return err
	}
	defer a.client.Close()
	a.log.Info("stream connected", zap.String("url", a.cfg.Stream.URL), zap.String("run_id", a.RunID()))

	if a.recorder != nil {
		a.client.OnFrame(a.recorder.Hook(ctx))
	}
	configure := a.cfg.Session.Configure()
	if err := a.client.Send(ctx, configure); err != nil {
		return err
	}
	a.log.Info("configure sent", zap.Int("wallets", len(configure.WalletPubkeys)))

	a.positions.Start(ctx)
	handlers := a.handlers(ctx)
	return a.client.Run(ctx, func(msg proto.ServerMessage) {
		for _, h := range handlers {
			h(msg)
		}
	})
}

// handlers lists the consumers of every server event in delivery order. The
// session view is updated first so later consumers observe a consistent state.
func (a *App) handlers(ctx context.Context) []func(proto.ServerMessage) {
	hs := []func(proto.ServerMessage){a.session.Apply, a.logEvent}
	if a.relay != nil {
		hs = append(hs, a.relay.Handler(ctx))
	}
	if a.positions != nil {
		hs = append(hs, a.positions.Handler())
	}
	if a.alerts != nil {
		hs = append(hs, a.alerts.Handler(ctx))
	}
	return hs
}

func (a *App) logEvent(msg proto.ServerMessage) {
	switch m := msg.(type) {
	case proto.HelloOK:
		a.log.Info("session ready",
			zap.Uint64("session_id", m.SessionID),
			zap.Uint32("hi_capacity", m.Limits.HiCapacity),
			zap.Uint64("pnl_flush_ms", m.Limits.PnlFlushMS),
			zap.Uint32("max_positions_per_session", m.Limits.MaxPositionsPerSession),
		)
	case proto.ErrorResponse:
		a.log.Warn("stream error", zap.String("code", m.Code), zap.String("message", m.Message))
	case proto.PositionOpened:
		fields := []zap.Field{
			zap.Uint64("position_id", m.PositionID),
			zap.String("mint", m.Mint),
			zap.Uint64("tokens", m.Tokens),
		}
		if m.MarketContext != nil {
			fields = append(fields, zap.String("market", string(m.MarketContext.MarketType())))
		}
		a.log.Info("position opened", fields...)
	case proto.PositionClosed:
		a.log.Info("position closed", zap.Uint64("position_id", m.PositionID), zap.String("reason", m.Reason))
	case proto.ExitSignalWithTx:
		a.log.Info("exit signal", zap.Uint64("position_id", m.PositionID), zap.String("reason", m.Reason), zap.Int64("profit_units", m.ProfitUnits))
	case proto.Pong:
	default:
		a.log.Debug("stream event", zap.String("type", msg.Type()))
	}
}

func (a *App) serveMetrics() func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.prom.Handler())
	server := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux}
	go func() {
		a.log.Info("metrics listening", zap.String("addr", a.cfg.Metrics.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server error", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

func (a *App) closeSinks() {
	if a.store != nil {
		_ = a.store.Close()
		a.store = nil
	}
	if a.relay != nil {
		a.relay.Close()
		a.relay = nil
	}
	if a.positions != nil {
		_ = a.positions.Close()
		a.positions = nil
	}
}
