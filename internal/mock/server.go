// Package mock serves a local stand-in for the stream server so clients can be
// developed against canned events.
package mock

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"lasersell-stream/internal/metrics"
	"lasersell-stream/internal/proto"
	"lasersell-stream/internal/stream"
)

const (
	CodeInvalidRequest = "invalid_request"
	CodeNotConfigured  = "not_configured"
	CodeLimitExceeded  = "limit_exceeded"
	CodeUnsupported    = "unsupported"
)

type Server struct {
	limits   proto.Limits
	fixture  []proto.ServerMessage
	interval time.Duration
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	nextSession atomic.Uint64
}

// NewServer answers each session with the given limits and then replays
// fixture, one event per interval. Session ids start at firstSession.
func NewServer(limits proto.Limits, fixture []proto.ServerMessage, interval time.Duration, firstSession uint64, log *zap.Logger, m *metrics.Metrics) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		limits:   limits,
		fixture:  fixture,
		interval: interval,
		log:      log,
		metrics:  metrics.OrNoop(m),
		now:      time.Now,
	}
	s.nextSession.Store(firstSession)
	return s
}

func (s *Server) nowMS() uint64 {
	return uint64(s.now().UnixMilli())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := stream.Accept(w, r, s.log, s.metrics)
	if err != nil {
		s.log.Warn("mock accept failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sess := &session{server: s, conn: conn}
	err = sess.serve(ctx)
	switch {
	case err == nil, stream.IsClosed(err), errors.Is(err, context.Canceled):
		s.log.Info("mock session ended", zap.Uint64("session_id", sess.id))
	default:
		s.log.Warn("mock session failed", zap.Uint64("session_id", sess.id), zap.Error(err))
	}
}

type session struct {
	server   *Server
	conn     *stream.ServerConn
	id         uint64
	configured bool
	wallets    []string
	strategy   proto.StrategyConfig
}

func (s *session) serve(ctx context.Context) error {
	for {
		msg, err := s.conn.Recv(ctx)
		if err != nil {
			var de *proto.DecodeError
			if errors.As(err, &de) {
				if err := s.fail(ctx, CodeInvalidRequest, de.Error()); err != nil {
					return err
				}
				continue
			}
			return err
		}
		if err := s.handle(ctx, msg); err != nil {
			return err
		}
	}
}

func (s *session) fail(ctx context.Context, code, message string) error {
	return s.conn.Send(ctx, proto.ErrorResponse{Code: code, Message: message})
}

func (s *session) handle(ctx context.Context, msg proto.ClientMessage) error {
	switch m := msg.(type) {
	case proto.Ping:
		return s.conn.Send(ctx, proto.Pong{ServerTimeMS: s.server.nowMS()})
	case proto.Configure:
		return s.configure(ctx, m)
	case proto.UpdateStrategy:
		if !s.configured {
			return s.fail(ctx, CodeNotConfigured, "configure must be sent first")
		}
		s.strategy = m.Strategy
		return nil
	case proto.ClosePosition:
		if !s.configured {
			return s.fail(ctx, CodeNotConfigured, "configure must be sent first")
		}
		if m.PositionID == nil && m.TokenAccount == nil {
			return s.fail(ctx, CodeInvalidRequest, "position_id or token_account is required")
		}
		closed := proto.PositionClosed{Reason: "manual", TokenAccount: m.TokenAccount}
		if m.PositionID != nil {
			closed.PositionID = *m.PositionID
		}
		if len(s.wallets) > 0 {
			closed.WalletPubkey = s.wallets[0]
		}
		return s.conn.Send(ctx, closed)
	case proto.RequestExitSignal:
		if !s.configured {
			return s.fail(ctx, CodeNotConfigured, "configure must be sent first")
		}
		return s.fail(ctx, CodeUnsupported, "the mock server cannot build transactions")
	}
	return nil
}

func (s *session) configure(ctx context.Context, m proto.Configure) error {
	if len(m.WalletPubkeys) == 0 {
		return s.fail(ctx, CodeInvalidRequest, "at least one wallet is required")
	}
	if limit := s.server.limits.MaxWalletsPerSession; limit > 0 && uint32(len(m.WalletPubkeys)) > limit {
		return s.fail(ctx, CodeLimitExceeded, "too many wallets for one session")
	}
	first := !s.configured
	if first {
		s.id = s.server.nextSession.Add(1) - 1
		s.configured = true
	}
	s.wallets = m.WalletPubkeys
	s.strategy = m.Strategy
	hello := proto.HelloOK{SessionID: s.id, ServerTimeMS: s.server.nowMS(), Limits: s.server.limits}
	if err := s.conn.Send(ctx, hello); err != nil {
		return err
	}
	if first {
		go s.replayFixture(ctx)
	}
	return nil
}

// replayFixture sends the fixture once, then closes the session normally.
func (s *session) replayFixture(ctx context.Context) {
	for _, msg := range s.server.fixture {
		if s.server.interval > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.server.interval):
			}
		}
		if err := s.conn.Send(ctx, msg); err != nil {
			if ctx.Err() == nil {
				s.server.log.Warn("mock replay send failed", zap.Error(err))
			}
			return
		}
	}
	if len(s.server.fixture) > 0 {
		_ = s.conn.Close("fixture complete")
	}
}
