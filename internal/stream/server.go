package stream

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"lasersell-stream/internal/metrics"
	"lasersell-stream/internal/proto"
)

// ServerConn is the server side of one accepted stream session.
type ServerConn struct {
	conn    *websocket.Conn
	log     *zap.Logger
	metrics *metrics.Metrics

	mu   sync.Mutex
	hook FrameHook
}

// Accept upgrades an http request to a stream session.
func Accept(w http.ResponseWriter, r *http.Request, log *zap.Logger, m *metrics.Metrics) (*ServerConn, error) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(readLimit)
	return &ServerConn{conn: conn, log: orNop(log), metrics: metrics.OrNoop(m)}, nil
}

func (s *ServerConn) OnFrame(hook FrameHook) {
	s.mu.Lock()
	s.hook = hook
	s.mu.Unlock()
}

func (s *ServerConn) frameHook() FrameHook {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hook
}

func (s *ServerConn) Send(ctx context.Context, msg proto.ServerMessage) error {
	data, err := proto.EncodeServerMessage(msg)
	if err != nil {
		s.metrics.EncodeFailed.Inc()
		return err
	}
	if err := writeFrame(ctx, s.conn, data); err != nil {
		return err
	}
	s.metrics.MessagesSent.Inc(msg.Type())
	if hook := s.frameHook(); hook != nil {
		hook(proto.ServerToClient, msg.Type(), data)
	}
	return nil
}

// Recv returns the next client message. A frame that does not decode yields a
// *proto.DecodeError and leaves the connection usable; any other error means
// the connection is gone.
func (s *ServerConn) Recv(ctx context.Context) (proto.ClientMessage, error) {
	data, err := readFrame(ctx, s.conn, s.log)
	if err != nil {
		return nil, err
	}
	msg, err := proto.DecodeClientMessage(data)
	if err != nil {
		s.metrics.DecodeFailed.Inc()
		return nil, err
	}
	s.metrics.MessagesReceived.Inc(msg.Type())
	if hook := s.frameHook(); hook != nil {
		hook(proto.ClientToServer, msg.Type(), data)
	}
	return msg, nil
}

func (s *ServerConn) Close(reason string) error {
	return s.conn.Close(websocket.StatusNormalClosure, reason)
}

// IsClosed reports whether err from Recv means the peer closed normally.
func IsClosed(err error) bool {
	return isNormalClose(err)
}
