package stream

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"lasersell-stream/internal/metrics"
	"lasersell-stream/internal/proto"
)

// Client is the client side of a stream session. It does not reconnect: Run
// returns when the connection drops and the caller decides what to do next.
type Client struct {
	url          string
	pingInterval time.Duration
	log          *zap.Logger
	metrics      *metrics.Metrics
	decodeOpts   proto.DecodeOptions
	now          func() time.Time

	mu   sync.Mutex
	conn *websocket.Conn
	hook FrameHook
}

func New(url string, pingInterval time.Duration, log *zap.Logger, m *metrics.Metrics) *Client {
	return &Client{
		url:          url,
		pingInterval: pingInterval,
		log:          orNop(log),
		metrics:      metrics.OrNoop(m),
		now:          time.Now,
	}
}

// SetDecodeOptions changes how server frames are decoded. Call before Run.
func (c *Client) SetDecodeOptions(opts proto.DecodeOptions) {
	c.decodeOpts = opts
}

func (c *Client) OnFrame(hook FrameHook) {
	c.mu.Lock()
	c.hook = hook
	c.mu.Unlock()
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(readLimit)
	c.conn = conn
	return nil
}

func (c *Client) current() (*websocket.Conn, FrameHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn, c.hook
}

// Send encodes msg and writes it as one text frame.
func (c *Client) Send(ctx context.Context, msg proto.ClientMessage) error {
	conn, hook := c.current()
	if conn == nil {
		return ErrNotConnected
	}
	data, err := proto.EncodeClientMessage(msg)
	if err != nil {
		c.metrics.EncodeFailed.Inc()
		return err
	}
	if err := writeFrame(ctx, conn, data); err != nil {
		return err
	}
	c.metrics.MessagesSent.Inc(msg.Type())
	if hook != nil {
		hook(proto.ClientToServer, msg.Type(), data)
	}
	return nil
}

// Run reads server frames until the connection or ctx ends, passing each decoded
// message to handler. Frames that fail to decode are logged and skipped. A
// normal close from the server returns nil.
func (c *Client) Run(ctx context.Context, handler func(proto.ServerMessage)) error {
	conn, _ := c.current()
	if conn == nil {
		return ErrNotConnected
	}
	pingCtx, cancel := context.WithCancel(ctx)
	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		c.pingLoop(pingCtx)
	}()
	err := c.readLoop(ctx, conn, handler)
	cancel()
	<-pingDone
	c.resetConn()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	logReadLoopError(c.log, err)
	if isNormalClose(err) {
		return nil
	}
	return err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, handler func(proto.ServerMessage)) error {
	for {
		data, err := readFrame(ctx, conn, c.log)
		if err != nil {
			return err
		}
		msg, err := proto.DecodeServerMessageWith(data, c.decodeOpts)
		if err != nil {
			c.metrics.DecodeFailed.Inc()
			c.log.Warn("stream frame decode failed", zap.Error(err), zap.Int("bytes", len(data)))
			continue
		}
		c.metrics.MessagesReceived.Inc(msg.Type())
		if _, hook := c.current(); hook != nil {
			hook(proto.ServerToClient, msg.Type(), data)
		}
		if handler != nil {
			handler(msg)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	if c.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ping := proto.Ping{ClientTimeMS: uint64(c.now().UnixMilli())}
			if err := c.Send(ctx, ping); err != nil {
				if ctx.Err() == nil {
					c.log.Debug("stream ping failed", zap.Error(err))
				}
				return
			}
		}
	}
}

func (c *Client) resetConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "reset")
		c.conn = nil
	}
}

// Close ends the session with a normal closure.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(websocket.StatusNormalClosure, "client closing")
	c.conn = nil
	return err
}
