// Package stream carries proto messages over a websocket, one json message per
// text frame.
package stream

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"lasersell-stream/internal/proto"
)

// readLimit covers exit signals carrying a full unsigned transaction.
const readLimit = 1 << 20

var ErrNotConnected = errors.New("stream not connected")

// FrameHook observes every frame that was encoded for sending or decoded after
// receipt. It runs on the sending or reading goroutine and must not block.
type FrameHook func(dir proto.Direction, msgType string, frame []byte)

func writeFrame(ctx context.Context, conn *websocket.Conn, data []byte) error {
	return conn.Write(ctx, websocket.MessageText, data)
}

// readFrame returns the next text frame, skipping binary frames.
func readFrame(ctx context.Context, conn *websocket.Conn, log *zap.Logger) ([]byte, error) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ == websocket.MessageText {
			return data, nil
		}
		log.Warn("stream binary frame ignored", zap.Int("bytes", len(data)))
	}
}

func logReadLoopError(log *zap.Logger, err error) {
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		var closeErr websocket.CloseError
		if errors.As(err, &closeErr) {
			log.Info("stream read loop ended", zap.Int("status", int(closeErr.Code)), zap.String("reason", closeErr.Reason))
			return
		}
		log.Info("stream read loop ended", zap.Error(err))
		return
	}
	log.Warn("stream read loop ended", zap.Error(err))
}

func isNormalClose(err error) bool {
	status := websocket.CloseStatus(err)
	return status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway
}

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
