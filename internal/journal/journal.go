// Package journal records stream frames per run so a session can be replayed
// and its messages decoded again later.
package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"lasersell-stream/internal/metrics"
	"lasersell-stream/internal/proto"
)

const (
	runPrefix   = "run/"
	indexPrefix = "runs/"
)

// Entry is one journaled frame. Text is the exact json that crossed the wire.
type Entry struct {
	RunID     string          `msgpack:"run_id"`
	Seq       uint64          `msgpack:"seq"`
	Direction proto.Direction `msgpack:"dir"`
	Type      string          `msgpack:"type"`
	AtMS      int64           `msgpack:"at_ms"`
	Text      string          `msgpack:"text"`
}

// ServerMessage decodes the entry text. It fails for client-to-server entries.
func (e Entry) ServerMessage(opts proto.DecodeOptions) (proto.ServerMessage, error) {
	if e.Direction != proto.ServerToClient {
		return nil, fmt.Errorf("journal entry %d is %s direction", e.Seq, e.Direction)
	}
	return proto.DecodeServerMessageWith([]byte(e.Text), opts)
}

func (e Entry) ClientMessage() (proto.ClientMessage, error) {
	if e.Direction != proto.ClientToServer {
		return nil, fmt.Errorf("journal entry %d is %s direction", e.Seq, e.Direction)
	}
	return proto.DecodeClientMessage([]byte(e.Text))
}

// Run describes a recorded session.
type Run struct {
	ID          string `msgpack:"id"`
	StartedAtMS int64  `msgpack:"started_at_ms"`
}

type Recorder struct {
	store   Store
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.Mutex
	runID   string
	seq     uint64
	started bool
}

// NewRecorder starts a new run with a fresh id. Nothing is written until the
// first frame is recorded.
func NewRecorder(store Store, log *zap.Logger, m *metrics.Metrics) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{
		store:   store,
		log:     log,
		metrics: metrics.OrNoop(m),
		now:     time.Now,
		runID:   uuid.New().String(),
	}
}

func (r *Recorder) RunID() string {
	return r.runID
}

// Record appends one frame to the run.
func (r *Recorder) Record(ctx context.Context, dir proto.Direction, msgType string, frame []byte) error {
	if r == nil || r.store == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	at := r.now().UnixMilli()
	if !r.started {
		if err := r.put(ctx, indexPrefix+r.runID, Run{ID: r.runID, StartedAtMS: at}); err != nil {
			return err
		}
		r.started = true
	}
	r.seq++
	entry := Entry{
		RunID:     r.runID,
		Seq:       r.seq,
		Direction: dir,
		Type:      msgType,
		AtMS:      at,
		Text:      string(frame),
	}
	if err := r.put(ctx, entryKey(r.runID, r.seq), entry); err != nil {
		r.seq--
		return err
	}
	r.metrics.JournalWrites.Inc()
	return nil
}

func (r *Recorder) put(ctx context.Context, key string, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		r.metrics.JournalFailed.Inc()
		return err
	}
	if err := r.store.Set(ctx, key, payload); err != nil {
		r.metrics.JournalFailed.Inc()
		return fmt.Errorf("journal write %s: %w", key, err)
	}
	return nil
}

// Hook adapts the recorder to a stream frame hook. Write failures are logged.
func (r *Recorder) Hook(ctx context.Context) func(dir proto.Direction, msgType string, frame []byte) {
	return func(dir proto.Direction, msgType string, frame []byte) {
		if err := r.Record(ctx, dir, msgType, frame); err != nil {
			r.log.Warn("journal record failed", zap.Error(err), zap.String("type", msgType))
		}
	}
}

// entryKey zero-pads seq so key order is sequence order.
func entryKey(runID string, seq uint64) string {
	return fmt.Sprintf("%s%s/%020d", runPrefix, runID, seq)
}

var ErrRunNotFound = errors.New("journal run not found")

// Replay returns the entries of one run in sequence order.
func Replay(ctx context.Context, store Store, runID string) ([]Entry, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, errors.New("run id is required")
	}
	if _, ok, err := store.Get(ctx, indexPrefix+runID); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	recs, err := store.Scan(ctx, runPrefix+runID+"/")
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(recs))
	for _, rec := range recs {
		var entry Entry
		if err := msgpack.Unmarshal(rec.Value, &entry); err != nil {
			return nil, fmt.Errorf("journal entry %s: %w", rec.Key, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Runs lists every recorded run ordered by id.
func Runs(ctx context.Context, store Store) ([]Run, error) {
	recs, err := store.Scan(ctx, indexPrefix)
	if err != nil {
		return nil, err
	}
	runs := make([]Run, 0, len(recs))
	for _, rec := range recs {
		var run Run
		if err := msgpack.Unmarshal(rec.Value, &run); err != nil {
			return nil, fmt.Errorf("journal run %s: %w", rec.Key, err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}
