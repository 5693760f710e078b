package journal

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lasersell-stream/internal/proto"
)

type memoryStore struct {
	mu      sync.Mutex
	items   map[string][]byte
	failSet error
}

func (m *memoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.items[key]
	return val, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key string, value []byte) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	if m.items == nil {
		m.items = make(map[string][]byte)
	}
	m.items[key] = append([]byte(nil), value...)
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *memoryStore) Scan(ctx context.Context, prefix string) ([]Record, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for k, v := range m.items {
		if strings.HasPrefix(k, prefix) {
			out = append(out, Record{Key: k, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memoryStore) Close() error {
	return nil
}

func TestRecorderReplay(t *testing.T) {
	store := &memoryStore{}
	ctx := context.Background()
	rec := NewRecorder(store, nil, nil)
	rec.now = func() time.Time { return time.UnixMilli(1700000000000) }

	frames := []struct {
		dir  proto.Direction
		typ  string
		text string
	}{
		{proto.ClientToServer, proto.TypePing, `{"type":"ping","client_time_ms":1}`},
		{proto.ServerToClient, proto.TypePong, `{"type":"pong","server_time_ms":2}`},
		{proto.ServerToClient, proto.TypePnlUpdate, `{"type":"pnl_update","position_id":1,"profit_units":-3,"proceeds_units":4,"server_time_ms":5}`},
	}
	// More than nine entries checks that replay order is numeric, not lexical.
	for i := 0; i < 4; i++ {
		for _, f := range frames {
			require.NoError(t, rec.Record(ctx, f.dir, f.typ, []byte(f.text)))
		}
	}

	entries, err := Replay(ctx, store, rec.RunID())
	require.NoError(t, err)
	require.Len(t, entries, 12)
	for i, entry := range entries {
		f := frames[i%len(frames)]
		assert.Equal(t, uint64(i+1), entry.Seq)
		assert.Equal(t, rec.RunID(), entry.RunID)
		assert.Equal(t, f.dir, entry.Direction)
		assert.Equal(t, f.typ, entry.Type)
		assert.Equal(t, f.text, entry.Text)
		assert.Equal(t, int64(1700000000000), entry.AtMS)
	}

	msg, err := entries[0].ClientMessage()
	require.NoError(t, err)
	assert.Equal(t, proto.Ping{ClientTimeMS: 1}, msg)

	smsg, err := entries[2].ServerMessage(proto.DecodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, proto.PnlUpdate{PositionID: 1, ProfitUnits: -3, ProceedsUnits: 4, ServerTimeMS: 5}, smsg)

	_, err = entries[0].ServerMessage(proto.DecodeOptions{})
	assert.Error(t, err)
	_, err = entries[1].ClientMessage()
	assert.Error(t, err)

	runs, err := Runs(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []Run{{ID: rec.RunID(), StartedAtMS: 1700000000000}}, runs)
}

func TestRecorderRunsAreIsolated(t *testing.T) {
	store := &memoryStore{}
	ctx := context.Background()
	a := NewRecorder(store, nil, nil)
	b := NewRecorder(store, nil, nil)
	require.NotEqual(t, a.RunID(), b.RunID())

	require.NoError(t, a.Record(ctx, proto.ClientToServer, proto.TypePing, []byte(`{"type":"ping","client_time_ms":1}`)))
	require.NoError(t, b.Record(ctx, proto.ServerToClient, proto.TypePong, []byte(`{"type":"pong","server_time_ms":1}`)))
	require.NoError(t, b.Record(ctx, proto.ServerToClient, proto.TypePong, []byte(`{"type":"pong","server_time_ms":2}`)))

	entries, err := Replay(ctx, store, a.RunID())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	entries, err = Replay(ctx, store, b.RunID())
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	runs, err := Runs(ctx, store)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestReplayUnknownRun(t *testing.T) {
	_, err := Replay(context.Background(), &memoryStore{}, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = Replay(context.Background(), &memoryStore{}, " ")
	assert.Error(t, err)
}

func TestRecorderWriteFailureKeepsSequence(t *testing.T) {
	store := &memoryStore{}
	ctx := context.Background()
	rec := NewRecorder(store, nil, nil)
	require.NoError(t, rec.Record(ctx, proto.ClientToServer, proto.TypePing, []byte(`{}`)))

	store.failSet = errors.New("disk full")
	err := rec.Record(ctx, proto.ClientToServer, proto.TypePing, []byte(`{}`))
	require.Error(t, err)

	store.failSet = nil
	hook := rec.Hook(ctx)
	hook(proto.ClientToServer, proto.TypePing, []byte(`{}`))

	entries, err := Replay(ctx, store, rec.RunID())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(2), entries[1].Seq)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	assert.NoError(t, rec.Record(context.Background(), proto.ClientToServer, proto.TypePing, nil))
}
