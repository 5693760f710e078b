package app

import (
	"sort"
	"sync"

	"lasersell-stream/internal/proto"
)

// Position is the client-side view of one tracked position.
type Position struct {
	ID              uint64
	WalletPubkey    string
	Mint            string
	TokenAccount    string
	Tokens          uint64
	EntryQuoteUnits uint64
	Market          proto.MarketType
	ProfitUnits     int64
	ProceedsUnits   uint64
	ExitSignaled    bool
}

// Session folds server events into the current session state.
type Session struct {
	mu        sync.Mutex
	id        uint64
	limits    proto.Limits
	ready     bool
	positions map[uint64]*Position
	closed    uint64
}

func NewSession() *Session {
	return &Session{positions: make(map[uint64]*Position)}
}

func (s *Session) Apply(msg proto.ServerMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch m := msg.(type) {
	case proto.HelloOK:
		s.id = m.SessionID
		s.limits = m.Limits
		s.ready = true
	case proto.PositionOpened:
		pos := &Position{
			ID:              m.PositionID,
			WalletPubkey:    m.WalletPubkey,
			Mint:            m.Mint,
			TokenAccount:    m.TokenAccount,
			Tokens:          m.Tokens,
			EntryQuoteUnits: m.EntryQuoteUnits,
		}
		if m.MarketContext != nil {
			pos.Market = m.MarketContext.MarketType()
		}
		s.positions[m.PositionID] = pos
	case proto.PnlUpdate:
		if pos, ok := s.positions[m.PositionID]; ok {
			pos.ProfitUnits = m.ProfitUnits
			pos.ProceedsUnits = m.ProceedsUnits
		}
	case proto.ExitSignalWithTx:
		if pos, ok := s.positions[m.PositionID]; ok {
			pos.ExitSignaled = true
			pos.ProfitUnits = m.ProfitUnits
		}
	case proto.PositionClosed:
		if _, ok := s.positions[m.PositionID]; ok {
			delete(s.positions, m.PositionID)
			s.closed++
		}
	}
}

// Ready reports whether hello_ok has been seen, with the session id and limits.
func (s *Session) Ready() (uint64, proto.Limits, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.limits, s.ready
}

// Positions returns the open positions ordered by id.
func (s *Session) Positions() []Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Position, 0, len(s.positions))
	for _, pos := range s.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Session) ClosedCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
