package alerts

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"lasersell-stream/internal/proto"
)

type sender interface {
	Send(ctx context.Context, message string) error
}

// EventAlerts forwards selected server events to a chat as one-line messages.
type EventAlerts struct {
	sender sender
	events map[string]bool
	log    *zap.Logger
}

func NewEventAlerts(s sender, events []string, log *zap.Logger) *EventAlerts {
	set := make(map[string]bool, len(events))
	for _, e := range events {
		if tag, ok := proto.ResolveServerTag(strings.TrimSpace(e)); ok {
			set[tag] = true
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EventAlerts{sender: s, events: set, log: log}
}

// Notify sends msg when its type is selected. Unselected events return nil.
func (a *EventAlerts) Notify(ctx context.Context, msg proto.ServerMessage) error {
	if msg == nil || !a.events[msg.Type()] {
		return nil
	}
	text, ok := FormatEvent(msg)
	if !ok {
		return nil
	}
	return a.sender.Send(ctx, text)
}

func (a *EventAlerts) Handler(ctx context.Context) func(proto.ServerMessage) {
	return func(msg proto.ServerMessage) {
		if err := a.Notify(ctx, msg); err != nil {
			a.log.Warn("alert send failed", zap.Error(err), zap.String("type", msg.Type()))
		}
	}
}

// FormatEvent renders the events worth a human's attention.
func FormatEvent(msg proto.ServerMessage) (string, bool) {
	switch m := msg.(type) {
	case proto.ExitSignalWithTx:
		return fmt.Sprintf("exit signal: position %d mint %s reason %s profit %d units%s",
			m.PositionID, m.Mint, m.Reason, m.ProfitUnits, marketSuffix(m.MarketContext)), true
	case proto.PositionOpened:
		return fmt.Sprintf("position opened: %d mint %s tokens %d entry %d units%s",
			m.PositionID, m.Mint, m.Tokens, m.EntryQuoteUnits, marketSuffix(m.MarketContext)), true
	case proto.PositionClosed:
		return fmt.Sprintf("position closed: %d mint %s reason %s", m.PositionID, m.Mint, m.Reason), true
	case proto.ErrorResponse:
		return fmt.Sprintf("stream error %s: %s", m.Code, m.Message), true
	case proto.PnlUpdate:
		return fmt.Sprintf("pnl: position %d profit %d proceeds %d units", m.PositionID, m.ProfitUnits, m.ProceedsUnits), true
	case proto.BalanceUpdate:
		return fmt.Sprintf("balance: wallet %s mint %s tokens %d", m.WalletPubkey, m.Mint, m.Tokens), true
	}
	return "", false
}

func marketSuffix(ctx proto.MarketContext) string {
	if ctx == nil {
		return ""
	}
	return " on " + string(ctx.MarketType())
}
