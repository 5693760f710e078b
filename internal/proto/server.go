package proto

import "encoding/base64"

const (
	TypeHelloOK          = "hello_ok"
	TypePong             = "pong"
	TypeError            = "error"
	TypePnlUpdate        = "pnl_update"
	TypeBalanceUpdate    = "balance_update"
	TypePositionOpened   = "position_opened"
	TypePositionClosed   = "position_closed"
	TypeExitSignalWithTx = "exit_signal_with_tx"
)

// ServerMessage is an event or response sent from server to client.
type ServerMessage interface {
	Type() string
	isServerMessage()
}

// HelloOK acknowledges a session and announces its limits.
type HelloOK struct {
	SessionID    uint64
	ServerTimeMS uint64
	Limits       Limits
}

type Pong struct {
	ServerTimeMS uint64
}

// ErrorResponse reports an invalid request or a runtime failure. Code is the
// stable machine-readable part.
type ErrorResponse struct {
	Code    string
	Message string
}

// PnlUpdate carries profit and proceeds in quote units.
type PnlUpdate struct {
	PositionID    uint64
	ProfitUnits   int64
	ProceedsUnits uint64
	ServerTimeMS  uint64
}

type BalanceUpdate struct {
	WalletPubkey string
	Mint         string
	TokenAccount *string
	TokenProgram *string
	Tokens       uint64
	Slot         uint64
}

type PositionOpened struct {
	PositionID      uint64
	WalletPubkey    string
	Mint            string
	TokenAccount    string
	TokenProgram    *string
	Tokens          uint64
	EntryQuoteUnits uint64
	MarketContext   MarketContext
	Slot            uint64
}

type PositionClosed struct {
	PositionID   uint64
	WalletPubkey string
	Mint         string
	TokenAccount *string
	Reason       string
	Slot         uint64
}

// ExitSignalWithTx is an exit signal with an unsigned transaction attached.
// UnsignedTxB64 is standard base64 and is never inspected by the codec.
type ExitSignalWithTx struct {
	SessionID      uint64
	PositionID     uint64
	WalletPubkey   string
	Mint           string
	TokenAccount   *string
	TokenProgram   *string
	PositionTokens uint64
	ProfitUnits    int64
	Reason         string
	TriggeredAtMS  uint64
	MarketContext  MarketContext
	UnsignedTxB64  string
}

// UnsignedTx decodes the attached transaction bytes.
func (m ExitSignalWithTx) UnsignedTx() ([]byte, error) {
	return base64.StdEncoding.DecodeString(m.UnsignedTxB64)
}

// EncodeUnsignedTx is the inverse of ExitSignalWithTx.UnsignedTx.
func EncodeUnsignedTx(tx []byte) string {
	return base64.StdEncoding.EncodeToString(tx)
}

func (HelloOK) Type() string          { return TypeHelloOK }
func (Pong) Type() string             { return TypePong }
func (ErrorResponse) Type() string    { return TypeError }
func (PnlUpdate) Type() string        { return TypePnlUpdate }
func (BalanceUpdate) Type() string    { return TypeBalanceUpdate }
func (PositionOpened) Type() string   { return TypePositionOpened }
func (PositionClosed) Type() string   { return TypePositionClosed }
func (ExitSignalWithTx) Type() string { return TypeExitSignalWithTx }

func (HelloOK) isServerMessage()          {}
func (Pong) isServerMessage()             {}
func (ErrorResponse) isServerMessage()    {}
func (PnlUpdate) isServerMessage()        {}
func (BalanceUpdate) isServerMessage()    {}
func (PositionOpened) isServerMessage()   {}
func (PositionClosed) isServerMessage()   {}
func (ExitSignalWithTx) isServerMessage() {}

// DecodeOptions tunes server message decoding.
type DecodeOptions struct {
	// StrictMarketContext rejects market contexts carrying payloads other than
	// the one named by market_type. By default such extras are checked for shape
	// and dropped.
	StrictMarketContext bool
}

var serverDecoders = map[string]func(r *fieldReader, opts DecodeOptions) ServerMessage{
	TypeHelloOK: func(r *fieldReader, _ DecodeOptions) ServerMessage {
		return HelloOK{
			SessionID:    required[uint64](r, "session_id"),
			ServerTimeMS: required[uint64](r, "server_time_ms"),
			Limits:       readLimits(r.object("limits")),
		}
	},
	TypePong: func(r *fieldReader, _ DecodeOptions) ServerMessage {
		return Pong{ServerTimeMS: required[uint64](r, "server_time_ms")}
	},
	TypeError: func(r *fieldReader, _ DecodeOptions) ServerMessage {
		return ErrorResponse{
			Code:    required[string](r, "code"),
			Message: required[string](r, "message"),
		}
	},
	TypePnlUpdate: func(r *fieldReader, _ DecodeOptions) ServerMessage {
		return PnlUpdate{
			PositionID:    required[uint64](r, "position_id"),
			ProfitUnits:   required[int64](r, "profit_units"),
			ProceedsUnits: required[uint64](r, "proceeds_units"),
			ServerTimeMS:  required[uint64](r, "server_time_ms"),
		}
	},
	TypeBalanceUpdate: func(r *fieldReader, _ DecodeOptions) ServerMessage {
		return BalanceUpdate{
			WalletPubkey: required[string](r, "wallet_pubkey"),
			Mint:         required[string](r, "mint"),
			TokenAccount: optional[string](r, "token_account"),
			TokenProgram: optional[string](r, "token_program"),
			Tokens:       required[uint64](r, "tokens"),
			Slot:         required[uint64](r, "slot"),
		}
	},
	TypePositionOpened: func(r *fieldReader, opts DecodeOptions) ServerMessage {
		return PositionOpened{
			PositionID:      required[uint64](r, "position_id"),
			WalletPubkey:    required[string](r, "wallet_pubkey"),
			Mint:            required[string](r, "mint"),
			TokenAccount:    required[string](r, "token_account"),
			TokenProgram:    optional[string](r, "token_program"),
			Tokens:          required[uint64](r, "tokens"),
			EntryQuoteUnits: required[uint64](r, "entry_quote_units"),
			MarketContext:   optionalMarketContext(r, opts),
			Slot:            required[uint64](r, "slot"),
		}
	},
	TypePositionClosed: func(r *fieldReader, _ DecodeOptions) ServerMessage {
		return PositionClosed{
			PositionID:   required[uint64](r, "position_id"),
			WalletPubkey: required[string](r, "wallet_pubkey"),
			Mint:         required[string](r, "mint"),
			TokenAccount: optional[string](r, "token_account"),
			Reason:       required[string](r, "reason"),
			Slot:         required[uint64](r, "slot"),
		}
	},
	TypeExitSignalWithTx: func(r *fieldReader, opts DecodeOptions) ServerMessage {
		return ExitSignalWithTx{
			SessionID:      required[uint64](r, "session_id"),
			PositionID:     required[uint64](r, "position_id"),
			WalletPubkey:   required[string](r, "wallet_pubkey"),
			Mint:           required[string](r, "mint"),
			TokenAccount:   optional[string](r, "token_account"),
			TokenProgram:   optional[string](r, "token_program"),
			PositionTokens: required[uint64](r, "position_tokens"),
			ProfitUnits:    required[int64](r, "profit_units"),
			Reason:         required[string](r, "reason"),
			TriggeredAtMS:  required[uint64](r, "triggered_at_ms"),
			MarketContext:  optionalMarketContext(r, opts),
			UnsignedTxB64:  required[string](r, "unsigned_tx_b64"),
		}
	},
}

// serverTagAliases is empty today; retired server tags go here.
var serverTagAliases = map[string]string{}

func ResolveServerTag(tag string) (string, bool) {
	if _, ok := serverDecoders[tag]; ok {
		return tag, true
	}
	if current, ok := serverTagAliases[tag]; ok {
		return current, true
	}
	return "", false
}

func optionalMarketContext(r *fieldReader, opts DecodeOptions) MarketContext {
	child, ok := r.optionalObject("market_context")
	if !ok {
		return nil
	}
	return readMarketContext(child, opts.StrictMarketContext)
}

// EncodeServerMessage returns the json wire form of m. Absent optional fields,
// including a nil MarketContext, are left out.
func EncodeServerMessage(m ServerMessage) ([]byte, error) {
	v, err := serverValue(m)
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	w := newObjectWriter()
	w.field("type", v.Type())
	switch v := v.(type) {
	case HelloOK:
		w.field("session_id", v.SessionID)
		w.field("server_time_ms", v.ServerTimeMS)
		w.field("limits", v.Limits)
	case Pong:
		w.field("server_time_ms", v.ServerTimeMS)
	case ErrorResponse:
		w.field("code", v.Code)
		w.field("message", v.Message)
	case PnlUpdate:
		w.field("position_id", v.PositionID)
		w.field("profit_units", v.ProfitUnits)
		w.field("proceeds_units", v.ProceedsUnits)
		w.field("server_time_ms", v.ServerTimeMS)
	case BalanceUpdate:
		w.field("wallet_pubkey", v.WalletPubkey)
		w.field("mint", v.Mint)
		optionalField(w, "token_account", v.TokenAccount)
		optionalField(w, "token_program", v.TokenProgram)
		w.field("tokens", v.Tokens)
		w.field("slot", v.Slot)
	case PositionOpened:
		w.field("position_id", v.PositionID)
		w.field("wallet_pubkey", v.WalletPubkey)
		w.field("mint", v.Mint)
		w.field("token_account", v.TokenAccount)
		optionalField(w, "token_program", v.TokenProgram)
		w.field("tokens", v.Tokens)
		w.field("entry_quote_units", v.EntryQuoteUnits)
		optionalContext(w, "market_context", v.MarketContext)
		w.field("slot", v.Slot)
	case PositionClosed:
		w.field("position_id", v.PositionID)
		w.field("wallet_pubkey", v.WalletPubkey)
		w.field("mint", v.Mint)
		optionalField(w, "token_account", v.TokenAccount)
		w.field("reason", v.Reason)
		w.field("slot", v.Slot)
	case ExitSignalWithTx:
		w.field("session_id", v.SessionID)
		w.field("position_id", v.PositionID)
		w.field("wallet_pubkey", v.WalletPubkey)
		w.field("mint", v.Mint)
		optionalField(w, "token_account", v.TokenAccount)
		optionalField(w, "token_program", v.TokenProgram)
		w.field("position_tokens", v.PositionTokens)
		w.field("profit_units", v.ProfitUnits)
		w.field("reason", v.Reason)
		w.field("triggered_at_ms", v.TriggeredAtMS)
		optionalContext(w, "market_context", v.MarketContext)
		w.field("unsigned_tx_b64", v.UnsignedTxB64)
	}
	data, err := w.bytes()
	if err != nil {
		return nil, encodeError(v.Type(), err)
	}
	return data, nil
}

func DecodeServerMessage(data []byte) (ServerMessage, error) {
	return DecodeServerMessageWith(data, DecodeOptions{})
}

func DecodeServerMessageWith(data []byte, opts DecodeOptions) (ServerMessage, error) {
	r, err := readEnvelope(data, ResolveServerTag)
	if err != nil {
		return nil, err
	}
	m := serverDecoders[r.state.tag](r, opts)
	if r.state.err != nil {
		return nil, r.state.err
	}
	return m, nil
}

func serverValue(m ServerMessage) (ServerMessage, error) {
	switch v := m.(type) {
	case nil:
		return nil, ErrNilMessage
	case HelloOK, Pong, ErrorResponse, PnlUpdate, BalanceUpdate, PositionOpened,
		PositionClosed, ExitSignalWithTx:
		return v, nil
	case *HelloOK:
		return deref[ServerMessage](v)
	case *Pong:
		return deref[ServerMessage](v)
	case *ErrorResponse:
		return deref[ServerMessage](v)
	case *PnlUpdate:
		return deref[ServerMessage](v)
	case *BalanceUpdate:
		return deref[ServerMessage](v)
	case *PositionOpened:
		return deref[ServerMessage](v)
	case *PositionClosed:
		return deref[ServerMessage](v)
	case *ExitSignalWithTx:
		return deref[ServerMessage](v)
	}
	return nil, ErrUnknownVariant
}
