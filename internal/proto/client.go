package proto

const (
	TypePing              = "ping"
	TypeConfigure         = "configure"
	TypeUpdateStrategy    = "update_strategy"
	TypeClosePosition     = "close_position"
	TypeRequestExitSignal = "request_exit_signal"
)

// ClientMessage is a command sent from client to server. It is implemented by
// Ping, Configure, UpdateStrategy, ClosePosition and RequestExitSignal.
type ClientMessage interface {
	Type() string
	isClientMessage()
}

// Ping is a client keepalive.
type Ping struct {
	ClientTimeMS uint64
}

// Configure sets the wallets to monitor and the exit strategy for a session.
// Older clients send a single address under wallet_pubkey; it decodes into a
// one-element WalletPubkeys.
type Configure struct {
	WalletPubkeys []string
	Strategy      StrategyConfig
}

type UpdateStrategy struct {
	Strategy StrategyConfig
}

// ClosePosition asks the server to stop tracking a position, identified by id
// or by token account.
type ClosePosition struct {
	PositionID   *uint64
	TokenAccount *string
}

// RequestExitSignal asks for an immediate exit signal with an unsigned
// transaction. Decodes from the legacy sell_now tag as well.
type RequestExitSignal struct {
	PositionID   *uint64
	TokenAccount *string
	SlippageBps  *uint16
}

func (Ping) Type() string              { return TypePing }
func (Configure) Type() string         { return TypeConfigure }
func (UpdateStrategy) Type() string    { return TypeUpdateStrategy }
func (ClosePosition) Type() string     { return TypeClosePosition }
func (RequestExitSignal) Type() string { return TypeRequestExitSignal }

func (Ping) isClientMessage()              {}
func (Configure) isClientMessage()         {}
func (UpdateStrategy) isClientMessage()    {}
func (ClosePosition) isClientMessage()     {}
func (RequestExitSignal) isClientMessage() {}

var clientDecoders = map[string]func(r *fieldReader) ClientMessage{
	TypePing: func(r *fieldReader) ClientMessage {
		return Ping{ClientTimeMS: required[uint64](r, "client_time_ms")}
	},
	TypeConfigure: func(r *fieldReader) ClientMessage {
		return Configure{
			WalletPubkeys: r.stringList(walletPubkeysKeys...),
			Strategy:      readStrategy(r.object("strategy")),
		}
	},
	TypeUpdateStrategy: func(r *fieldReader) ClientMessage {
		return UpdateStrategy{Strategy: readStrategy(r.object("strategy"))}
	},
	TypeClosePosition: func(r *fieldReader) ClientMessage {
		return ClosePosition{
			PositionID:   optional[uint64](r, "position_id"),
			TokenAccount: optional[string](r, "token_account"),
		}
	},
	TypeRequestExitSignal: func(r *fieldReader) ClientMessage {
		return RequestExitSignal{
			PositionID:   optional[uint64](r, "position_id"),
			TokenAccount: optional[string](r, "token_account"),
			SlippageBps:  optional[uint16](r, "slippage_bps"),
		}
	},
}

// clientTagAliases holds retired tag values still accepted on decode.
var clientTagAliases = map[string]string{
	"sell_now": TypeRequestExitSignal,
}

// walletPubkeysKeys is consulted in order; the first present key wins.
var walletPubkeysKeys = []string{"wallet_pubkeys", "wallet_pubkey"}

// ResolveClientTag maps a wire tag to its current client message type.
// Current names are checked before legacy aliases.
func ResolveClientTag(tag string) (string, bool) {
	if _, ok := clientDecoders[tag]; ok {
		return tag, true
	}
	if current, ok := clientTagAliases[tag]; ok {
		return current, true
	}
	return "", false
}

// EncodeClientMessage returns the json wire form of m. Pointer variants are
// accepted; the tag is always the current name.
func EncodeClientMessage(m ClientMessage) ([]byte, error) {
	v, err := clientValue(m)
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	w := newObjectWriter()
	w.field("type", v.Type())
	switch v := v.(type) {
	case Ping:
		w.field("client_time_ms", v.ClientTimeMS)
	case Configure:
		wallets := v.WalletPubkeys
		if wallets == nil {
			wallets = []string{}
		}
		w.field("wallet_pubkeys", wallets)
		w.field("strategy", v.Strategy)
	case UpdateStrategy:
		w.field("strategy", v.Strategy)
	case ClosePosition:
		optionalField(w, "position_id", v.PositionID)
		optionalField(w, "token_account", v.TokenAccount)
	case RequestExitSignal:
		optionalField(w, "position_id", v.PositionID)
		optionalField(w, "token_account", v.TokenAccount)
		optionalField(w, "slippage_bps", v.SlippageBps)
	}
	data, err := w.bytes()
	if err != nil {
		return nil, encodeError(v.Type(), err)
	}
	return data, nil
}

// DecodeClientMessage parses one client message. Any failure is a *DecodeError.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	r, err := readEnvelope(data, ResolveClientTag)
	if err != nil {
		return nil, err
	}
	m := clientDecoders[r.state.tag](r)
	if r.state.err != nil {
		return nil, r.state.err
	}
	return m, nil
}

func clientValue(m ClientMessage) (ClientMessage, error) {
	switch v := m.(type) {
	case nil:
		return nil, ErrNilMessage
	case Ping, Configure, UpdateStrategy, ClosePosition, RequestExitSignal:
		return v, nil
	case *Ping:
		return deref[ClientMessage](v)
	case *Configure:
		return deref[ClientMessage](v)
	case *UpdateStrategy:
		return deref[ClientMessage](v)
	case *ClosePosition:
		return deref[ClientMessage](v)
	case *RequestExitSignal:
		return deref[ClientMessage](v)
	}
	return nil, ErrUnknownVariant
}

func deref[M any, T any](v *T) (M, error) {
	var zero M
	if v == nil {
		return zero, ErrNilMessage
	}
	m, ok := any(*v).(M)
	if !ok {
		return zero, ErrUnknownVariant
	}
	return m, nil
}
