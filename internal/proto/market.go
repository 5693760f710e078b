package proto

import "fmt"

// MarketType identifies the liquidity venue a position trades on.
type MarketType string

const (
	MarketPumpFun          MarketType = "pump_fun"
	MarketPumpSwap         MarketType = "pump_swap"
	MarketMeteoraDbc       MarketType = "meteora_dbc"
	MarketMeteoraDammV2    MarketType = "meteora_damm_v2"
	MarketRaydiumLaunchpad MarketType = "raydium_launchpad"
	MarketRaydiumCpmm      MarketType = "raydium_cpmm"
)

var marketTypes = []MarketType{
	MarketPumpFun,
	MarketPumpSwap,
	MarketMeteoraDbc,
	MarketMeteoraDammV2,
	MarketRaydiumLaunchpad,
	MarketRaydiumCpmm,
}

// MarketTypes lists every market type in wire order.
func MarketTypes() []MarketType {
	return append([]MarketType(nil), marketTypes...)
}

func (t MarketType) Valid() bool {
	_, ok := contextKeys[t]
	return ok
}

func ParseMarketType(s string) (MarketType, error) {
	t := MarketType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown market type %q", s)
	}
	return t, nil
}

// contextKeys maps each market type to the sibling key holding its payload.
// The pump keys predate the snake_case market names and keep their old spelling.
var contextKeys = map[MarketType]string{
	MarketPumpFun:          "pumpfun",
	MarketPumpSwap:         "pumpswap",
	MarketMeteoraDbc:       "meteora_dbc",
	MarketMeteoraDammV2:    "meteora_damm_v2",
	MarketRaydiumLaunchpad: "raydium_launchpad",
	MarketRaydiumCpmm:      "raydium_cpmm",
}

// ContextKey returns the wire key of the payload for t, or "" for an unknown type.
func (t MarketType) ContextKey() string {
	return contextKeys[t]
}

// MarketContext is market-specific metadata carried with position events.
// It is implemented only by the six payload records in this package, so the
// market type and the payload can never disagree.
type MarketContext interface {
	MarketType() MarketType
	isMarketContext()
}

// PumpFunContext is an explicit marker with no fields.
type PumpFunContext struct{}

type PumpSwapContext struct {
	Pool         string  `json:"pool"`
	GlobalConfig *string `json:"global_config,omitempty"`
}

type MeteoraDbcContext struct {
	Pool      string `json:"pool"`
	Config    string `json:"config"`
	QuoteMint string `json:"quote_mint"`
}

type MeteoraDammV2Context struct {
	Pool string `json:"pool"`
}

type RaydiumLaunchpadContext struct {
	Pool             string `json:"pool"`
	Config           string `json:"config"`
	Platform         string `json:"platform"`
	QuoteMint        string `json:"quote_mint"`
	UserQuoteAccount string `json:"user_quote_account"`
}

type RaydiumCpmmContext struct {
	Pool             string `json:"pool"`
	Config           string `json:"config"`
	QuoteMint        string `json:"quote_mint"`
	UserQuoteAccount string `json:"user_quote_account"`
}

func (PumpFunContext) MarketType() MarketType          { return MarketPumpFun }
func (PumpSwapContext) MarketType() MarketType         { return MarketPumpSwap }
func (MeteoraDbcContext) MarketType() MarketType       { return MarketMeteoraDbc }
func (MeteoraDammV2Context) MarketType() MarketType    { return MarketMeteoraDammV2 }
func (RaydiumLaunchpadContext) MarketType() MarketType { return MarketRaydiumLaunchpad }
func (RaydiumCpmmContext) MarketType() MarketType      { return MarketRaydiumCpmm }

func (PumpFunContext) isMarketContext()          {}
func (PumpSwapContext) isMarketContext()         {}
func (MeteoraDbcContext) isMarketContext()       {}
func (MeteoraDammV2Context) isMarketContext()    {}
func (RaydiumLaunchpadContext) isMarketContext() {}
func (RaydiumCpmmContext) isMarketContext()      {}

func encodeMarketContext(ctx MarketContext) ([]byte, error) {
	payload, err := marketPayload(ctx)
	if err != nil {
		return nil, err
	}
	t := payload.MarketType()
	w := newObjectWriter()
	w.field("market_type", t)
	w.field(t.ContextKey(), payload)
	return w.bytes()
}

// marketPayload dereferences pointer payloads so the encoder only sees values.
func marketPayload(ctx MarketContext) (MarketContext, error) {
	switch v := ctx.(type) {
	case PumpFunContext, PumpSwapContext, MeteoraDbcContext, MeteoraDammV2Context,
		RaydiumLaunchpadContext, RaydiumCpmmContext:
		return v, nil
	case *PumpFunContext:
		if v != nil {
			return *v, nil
		}
	case *PumpSwapContext:
		if v != nil {
			return *v, nil
		}
	case *MeteoraDbcContext:
		if v != nil {
			return *v, nil
		}
	case *MeteoraDammV2Context:
		if v != nil {
			return *v, nil
		}
	case *RaydiumLaunchpadContext:
		if v != nil {
			return *v, nil
		}
	case *RaydiumCpmmContext:
		if v != nil {
			return *v, nil
		}
	}
	return nil, fmt.Errorf("market context %T has no wire form", ctx)
}

var marketDecoders = map[MarketType]func(r *fieldReader) MarketContext{
	MarketPumpFun: func(r *fieldReader) MarketContext {
		return PumpFunContext{}
	},
	MarketPumpSwap: func(r *fieldReader) MarketContext {
		return PumpSwapContext{
			Pool:         required[string](r, "pool"),
			GlobalConfig: optional[string](r, "global_config"),
		}
	},
	MarketMeteoraDbc: func(r *fieldReader) MarketContext {
		return MeteoraDbcContext{
			Pool:      required[string](r, "pool"),
			Config:    required[string](r, "config"),
			QuoteMint: required[string](r, "quote_mint"),
		}
	},
	MarketMeteoraDammV2: func(r *fieldReader) MarketContext {
		return MeteoraDammV2Context{Pool: required[string](r, "pool")}
	},
	MarketRaydiumLaunchpad: func(r *fieldReader) MarketContext {
		return RaydiumLaunchpadContext{
			Pool:             required[string](r, "pool"),
			Config:           required[string](r, "config"),
			Platform:         required[string](r, "platform"),
			QuoteMint:        required[string](r, "quote_mint"),
			UserQuoteAccount: required[string](r, "user_quote_account"),
		}
	},
	MarketRaydiumCpmm: func(r *fieldReader) MarketContext {
		return RaydiumCpmmContext{
			Pool:             required[string](r, "pool"),
			Config:           required[string](r, "config"),
			QuoteMint:        required[string](r, "quote_mint"),
			UserQuoteAccount: required[string](r, "user_quote_account"),
		}
	},
}

// readMarketContext collapses the wire shape (discriminator plus six optional
// siblings) into a single payload. Every present sibling must be well formed and
// the one named by market_type must be present, except that a lenient decode
// fills in the empty pump_fun payload. Extra siblings are dropped unless strict
// is set.
func readMarketContext(r *fieldReader, strict bool) MarketContext {
	t := MarketType(required[string](r, "market_type"))
	if r.failed() {
		return nil
	}
	if !t.Valid() {
		r.invalid("market_type", fmt.Sprintf("unknown market type %q", string(t)))
		return nil
	}
	var selected MarketContext
	for _, mt := range marketTypes {
		key := mt.ContextKey()
		child, ok := r.optionalObject(key)
		if r.failed() {
			return nil
		}
		if !ok {
			continue
		}
		payload := marketDecoders[mt](child)
		if r.failed() {
			return nil
		}
		if mt == t {
			selected = payload
			continue
		}
		if strict {
			r.invalid(key, fmt.Sprintf("payload does not match market_type %q", string(t)))
			return nil
		}
	}
	if selected == nil {
		// The pump_fun payload carries no fields, so a missing marker loses nothing.
		if t == MarketPumpFun && !strict {
			return PumpFunContext{}
		}
		r.missing(t.ContextKey())
		return nil
	}
	return selected
}
