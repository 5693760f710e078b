package proto

import (
	"encoding/json"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	addr1 = "11111111111111111111111111111111"
	addr2 = "22222222222222222222222222222222"
	addr3 = "33333333333333333333333333333333"
	addr4 = "44444444444444444444444444444444"
	addr5 = "55555555555555555555555555555555"
)

func decodeMarketContext(t *testing.T, data []byte, strict bool) (MarketContext, error) {
	t.Helper()
	r, err := readObject(data)
	require.NoError(t, err)
	ctx := readMarketContext(r, strict)
	if r.state.err != nil {
		return nil, r.state.err
	}
	return ctx, nil
}

func objectKeys(t *testing.T, data []byte) []string {
	t.Helper()
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func allContexts() []MarketContext {
	return []MarketContext{
		PumpFunContext{},
		PumpSwapContext{Pool: addr1, GlobalConfig: String(addr2)},
		PumpSwapContext{Pool: addr1},
		MeteoraDbcContext{Pool: addr1, Config: addr2, QuoteMint: addr3},
		MeteoraDammV2Context{Pool: addr1},
		RaydiumLaunchpadContext{Pool: addr1, Config: addr2, Platform: addr3, QuoteMint: addr4, UserQuoteAccount: addr5},
		RaydiumCpmmContext{Pool: addr1, Config: addr2, QuoteMint: addr3, UserQuoteAccount: addr4},
	}
}

func TestMarketContextRoundTrip(t *testing.T) {
	for _, ctx := range allContexts() {
		t.Run(string(ctx.MarketType()), func(t *testing.T) {
			data, err := encodeMarketContext(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"market_type", ctx.MarketType().ContextKey()}, objectKeys(t, data))

			got, err := decodeMarketContext(t, data, true)
			require.NoError(t, err)
			assert.Equal(t, ctx, got)
		})
	}
}

func TestMarketContextWireShape(t *testing.T) {
	data, err := encodeMarketContext(PumpFunContext{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"market_type":"pump_fun","pumpfun":{}}`, string(data))

	data, err = encodeMarketContext(PumpSwapContext{Pool: addr1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"market_type":"pump_swap","pumpswap":{"pool":"`+addr1+`"}}`, string(data))
}

func TestMarketContextPointerPayload(t *testing.T) {
	data, err := encodeMarketContext(&MeteoraDammV2Context{Pool: addr1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"market_type":"meteora_damm_v2","meteora_damm_v2":{"pool":"`+addr1+`"}}`, string(data))

	var nilCtx *RaydiumCpmmContext
	_, err = encodeMarketContext(nilCtx)
	require.Error(t, err)
}

func TestMarketContextExtraSiblings(t *testing.T) {
	raw := []byte(`{
		"market_type":"meteora_damm_v2",
		"meteora_damm_v2":{"pool":"` + addr1 + `"},
		"pumpfun":{},
		"raydium_cpmm":null
	}`)

	got, err := decodeMarketContext(t, raw, false)
	require.NoError(t, err)
	assert.Equal(t, MeteoraDammV2Context{Pool: addr1}, got)

	_, err = decodeMarketContext(t, raw, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidField))
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "pumpfun", de.Field)
}

func TestMarketContextMissingPayload(t *testing.T) {
	_, err := decodeMarketContext(t, []byte(`{"market_type":"meteora_dbc"}`), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = decodeMarketContext(t, []byte(`{"market_type":"raydium_cpmm","pumpswap":{"pool":"P"}}`), false)
	require.Error(t, err)
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "raydium_cpmm", de.Field)
}

func TestMarketContextPumpFunMarkerOptional(t *testing.T) {
	raw := []byte(`{"market_type":"pump_fun"}`)
	got, err := decodeMarketContext(t, raw, false)
	require.NoError(t, err)
	assert.Equal(t, PumpFunContext{}, got)

	_, err = decodeMarketContext(t, raw, true)
	require.Error(t, err)
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.ErrorIs(t, err, ErrMissingField)
	assert.Equal(t, "pumpfun", de.Field)

	msg, err := DecodeServerMessage([]byte(`{"type":"position_opened","position_id":1,"wallet_pubkey":"W","mint":"M","token_account":"T","tokens":1,"entry_quote_units":1,"slot":1,"market_context":{"market_type":"pump_fun"}}`))
	require.NoError(t, err)
	assert.Equal(t, PumpFunContext{}, msg.(PositionOpened).MarketContext)
}

func TestMarketContextMalformedSibling(t *testing.T) {
	// A sibling that does not match market_type is still shape checked.
	raw := []byte(`{
		"market_type":"pump_fun",
		"pumpfun":{},
		"meteora_dbc":{"config":"C","quote_mint":"Q"}
	}`)
	_, err := decodeMarketContext(t, raw, false)
	require.Error(t, err)
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.ErrorIs(t, err, ErrMissingField)
	assert.Equal(t, "meteora_dbc.pool", de.Field)

	_, err = decodeMarketContext(t, []byte(`{"market_type":"pump_fun","pumpfun":[]}`), false)
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestMarketContextUnknownType(t *testing.T) {
	_, err := decodeMarketContext(t, []byte(`{"market_type":"orca_whirlpool"}`), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidField)

	_, err = decodeMarketContext(t, []byte(`{"pumpfun":{}}`), false)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestParseMarketType(t *testing.T) {
	for _, mt := range MarketTypes() {
		got, err := ParseMarketType(string(mt))
		require.NoError(t, err)
		assert.Equal(t, mt, got)
		assert.NotEmpty(t, mt.ContextKey())
	}
	_, err := ParseMarketType("PumpFun")
	assert.Error(t, err)
	assert.False(t, MarketType("").Valid())
}
