package proto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStrategy() StrategyConfig {
	return StrategyConfig{TargetProfitPct: 5.0, StopLossPct: 1.5, DeadlineTimeoutSec: 45}
}

func clientRoundTrip(t *testing.T, msg ClientMessage) []byte {
	t.Helper()
	data, err := EncodeClientMessage(msg)
	require.NoError(t, err)
	got, err := DecodeClientMessage(data)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
	return data
}

func TestClientMessagesRoundTrip(t *testing.T) {
	msgs := []ClientMessage{
		Ping{ClientTimeMS: 1700000000000},
		Configure{WalletPubkeys: []string{addr1, addr2}, Strategy: testStrategy()},
		Configure{Strategy: StrategyConfig{TargetProfitPct: -0.25}},
		UpdateStrategy{Strategy: testStrategy()},
		ClosePosition{},
		ClosePosition{PositionID: Uint64(9)},
		ClosePosition{TokenAccount: String(addr3)},
		RequestExitSignal{},
		RequestExitSignal{PositionID: Uint64(1), TokenAccount: String(addr4), SlippageBps: Uint16(65535)},
	}
	for _, msg := range msgs {
		t.Run(msg.Type(), func(t *testing.T) {
			clientRoundTrip(t, msg)
		})
	}
}

func TestConfigureLegacyWalletPubkeyString(t *testing.T) {
	raw := `{
		"type":"configure",
		"wallet_pubkey":"11111111111111111111111111111111",
		"strategy":{
			"target_profit_pct":5.0,
			"stop_loss_pct":1.5,
			"deadline_timeout_sec":45
		}
	}`
	msg, err := DecodeClientMessage([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, Configure{WalletPubkeys: []string{addr1}, Strategy: testStrategy()}, msg)

	data, err := EncodeClientMessage(msg)
	require.NoError(t, err)
	var encoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &encoded))
	assert.JSONEq(t, `["`+addr1+`"]`, string(encoded["wallet_pubkeys"]))
	assert.NotContains(t, encoded, "wallet_pubkey")
}

func TestConfigureWalletAliasEquivalence(t *testing.T) {
	strategy := `"strategy":{"target_profit_pct":5,"stop_loss_pct":1.5,"deadline_timeout_sec":45}`
	forms := []string{
		`{"type":"configure","wallet_pubkey":"A",` + strategy + `}`,
		`{"type":"configure","wallet_pubkey":["A"],` + strategy + `}`,
		`{"type":"configure","wallet_pubkeys":"A",` + strategy + `}`,
		`{"type":"configure","wallet_pubkeys":["A"],` + strategy + `}`,
		`{` + strategy + `,"wallet_pubkeys":["A"],"type":"configure"}`,
		`{"type":"configure","wallet_pubkeys":null,"wallet_pubkey":"A",` + strategy + `}`,
	}
	want := Configure{WalletPubkeys: []string{"A"}, Strategy: testStrategy()}
	for _, form := range forms {
		msg, err := DecodeClientMessage([]byte(form))
		require.NoError(t, err, form)
		assert.Equal(t, want, msg, form)

		data, err := EncodeClientMessage(msg)
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"configure","wallet_pubkeys":["A"],`+strategy+`}`, string(data))
	}

	// The current name wins when both are present.
	msg, err := DecodeClientMessage([]byte(`{"type":"configure","wallet_pubkeys":["A","B"],"wallet_pubkey":"C",` + strategy + `}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, msg.(Configure).WalletPubkeys)
}

func TestConfigureShortFormsFailAlike(t *testing.T) {
	_, errAlias := DecodeClientMessage([]byte(`{"type":"configure","wallet_pubkey":"A"}`))
	_, errCurrent := DecodeClientMessage([]byte(`{"type":"configure","wallet_pubkeys":["A"]}`))
	require.Error(t, errAlias)
	require.Error(t, errCurrent)
	assert.Equal(t, errCurrent.Error(), errAlias.Error())
	assert.ErrorIs(t, errAlias, ErrMissingField)
}

func TestConfigureWalletShapeErrors(t *testing.T) {
	strategy := `"strategy":{"target_profit_pct":5,"stop_loss_pct":1.5,"deadline_timeout_sec":45}`
	cases := map[string]string{
		"missing":        `{"type":"configure",` + strategy + `}`,
		"number":         `{"type":"configure","wallet_pubkeys":7,` + strategy + `}`,
		"mixed array":    `{"type":"configure","wallet_pubkeys":["A",1],` + strategy + `}`,
		"null element":   `{"type":"configure","wallet_pubkeys":["A",null],` + strategy + `}`,
		"object":         `{"type":"configure","wallet_pubkey":{"a":"b"},` + strategy + `}`,
		"strategy shape": `{"type":"configure","wallet_pubkeys":["A"],"strategy":[]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeClientMessage([]byte(raw))
			require.Error(t, err)
			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, TypeConfigure, de.Type)
		})
	}
}

func TestConfigureEncodesNilWalletsAsArray(t *testing.T) {
	data, err := EncodeClientMessage(Configure{Strategy: testStrategy()})
	require.NoError(t, err)
	var encoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &encoded))
	assert.Equal(t, "[]", string(encoded["wallet_pubkeys"]))
}

func TestRequestExitSignalSellNowAlias(t *testing.T) {
	raw := `{"type":"sell_now","position_id":123,"slippage_bps":42}`
	msg, err := DecodeClientMessage([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, RequestExitSignal{PositionID: Uint64(123), SlippageBps: Uint16(42)}, msg)

	data, err := EncodeClientMessage(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"request_exit_signal","position_id":123,"slippage_bps":42}`, string(data))
}

func TestClosePositionOmission(t *testing.T) {
	data, err := EncodeClientMessage(ClosePosition{})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"close_position"}`, string(data))

	msg, err := DecodeClientMessage([]byte(`{"type":"close_position"}`))
	require.NoError(t, err)
	assert.Equal(t, ClosePosition{}, msg)

	msg, err = DecodeClientMessage([]byte(`{"type":"close_position","position_id":null,"token_account":null}`))
	require.NoError(t, err)
	assert.Equal(t, ClosePosition{}, msg)
}

func TestClientOptionalFieldShapes(t *testing.T) {
	cases := map[string]string{
		"slippage overflow": `{"type":"request_exit_signal","slippage_bps":65536}`,
		"negative id":       `{"type":"close_position","position_id":-1}`,
		"fractional id":     `{"type":"close_position","position_id":1.5}`,
		"string id":         `{"type":"close_position","position_id":"1"}`,
		"account number":    `{"type":"request_exit_signal","token_account":5}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeClientMessage([]byte(raw))
			assert.ErrorIs(t, err, ErrInvalidField)
		})
	}
}

func TestPingRequiresClientTime(t *testing.T) {
	_, err := DecodeClientMessage([]byte(`{"type":"ping"}`))
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = DecodeClientMessage([]byte(`{"type":"ping","client_time_ms":null}`))
	assert.ErrorIs(t, err, ErrMissingField)

	msg, err := DecodeClientMessage([]byte(`{"client_time_ms":18446744073709551615,"type":"ping","extra":{"nested":[1,2]}}`))
	require.NoError(t, err)
	assert.Equal(t, Ping{ClientTimeMS: 18446744073709551615}, msg)
}

func TestResolveClientTag(t *testing.T) {
	for _, tag := range []string{TypePing, TypeConfigure, TypeUpdateStrategy, TypeClosePosition, TypeRequestExitSignal} {
		got, ok := ResolveClientTag(tag)
		assert.True(t, ok)
		assert.Equal(t, tag, got)
	}
	got, ok := ResolveClientTag("sell_now")
	assert.True(t, ok)
	assert.Equal(t, TypeRequestExitSignal, got)

	_, ok = ResolveClientTag("hello_ok")
	assert.False(t, ok)
	_, ok = ResolveClientTag("SellNow")
	assert.False(t, ok)
}

func TestEncodeClientPointerVariants(t *testing.T) {
	data, err := EncodeClientMessage(&Ping{ClientTimeMS: 5})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"ping","client_time_ms":5}`, string(data))

	var nilPing *Ping
	_, err = EncodeClientMessage(nilPing)
	assert.ErrorIs(t, err, ErrNilMessage)

	_, err = EncodeClientMessage(nil)
	assert.ErrorIs(t, err, ErrNilMessage)

	type wrapped struct{ Ping }
	_, err = EncodeClientMessage(wrapped{})
	assert.ErrorIs(t, err, ErrUnknownVariant)
}
