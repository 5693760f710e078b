package proto

// StrategyConfig holds client-side exit thresholds. Values are passed through
// without validation.
type StrategyConfig struct {
	TargetProfitPct    float64 `json:"target_profit_pct"`
	StopLossPct        float64 `json:"stop_loss_pct"`
	DeadlineTimeoutSec uint64  `json:"deadline_timeout_sec"`
}

// Limits are the per-session and per-key caps announced in hello_ok.
// The last three fields were added later and decode as 0 when a peer omits them.
type Limits struct {
	HiCapacity             uint32 `json:"hi_capacity"`
	PnlFlushMS             uint64 `json:"pnl_flush_ms"`
	MaxPositionsPerSession uint32 `json:"max_positions_per_session"`
	MaxWalletsPerSession   uint32 `json:"max_wallets_per_session"`
	MaxPositionsPerWallet  uint32 `json:"max_positions_per_wallet"`
	MaxSessionsPerAPIKey   uint32 `json:"max_sessions_per_api_key"`
}

func readStrategy(r *fieldReader) StrategyConfig {
	if r == nil {
		return StrategyConfig{}
	}
	return StrategyConfig{
		TargetProfitPct:    required[float64](r, "target_profit_pct"),
		StopLossPct:        required[float64](r, "stop_loss_pct"),
		DeadlineTimeoutSec: required[uint64](r, "deadline_timeout_sec"),
	}
}

func readLimits(r *fieldReader) Limits {
	if r == nil {
		return Limits{}
	}
	return Limits{
		HiCapacity:             required[uint32](r, "hi_capacity"),
		PnlFlushMS:             required[uint64](r, "pnl_flush_ms"),
		MaxPositionsPerSession: required[uint32](r, "max_positions_per_session"),
		MaxWalletsPerSession:   defaulted[uint32](r, "max_wallets_per_session"),
		MaxPositionsPerWallet:  defaulted[uint32](r, "max_positions_per_wallet"),
		MaxSessionsPerAPIKey:   defaulted[uint32](r, "max_sessions_per_api_key"),
	}
}

func Uint64(v uint64) *uint64 { return &v }
func Uint16(v uint16) *uint16 { return &v }
func String(v string) *string { return &v }
