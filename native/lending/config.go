package lending

// RatePolicyRiskProfile derives a loan's rate and LP share from the lead
// collateral asset's registered risk profile; RatePolicyFixed applies the
// protocol-wide fixed values to every loan.
const (
	RatePolicyRiskProfile = "risk-profile"
	RatePolicyFixed       = "fixed"
)

// Params carries the protocol constants governing the pool. All ratio and fee
// fields are integers: percentages for the collateral thresholds, basis
// points everywhere else.
type Params struct {
	StableAsset             string `toml:"stable_asset"`
	MinCollateralRatioPct   uint64 `toml:"min_collateral_ratio_pct"`
	LiquidationThresholdPct uint64 `toml:"liquidation_threshold_pct"`
	MinDurationMonths       uint64 `toml:"min_duration_months"`
	MaxDurationMonths       uint64 `toml:"max_duration_months"`
	WarningIntervalSeconds  uint64 `toml:"warning_interval_seconds"`
	MaxWarnings             uint8  `toml:"max_warnings"`
	WarningPenaltyBps       uint64 `toml:"warning_penalty_bps"`
	EarlyCloseFeeBps        uint64 `toml:"early_close_fee_bps"`
	BotRewardBps            uint64 `toml:"bot_reward_bps"`
	GoodFaithBps            uint64 `toml:"good_faith_bps"`
	OracleMaxAgeSeconds     uint64 `toml:"oracle_max_age_seconds"`
	RatePolicy              string `toml:"rate_policy"`
	FixedInterestRateBps    uint64 `toml:"fixed_interest_rate_bps"`
	FixedYieldShareBps      uint64 `toml:"fixed_yield_share_bps"`
	LowYieldThresholdBps    uint64 `toml:"low_yield_threshold_bps"`
	HighRiskRateBps         uint64 `toml:"high_risk_rate_bps"`
	HighRiskYieldShareBps   uint64 `toml:"high_risk_yield_share_bps"`
	LowRiskRateBps          uint64 `toml:"low_risk_rate_bps"`
	LowRiskYieldShareBps    uint64 `toml:"low_risk_yield_share_bps"`
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		StableAsset:             "USDC",
		MinCollateralRatioPct:   140,
		LiquidationThresholdPct: 110,
		MinDurationMonths:       3,
		MaxDurationMonths:       24,
		WarningIntervalSeconds:  14 * 24 * 60 * 60,
		MaxWarnings:             2,
		WarningPenaltyBps:       200,
		EarlyCloseFeeBps:        500,
		BotRewardBps:            1000,
		GoodFaithBps:            1000,
		OracleMaxAgeSeconds:     24 * 60 * 60,
		RatePolicy:              RatePolicyRiskProfile,
		FixedInterestRateBps:    1000,
		FixedYieldShareBps:      1000,
		LowYieldThresholdBps:    500,
		HighRiskRateBps:         1400,
		HighRiskYieldShareBps:   2000,
		LowRiskRateBps:          700,
		LowRiskYieldShareBps:    1000,
	}
}

// Normalise fills zero-valued fields with their defaults so a partially
// specified configuration still yields a safe parameter set.
func (p Params) Normalise() Params {
	defaults := DefaultParams()
	if p.StableAsset == "" {
		p.StableAsset = defaults.StableAsset
	}
	if p.MinCollateralRatioPct == 0 {
		p.MinCollateralRatioPct = defaults.MinCollateralRatioPct
	}
	if p.LiquidationThresholdPct == 0 {
		p.LiquidationThresholdPct = defaults.LiquidationThresholdPct
	}
	if p.MinDurationMonths == 0 {
		p.MinDurationMonths = defaults.MinDurationMonths
	}
	if p.MaxDurationMonths == 0 {
		p.MaxDurationMonths = defaults.MaxDurationMonths
	}
	if p.MaxDurationMonths < p.MinDurationMonths {
		p.MaxDurationMonths = p.MinDurationMonths
	}
	if p.WarningIntervalSeconds == 0 {
		p.WarningIntervalSeconds = defaults.WarningIntervalSeconds
	}
	if p.MaxWarnings == 0 {
		p.MaxWarnings = defaults.MaxWarnings
	}
	if p.WarningPenaltyBps == 0 {
		p.WarningPenaltyBps = defaults.WarningPenaltyBps
	}
	if p.EarlyCloseFeeBps == 0 {
		p.EarlyCloseFeeBps = defaults.EarlyCloseFeeBps
	}
	if p.BotRewardBps == 0 {
		p.BotRewardBps = defaults.BotRewardBps
	}
	if p.GoodFaithBps == 0 {
		p.GoodFaithBps = defaults.GoodFaithBps
	}
	if p.OracleMaxAgeSeconds == 0 {
		p.OracleMaxAgeSeconds = defaults.OracleMaxAgeSeconds
	}
	switch p.RatePolicy {
	case RatePolicyRiskProfile, RatePolicyFixed:
	default:
		p.RatePolicy = defaults.RatePolicy
	}
	if p.FixedInterestRateBps == 0 {
		p.FixedInterestRateBps = defaults.FixedInterestRateBps
	}
	if p.FixedYieldShareBps == 0 {
		p.FixedYieldShareBps = defaults.FixedYieldShareBps
	}
	if p.LowYieldThresholdBps == 0 {
		p.LowYieldThresholdBps = defaults.LowYieldThresholdBps
	}
	if p.HighRiskRateBps == 0 {
		p.HighRiskRateBps = defaults.HighRiskRateBps
	}
	if p.HighRiskYieldShareBps == 0 {
		p.HighRiskYieldShareBps = defaults.HighRiskYieldShareBps
	}
	if p.LowRiskRateBps == 0 {
		p.LowRiskRateBps = defaults.LowRiskRateBps
	}
	if p.LowRiskYieldShareBps == 0 {
		p.LowRiskYieldShareBps = defaults.LowRiskYieldShareBps
	}
	return p
}
