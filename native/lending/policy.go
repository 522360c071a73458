package lending

// loanTerms derives the interest rate and LP yield share frozen into a new
// loan. Under the risk-profile policy the lead (first) collateral asset's
// registered profile decides the tier: assets whose estimated yield APR falls
// below the low-yield threshold are priced as high risk. A missing or expired
// profile is also priced as high risk rather than rejected. Under the fixed
// policy every loan gets the protocol-wide values.
func (e *Engine) loanTerms(collateral []CollateralHolding, now uint64) (rateBps, yieldShareBps uint64, err error) {
	if e.params.RatePolicy == RatePolicyFixed {
		return e.params.FixedInterestRateBps, e.params.FixedYieldShareBps, nil
	}

	profile, err := e.state.GetRiskProfile(collateral[0].Asset)
	if err != nil {
		return 0, 0, err
	}
	if profile == nil || (profile.ExpiresAt != 0 && profile.ExpiresAt < now) {
		return e.params.HighRiskRateBps, e.params.HighRiskYieldShareBps, nil
	}
	if profile.YieldAPRBps < e.params.LowYieldThresholdBps {
		return e.params.HighRiskRateBps, e.params.HighRiskYieldShareBps, nil
	}
	return e.params.LowRiskRateBps, e.params.LowRiskYieldShareBps, nil
}
