package lending

import "math/big"

// InterestScale is the fixed-point scale used for interest multipliers.
const InterestScale = 1_000_000

// SecondsPerMonth is the length of one compounding period.
const SecondsPerMonth uint64 = 30 * 24 * 60 * 60

// CompoundInterest returns the interest accrued on principal over the given
// number of fully elapsed months at the annual rate, using discrete monthly
// compounding. The returned value excludes the principal itself. Zero months
// or a non-positive principal yield exactly zero.
//
// The multiplier is renormalised after every multiplication so intermediate
// values stay bounded by principal * InterestScale.
func CompoundInterest(principal *big.Int, annualRateBps uint64, months uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 || months == 0 || annualRateBps == 0 {
		return big.NewInt(0)
	}
	monthlyRate := annualRateBps * InterestScale / 10_000 / 12
	if monthlyRate == 0 {
		return big.NewInt(0)
	}

	scale := big.NewInt(InterestScale)
	factor := new(big.Int).SetUint64(InterestScale + monthlyRate)
	multiplier := new(big.Int).Set(scale)
	for i := uint64(0); i < months; i++ {
		multiplier.Mul(multiplier, factor)
		multiplier.Quo(multiplier, scale)
	}

	total := new(big.Int).Mul(principal, multiplier)
	total.Quo(total, scale)
	return total.Sub(total, principal)
}

// elapsedMonths returns the number of whole compounding periods between the
// watermark and now.
func elapsedMonths(watermark, now uint64) uint64 {
	if now <= watermark {
		return 0
	}
	return (now - watermark) / SecondsPerMonth
}
