package lending

import (
	"errors"
	"math/big"

	"rwalend/native/oracle"
)

// defaultAssetDecimals applies to collateral assets without a registered
// decimal scale; it matches the stable asset's scale so unregistered assets
// convert one to one.
const defaultAssetDecimals = 6

func (e *Engine) assetDecimalsFor(asset string) uint8 {
	if d, ok := e.decimals[normaliseAsset(asset)]; ok {
		return d
	}
	return defaultAssetDecimals
}

// collateralValue prices the collateral set in stable-asset units. Each quote
// is checked against the freshness window before use; a stale or missing
// quote aborts the whole valuation.
func (e *Engine) collateralValue(collateral []CollateralHolding, now uint64) (*big.Int, error) {
	if e.prices == nil {
		return nil, ErrNotReady
	}
	total := big.NewInt(0)
	stableDecimals := e.assetDecimalsFor(e.params.StableAsset)
	for _, holding := range collateral {
		if holding.Amount == nil || holding.Amount.Sign() <= 0 {
			continue
		}
		quote, err := e.prices.GetPrice(holding.Asset)
		if err != nil {
			if errors.Is(err, oracle.ErrNoFreshQuote) {
				return nil, ErrStaleOracleData
			}
			return nil, err
		}
		observed := uint64(quote.Timestamp.Unix())
		if observed < now && now-observed > e.params.OracleMaxAgeSeconds {
			return nil, ErrStaleOracleData
		}
		value := new(big.Int).Mul(holding.Amount, quote.Value)
		value.Quo(value, big.NewInt(oracle.PriceScale))
		value = rescaleDecimals(value, e.assetDecimalsFor(holding.Asset), stableDecimals)
		total.Add(total, value)
	}
	return total, nil
}

func rescaleDecimals(value *big.Int, from, to uint8) *big.Int {
	switch {
	case from == to:
		return value
	case from < to:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(to-from)), nil)
		return value.Mul(value, factor)
	default:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(from-to)), nil)
		return value.Quo(value, factor)
	}
}

// healthRatio returns collateral value as an integer percentage of debt. A
// zero debt yields (nil, false): infinite health.
func healthRatio(collateralValue, debt *big.Int) (*big.Int, bool) {
	if debt == nil || debt.Sign() <= 0 {
		return nil, false
	}
	ratio := new(big.Int).Mul(collateralValue, big.NewInt(100))
	return ratio.Quo(ratio, debt), true
}

// debtRatio is the inverse view used by the warning and liquidation checks:
// debt as an integer percentage of collateral value. A zero collateral value
// yields (nil, false): the loan is effectively unbacked.
func debtRatio(debt, collateralValue *big.Int) (*big.Int, bool) {
	if collateralValue == nil || collateralValue.Sign() <= 0 {
		return nil, false
	}
	ratio := new(big.Int).Mul(debt, big.NewInt(100))
	return ratio.Quo(ratio, collateralValue), true
}
