package lending

import (
	"math/big"
	"strings"

	"rwalend/crypto"
)

// CollateralHolding is one entry of a loan's ordered collateral set.
type CollateralHolding struct {
	Asset  string   `json:"asset"`
	Amount *big.Int `json:"amount"`
}

// Clone returns a deep copy of the holding.
func (c CollateralHolding) Clone() CollateralHolding {
	clone := CollateralHolding{Asset: c.Asset}
	if c.Amount != nil {
		clone.Amount = new(big.Int).Set(c.Amount)
	}
	return clone
}

// Loan is the full record of one borrower's open position. At most one loan
// exists per borrower; the record is deleted on full repayment, early closure
// or liquidation.
type Loan struct {
	Borrower           crypto.Address      `json:"borrower"`
	Collateral         []CollateralHolding `json:"collateral"`
	Principal          *big.Int            `json:"principal"`
	OutstandingDebt    *big.Int            `json:"outstandingDebt"`
	InterestRateBps    uint64              `json:"interestRateBps"`
	YieldShareBps      uint64              `json:"yieldShareBps"`
	StartTime          uint64              `json:"startTime"`
	EndTime            uint64              `json:"endTime"`
	LastInterestUpdate uint64              `json:"lastInterestUpdate"`
	WarningsIssued     uint8               `json:"warningsIssued"`
	LastWarningTime    uint64              `json:"lastWarningTime"`
	Penalties          *big.Int            `json:"penalties"`
}

// Clone returns a deep copy of the loan record.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := &Loan{
		Borrower:           l.Borrower,
		InterestRateBps:    l.InterestRateBps,
		YieldShareBps:      l.YieldShareBps,
		StartTime:          l.StartTime,
		EndTime:            l.EndTime,
		LastInterestUpdate: l.LastInterestUpdate,
		WarningsIssued:     l.WarningsIssued,
		LastWarningTime:    l.LastWarningTime,
		Principal:          cloneBigInt(l.Principal),
		OutstandingDebt:    cloneBigInt(l.OutstandingDebt),
		Penalties:          cloneBigInt(l.Penalties),
	}
	if len(l.Collateral) > 0 {
		clone.Collateral = make([]CollateralHolding, len(l.Collateral))
		for i, holding := range l.Collateral {
			clone.Collateral[i] = holding.Clone()
		}
	}
	return clone
}

// TotalDebt returns outstanding debt plus accumulated penalties.
func (l *Loan) TotalDebt() *big.Int {
	total := big.NewInt(0)
	if l == nil {
		return total
	}
	if l.OutstandingDebt != nil {
		total.Add(total, l.OutstandingDebt)
	}
	if l.Penalties != nil {
		total.Add(total, l.Penalties)
	}
	return total
}

// collateralIndex returns the position of the asset in the collateral set, or
// -1 when absent. Lookup is linear; collateral sets hold a handful of entries.
func (l *Loan) collateralIndex(asset string) int {
	for i, holding := range l.Collateral {
		if strings.EqualFold(holding.Asset, asset) {
			return i
		}
	}
	return -1
}

// LPDeposit is one liquidity provider's aggregate position in the pool.
type LPDeposit struct {
	Depositor           crypto.Address `json:"depositor"`
	TotalDeposited      *big.Int       `json:"totalDeposited"`
	LockedAmount        *big.Int       `json:"lockedAmount"`
	AvailableAmount     *big.Int       `json:"availableAmount"`
	TotalInterestEarned *big.Int       `json:"totalInterestEarned"`
}

// Clone returns a deep copy of the deposit record.
func (d *LPDeposit) Clone() *LPDeposit {
	if d == nil {
		return nil
	}
	return &LPDeposit{
		Depositor:           d.Depositor,
		TotalDeposited:      cloneBigInt(d.TotalDeposited),
		LockedAmount:        cloneBigInt(d.LockedAmount),
		AvailableAmount:     cloneBigInt(d.AvailableAmount),
		TotalInterestEarned: cloneBigInt(d.TotalInterestEarned),
	}
}

func (d *LPDeposit) normalise() {
	if d.TotalDeposited == nil {
		d.TotalDeposited = big.NewInt(0)
	}
	if d.LockedAmount == nil {
		d.LockedAmount = big.NewInt(0)
	}
	if d.AvailableAmount == nil {
		d.AvailableAmount = big.NewInt(0)
	}
	if d.TotalInterestEarned == nil {
		d.TotalInterestEarned = big.NewInt(0)
	}
}

// PoolLiquidity tracks the two pool-wide stable-asset counters. Locked is the
// portion reserved by outstanding loan principals; Total minus Locked is the
// admission ceiling for new originations.
type PoolLiquidity struct {
	Total  *big.Int `json:"total"`
	Locked *big.Int `json:"locked"`
}

// Clone returns a deep copy of the counters.
func (p *PoolLiquidity) Clone() *PoolLiquidity {
	if p == nil {
		return nil
	}
	return &PoolLiquidity{Total: cloneBigInt(p.Total), Locked: cloneBigInt(p.Locked)}
}

func (p *PoolLiquidity) normalise() {
	if p.Total == nil {
		p.Total = big.NewInt(0)
	}
	if p.Locked == nil {
		p.Locked = big.NewInt(0)
	}
}

// Available returns Total minus Locked, floored at zero.
func (p *PoolLiquidity) Available() *big.Int {
	if p == nil || p.Total == nil {
		return big.NewInt(0)
	}
	locked := p.Locked
	if locked == nil {
		locked = big.NewInt(0)
	}
	available := new(big.Int).Sub(p.Total, locked)
	if available.Sign() < 0 {
		return big.NewInt(0)
	}
	return available
}

// TokenRiskProfile is the per-asset policy input consulted when deriving a
// loan's rate and LP share at origination.
type TokenRiskProfile struct {
	Asset       string `json:"asset"`
	YieldAPRBps uint64 `json:"yieldAprBps"`
	ExpiresAt   uint64 `json:"expiresAt"`
}

// Clone returns a copy of the profile.
func (t *TokenRiskProfile) Clone() *TokenRiskProfile {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

// CollateralChangeKind selects between adding and removing collateral.
type CollateralChangeKind uint8

const (
	// CollateralAdd pulls the amount from the borrower into pool custody.
	CollateralAdd CollateralChangeKind = iota
	// CollateralRemove pays the amount back to the borrower.
	CollateralRemove
)

// CollateralChange is one step of a collateral adjustment batch.
type CollateralChange struct {
	Kind   CollateralChangeKind
	Asset  string
	Amount *big.Int
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
