package lending

import (
	"math/big"
	"strings"
	"time"

	"rwalend/core/events"
	"rwalend/crypto"
	"rwalend/native/common"
	"rwalend/native/oracle"
	"rwalend/native/token"
)

const moduleName = "lending"

// engineState is the persistence surface the engine mutates. Lookups return
// (nil, nil) when no record exists.
type engineState interface {
	GetLoan(borrower crypto.Address) (*Loan, error)
	PutLoan(loan *Loan) error
	DeleteLoan(borrower crypto.Address) error
	GetDeposit(depositor crypto.Address) (*LPDeposit, error)
	PutDeposit(deposit *LPDeposit) error
	GetPoolLiquidity() (*PoolLiquidity, error)
	PutPoolLiquidity(pool *PoolLiquidity) error
	GetRiskProfile(asset string) (*TokenRiskProfile, error)
	PutRiskProfile(profile *TokenRiskProfile) error
}

// YieldVault is the per-collateral-class staking vault collaborator.
type YieldVault interface {
	MarkAsBorrower(user crypto.Address, borrowed *big.Int, loanPeriod uint64) error
	PullYieldForRepay(user crypto.Address, amount *big.Int) (*big.Int, error)
	SetLPLiquidityUsed(user crypto.Address, amount *big.Int) error
	ClaimableYield(user crypto.Address) *big.Int
}

// Engine drives the loan lifecycle and liquidity accounting. Every exported
// operation is a single atomic unit: all validation and balance pre-checks
// run before the first fund movement, so a failed operation leaves the
// ledgers untouched.
type Engine struct {
	state    engineState
	ledger   *token.Ledger
	prices   oracle.Source
	vaults   map[string]YieldVault
	roles    common.RoleView
	pauses   common.PauseView
	emitter  events.Emitter
	params   Params
	module   crypto.Address
	decimals map[string]uint8
	nowFn    func() uint64
}

// NewEngine constructs an engine around its collaborators. The module address
// is the pool's custody account on the token ledger.
func NewEngine(state engineState, ledger *token.Ledger, prices oracle.Source, module crypto.Address, params Params) *Engine {
	return &Engine{
		state:    state,
		ledger:   ledger,
		prices:   prices,
		module:   module,
		params:   params.Normalise(),
		vaults:   make(map[string]YieldVault),
		decimals: make(map[string]uint8),
		emitter:  events.NoopEmitter{},
		nowFn:    func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetEmitter overrides the event sink. Passing nil restores the no-op sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the pause switchboard consulted before every mutation.
func (e *Engine) SetPauses(pauses common.PauseView) { e.pauses = pauses }

// SetRoles wires the role registry used for the liquidator check.
func (e *Engine) SetRoles(roles common.RoleView) { e.roles = roles }

// SetNowFunc overrides the engine clock, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() uint64) {
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.nowFn = now
}

// RegisterVault binds a staking vault to a collateral asset class.
func (e *Engine) RegisterVault(asset string, vault YieldVault) {
	key := normaliseAsset(asset)
	if key == "" || vault == nil {
		return
	}
	e.vaults[key] = vault
}

// RegisterAssetDecimals declares the decimal scale of a collateral asset so
// valuation can convert it to stable-asset units.
func (e *Engine) RegisterAssetDecimals(asset string, decimals uint8) {
	key := normaliseAsset(asset)
	if key == "" {
		return
	}
	e.decimals[key] = decimals
}

// Params returns the active parameter set.
func (e *Engine) Params() Params { return e.params }

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.ledger == nil {
		return ErrNotReady
	}
	return nil
}

func (e *Engine) guard() error {
	return common.Guard(e.pauses, moduleName)
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

func (e *Engine) vaultFor(asset string) YieldVault {
	return e.vaults[normaliseAsset(asset)]
}

func (e *Engine) pool() (*PoolLiquidity, error) {
	pool, err := e.state.GetPoolLiquidity()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		pool = &PoolLiquidity{}
	}
	pool.normalise()
	return pool, nil
}

// Deposit pulls stable liquidity from the depositor into pool custody and
// credits both the depositor record and the pool total.
func (e *Engine) Deposit(depositor crypto.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.guard(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	pool, err := e.pool()
	if err != nil {
		return err
	}
	deposit, err := e.state.GetDeposit(depositor)
	if err != nil {
		return err
	}
	if deposit == nil {
		deposit = &LPDeposit{Depositor: depositor}
	}
	deposit.normalise()

	if err := e.ledger.Transfer(e.params.StableAsset, depositor, e.module, amount); err != nil {
		return err
	}
	deposit.TotalDeposited.Add(deposit.TotalDeposited, amount)
	deposit.AvailableAmount.Add(deposit.AvailableAmount, amount)
	pool.Total.Add(pool.Total, amount)

	if err := e.state.PutDeposit(deposit); err != nil {
		return err
	}
	if err := e.state.PutPoolLiquidity(pool); err != nil {
		return err
	}
	e.emit(events.LendingDeposit{Depositor: addr20(depositor), Amount: cloneBigInt(amount)})
	return nil
}

// Withdraw releases stable liquidity back to the depositor up to their
// available balance, bounded by the pool's unlocked liquidity.
func (e *Engine) Withdraw(depositor crypto.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.guard(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	deposit, err := e.state.GetDeposit(depositor)
	if err != nil {
		return err
	}
	if deposit == nil {
		return ErrInsufficientAvailableBalance
	}
	deposit.normalise()
	if deposit.AvailableAmount.Cmp(amount) < 0 {
		return ErrInsufficientAvailableBalance
	}
	pool, err := e.pool()
	if err != nil {
		return err
	}
	if pool.Available().Cmp(amount) < 0 {
		return ErrInsufficientPoolLiquidity
	}

	if err := e.ledger.Transfer(e.params.StableAsset, e.module, depositor, amount); err != nil {
		return err
	}
	deposit.TotalDeposited.Sub(deposit.TotalDeposited, amount)
	deposit.AvailableAmount.Sub(deposit.AvailableAmount, amount)
	pool.Total.Sub(pool.Total, amount)

	if err := e.state.PutDeposit(deposit); err != nil {
		return err
	}
	if err := e.state.PutPoolLiquidity(pool); err != nil {
		return err
	}
	e.emit(events.LendingWithdraw{Depositor: addr20(depositor), Amount: cloneBigInt(amount)})
	return nil
}

// GetDeposit returns the depositor's record, or nil when they never deposited.
func (e *Engine) GetDeposit(depositor crypto.Address) (*LPDeposit, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.GetDeposit(depositor)
}

// TotalLiquidity returns the pool-wide stable liquidity counter.
func (e *Engine) TotalLiquidity() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.pool()
	if err != nil {
		return nil, err
	}
	return cloneBigInt(pool.Total), nil
}

// AvailableLiquidity returns the unlocked liquidity available for new loans.
func (e *Engine) AvailableLiquidity() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.pool()
	if err != nil {
		return nil, err
	}
	return pool.Available(), nil
}

// GetLoan returns the borrower's open loan.
func (e *Engine) GetLoan(borrower crypto.Address) (*Loan, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	loan, err := e.state.GetLoan(borrower)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, ErrLoanNotFound
	}
	return loan, nil
}

// Originate opens a loan: collateral is pulled into custody, the principal is
// disbursed to the borrower and the pool locks the principal against its
// liquidity. The rate and LP share frozen into the record are derived from
// the active policy and never recomputed.
func (e *Engine) Originate(borrower crypto.Address, collateral []CollateralHolding, amount *big.Int, durationMonths uint64) (*Loan, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.guard(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	existing, err := e.state.GetLoan(borrower)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateLoan
	}
	if durationMonths < e.params.MinDurationMonths || durationMonths > e.params.MaxDurationMonths {
		return nil, ErrInvalidDuration
	}
	merged, err := mergeCollateral(collateral)
	if err != nil {
		return nil, err
	}
	if len(merged) == 0 {
		return nil, ErrNoCollateral
	}

	now := e.nowFn()
	value, err := e.collateralValue(merged, now)
	if err != nil {
		return nil, err
	}
	floor := new(big.Int).Mul(amount, new(big.Int).SetUint64(e.params.MinCollateralRatioPct))
	if new(big.Int).Mul(value, big.NewInt(100)).Cmp(floor) < 0 {
		return nil, ErrInsufficientCollateral
	}

	pool, err := e.pool()
	if err != nil {
		return nil, err
	}
	if pool.Available().Cmp(amount) < 0 {
		return nil, ErrInsufficientPoolLiquidity
	}
	rateBps, yieldShareBps, err := e.loanTerms(merged, now)
	if err != nil {
		return nil, err
	}

	for _, holding := range merged {
		if e.ledger.BalanceOf(holding.Asset, borrower).Cmp(holding.Amount) < 0 {
			return nil, ErrInsufficientCollateral
		}
	}
	if e.ledger.BalanceOf(e.params.StableAsset, e.module).Cmp(amount) < 0 {
		return nil, ErrInsufficientPoolLiquidity
	}

	for _, holding := range merged {
		if err := e.ledger.Transfer(holding.Asset, borrower, e.module, holding.Amount); err != nil {
			return nil, err
		}
	}
	if err := e.ledger.Transfer(e.params.StableAsset, e.module, borrower, amount); err != nil {
		return nil, err
	}

	durationSeconds := durationMonths * SecondsPerMonth
	loan := &Loan{
		Borrower:           borrower,
		Collateral:         merged,
		Principal:          cloneBigInt(amount),
		OutstandingDebt:    cloneBigInt(amount),
		InterestRateBps:    rateBps,
		YieldShareBps:      yieldShareBps,
		StartTime:          now,
		EndTime:            now + durationSeconds,
		LastInterestUpdate: now,
		Penalties:          big.NewInt(0),
	}
	pool.Locked.Add(pool.Locked, amount)

	for _, holding := range merged {
		if vault := e.vaultFor(holding.Asset); vault != nil {
			if err := vault.MarkAsBorrower(borrower, loan.Principal, durationSeconds); err != nil {
				return nil, err
			}
		}
	}
	if err := e.state.PutLoan(loan); err != nil {
		return nil, err
	}
	if err := e.state.PutPoolLiquidity(pool); err != nil {
		return nil, err
	}
	e.emit(events.LendingLoanOriginated{
		Borrower:        addr20(borrower),
		Principal:       cloneBigInt(loan.Principal),
		DurationMonths:  uint32(durationMonths),
		InterestRateBps: rateBps,
		YieldShareBps:   yieldShareBps,
	})
	return loan.Clone(), nil
}

// accrue applies compound interest for every whole month elapsed since the
// watermark and advances the watermark. The loan is mutated in place; the
// caller decides whether to persist it.
func (e *Engine) accrue(loan *Loan, now uint64) (*big.Int, uint64) {
	months := elapsedMonths(loan.LastInterestUpdate, now)
	if months == 0 {
		return big.NewInt(0), 0
	}
	interest := CompoundInterest(loan.OutstandingDebt, loan.InterestRateBps, months)
	loan.OutstandingDebt = new(big.Int).Add(loan.OutstandingDebt, interest)
	loan.LastInterestUpdate = now
	return interest, months
}

// UpdateLoanInterest applies any pending compound interest to the loan and
// returns the interest added. Calling it again within the same month bucket
// is a no-op.
func (e *Engine) UpdateLoanInterest(borrower crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.guard(); err != nil {
		return nil, err
	}
	loan, err := e.state.GetLoan(borrower)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, ErrLoanNotFound
	}
	interest, months := e.accrue(loan, e.nowFn())
	if months == 0 {
		return big.NewInt(0), nil
	}
	if err := e.state.PutLoan(loan); err != nil {
		return nil, err
	}
	e.emit(events.LendingInterestAccrued{Borrower: addr20(borrower), Interest: cloneBigInt(interest), Months: months})
	return interest, nil
}

// plannedPull is one vault withdrawal staged while sourcing a repayment.
type plannedPull struct {
	vault  YieldVault
	amount *big.Int
}

// planSourcing decides how a gross payment is funded: accrued vault yield
// first, walking the loan's collateral classes in order, then the borrower's
// stable balance for the shortfall. The borrower's balance is verified here
// so no vault pull happens unless the whole payment is coverable.
func (e *Engine) planSourcing(loan *Loan, borrower crypto.Address, amount *big.Int) ([]plannedPull, *big.Int, error) {
	remaining := new(big.Int).Set(amount)
	var pulls []plannedPull
	for _, holding := range loan.Collateral {
		if remaining.Sign() == 0 {
			break
		}
		vault := e.vaultFor(holding.Asset)
		if vault == nil {
			continue
		}
		claimable := vault.ClaimableYield(borrower)
		if claimable == nil || claimable.Sign() <= 0 {
			continue
		}
		take := new(big.Int).Set(remaining)
		if take.Cmp(claimable) > 0 {
			take.Set(claimable)
		}
		pulls = append(pulls, plannedPull{vault: vault, amount: take})
		remaining.Sub(remaining, take)
	}
	if remaining.Sign() > 0 && e.ledger.BalanceOf(e.params.StableAsset, borrower).Cmp(remaining) < 0 {
		return nil, nil, ErrInsufficientAvailableBalance
	}
	return pulls, remaining, nil
}

func (e *Engine) executeSourcing(borrower crypto.Address, pulls []plannedPull, shortfall *big.Int) (*big.Int, error) {
	pulled := big.NewInt(0)
	for _, pull := range pulls {
		got, err := pull.vault.PullYieldForRepay(borrower, pull.amount)
		if err != nil {
			return nil, err
		}
		pulled.Add(pulled, got)
	}
	if shortfall.Sign() > 0 {
		if err := e.ledger.Transfer(e.params.StableAsset, borrower, e.module, shortfall); err != nil {
			return nil, err
		}
	}
	return pulled, nil
}

// Repay applies a payment to the loan. The gross amount is sourced yield
// first, split into the frozen LP share (credited to pool liquidity) and a
// principal-reduction share. A payment reducing principal by more than the
// good-faith fraction clears outstanding warnings. Reaching zero debt closes
// the loan and returns all collateral.
func (e *Engine) Repay(borrower crypto.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.guard(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	loan, err := e.state.GetLoan(borrower)
	if err != nil {
		return err
	}
	if loan == nil {
		return ErrLoanNotFound
	}
	now := e.nowFn()
	e.accrue(loan, now)

	pulls, shortfall, err := e.planSourcing(loan, borrower, amount)
	if err != nil {
		return err
	}
	pulled, err := e.executeSourcing(borrower, pulls, shortfall)
	if err != nil {
		return err
	}

	lpShare := bpsShare(amount, loan.YieldShareBps)
	principalPay := new(big.Int).Sub(amount, lpShare)

	pool, err := e.pool()
	if err != nil {
		return err
	}
	pool.Total.Add(pool.Total, lpShare)
	loan.OutstandingDebt = new(big.Int).Sub(loan.OutstandingDebt, principalPay)

	goodFaithFloor := bpsShare(loan.Principal, e.params.GoodFaithBps)
	if principalPay.Cmp(goodFaithFloor) > 0 {
		loan.WarningsIssued = 0
		loan.LastWarningTime = 0
	}

	e.emit(events.LendingRepaid{
		Borrower:    addr20(borrower),
		Amount:      cloneBigInt(amount),
		YieldPulled: pulled,
		LPShare:     lpShare,
	})
	if loan.OutstandingDebt.Sign() <= 0 {
		return e.closeLoan(loan, pool)
	}
	if err := e.state.PutLoan(loan); err != nil {
		return err
	}
	return e.state.PutPoolLiquidity(pool)
}

// closeLoan returns all collateral, releases the locked principal, clears the
// borrower's vault status and deletes the record.
func (e *Engine) closeLoan(loan *Loan, pool *PoolLiquidity) error {
	for _, holding := range loan.Collateral {
		if err := e.ledger.Transfer(holding.Asset, e.module, loan.Borrower, holding.Amount); err != nil {
			return err
		}
	}
	pool.Locked.Sub(pool.Locked, loan.Principal)
	if pool.Locked.Sign() < 0 {
		pool.Locked = big.NewInt(0)
	}
	for _, holding := range loan.Collateral {
		if vault := e.vaultFor(holding.Asset); vault != nil {
			if err := vault.MarkAsBorrower(loan.Borrower, nil, 0); err != nil {
				return err
			}
			if err := vault.SetLPLiquidityUsed(loan.Borrower, nil); err != nil {
				return err
			}
		}
	}
	if err := e.state.DeleteLoan(loan.Borrower); err != nil {
		return err
	}
	if err := e.state.PutPoolLiquidity(pool); err != nil {
		return err
	}
	e.emit(events.LendingClosed{Borrower: addr20(loan.Borrower)})
	return nil
}

// CloseEarly settles the full current debt plus the early-closure fee in one
// payment and closes the loan. The fee is credited to pool liquidity.
func (e *Engine) CloseEarly(borrower crypto.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.guard(); err != nil {
		return err
	}
	loan, err := e.state.GetLoan(borrower)
	if err != nil {
		return err
	}
	if loan == nil {
		return ErrLoanNotFound
	}
	now := e.nowFn()
	e.accrue(loan, now)

	fee := bpsShare(loan.OutstandingDebt, e.params.EarlyCloseFeeBps)
	total := new(big.Int).Add(loan.OutstandingDebt, fee)

	pulls, shortfall, err := e.planSourcing(loan, borrower, total)
	if err != nil {
		return err
	}
	if _, err := e.executeSourcing(borrower, pulls, shortfall); err != nil {
		return err
	}

	pool, err := e.pool()
	if err != nil {
		return err
	}
	pool.Total.Add(pool.Total, fee)
	loan.OutstandingDebt = big.NewInt(0)

	e.emit(events.LendingClosedEarly{
		Borrower:     addr20(borrower),
		TotalPayment: total,
		ClosureFee:   fee,
	})
	return e.closeLoan(loan, pool)
}

// AdjustCollateral applies an ordered batch of collateral additions and
// removals. The batch is staged against a copy of the loan and only persists
// if the post-change health clears the origination floor; a failure anywhere
// leaves loan and custody untouched.
func (e *Engine) AdjustCollateral(borrower crypto.Address, changes []CollateralChange) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.guard(); err != nil {
		return err
	}
	if len(changes) == 0 {
		return ErrInvalidAmount
	}
	loan, err := e.state.GetLoan(borrower)
	if err != nil {
		return err
	}
	if loan == nil {
		return ErrLoanNotFound
	}

	staged := loan.Clone()
	before := make(map[string]bool, len(staged.Collateral))
	for _, holding := range staged.Collateral {
		before[normaliseAsset(holding.Asset)] = true
	}
	net := make(map[string]*big.Int)
	for _, change := range changes {
		asset := normaliseAsset(change.Asset)
		if asset == "" || change.Amount == nil || change.Amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		delta, ok := net[asset]
		if !ok {
			delta = big.NewInt(0)
			net[asset] = delta
		}
		switch change.Kind {
		case CollateralAdd:
			idx := staged.collateralIndex(asset)
			if idx >= 0 {
				staged.Collateral[idx].Amount = new(big.Int).Add(staged.Collateral[idx].Amount, change.Amount)
			} else {
				staged.Collateral = append(staged.Collateral, CollateralHolding{Asset: asset, Amount: new(big.Int).Set(change.Amount)})
			}
			delta.Add(delta, change.Amount)
		case CollateralRemove:
			idx := staged.collateralIndex(asset)
			if idx < 0 || staged.Collateral[idx].Amount.Cmp(change.Amount) < 0 {
				return ErrInsufficientCollateral
			}
			staged.Collateral[idx].Amount = new(big.Int).Sub(staged.Collateral[idx].Amount, change.Amount)
			if staged.Collateral[idx].Amount.Sign() == 0 {
				staged.Collateral = append(staged.Collateral[:idx], staged.Collateral[idx+1:]...)
			}
			delta.Sub(delta, change.Amount)
		default:
			return ErrInvalidAmount
		}
	}

	now := e.nowFn()
	value, err := e.collateralValue(staged.Collateral, now)
	if err != nil {
		return err
	}
	floor := new(big.Int).Mul(staged.TotalDebt(), new(big.Int).SetUint64(e.params.MinCollateralRatioPct))
	if new(big.Int).Mul(value, big.NewInt(100)).Cmp(floor) < 0 {
		return ErrInsufficientCollateral
	}

	for asset, delta := range net {
		if delta.Sign() > 0 && e.ledger.BalanceOf(asset, borrower).Cmp(delta) < 0 {
			return ErrInsufficientCollateral
		}
	}
	for asset, delta := range net {
		switch {
		case delta.Sign() > 0:
			if err := e.ledger.Transfer(asset, borrower, e.module, delta); err != nil {
				return err
			}
		case delta.Sign() < 0:
			if err := e.ledger.Transfer(asset, e.module, borrower, new(big.Int).Neg(delta)); err != nil {
				return err
			}
		}
	}

	remaining := uint64(0)
	if staged.EndTime > now {
		remaining = staged.EndTime - now
	}
	for _, holding := range staged.Collateral {
		if before[normaliseAsset(holding.Asset)] {
			continue
		}
		if vault := e.vaultFor(holding.Asset); vault != nil {
			if err := vault.MarkAsBorrower(borrower, staged.Principal, remaining); err != nil {
				return err
			}
		}
	}
	after := make(map[string]bool, len(staged.Collateral))
	for _, holding := range staged.Collateral {
		after[normaliseAsset(holding.Asset)] = true
	}
	for asset := range before {
		if after[asset] {
			continue
		}
		if vault := e.vaultFor(asset); vault != nil {
			if err := vault.MarkAsBorrower(borrower, nil, 0); err != nil {
				return err
			}
		}
	}

	if err := e.state.PutLoan(staged); err != nil {
		return err
	}
	e.emit(events.LendingCollateralAdjusted{Borrower: addr20(borrower), Changes: len(changes)})
	return nil
}

// CheckWarning runs the permissionless escalation check: it accrues interest,
// revalues the collateral, issues a warning (with penalty) when the cadence
// or the ratio threshold demands one, and raises the liquidation-eligibility
// signal. A stale price aborts without persisting anything.
func (e *Engine) CheckWarning(borrower crypto.Address) (warned bool, eligible bool, err error) {
	if err := e.ready(); err != nil {
		return false, false, err
	}
	if err := e.guard(); err != nil {
		return false, false, err
	}
	loan, err := e.state.GetLoan(borrower)
	if err != nil {
		return false, false, err
	}
	if loan == nil {
		return false, false, ErrLoanNotFound
	}
	now := e.nowFn()
	e.accrue(loan, now)

	value, err := e.collateralValue(loan.Collateral, now)
	if err != nil {
		return false, false, err
	}
	totalDebt := loan.TotalDebt()
	ratio, ok := debtRatio(totalDebt, value)
	threshold := new(big.Int).SetUint64(e.params.LiquidationThresholdPct)
	breach := !ok || ratio.Cmp(threshold) >= 0

	since := loan.LastWarningTime
	if since == 0 {
		since = loan.StartTime
	}
	overdue := now >= since && now-since >= e.params.WarningIntervalSeconds

	if loan.WarningsIssued < e.params.MaxWarnings && (overdue || breach) {
		penalty := bpsShare(loan.OutstandingDebt, e.params.WarningPenaltyBps)
		loan.Penalties = new(big.Int).Add(loan.Penalties, penalty)
		loan.WarningsIssued++
		loan.LastWarningTime = now
		warned = true
		e.emit(events.LendingWarning{
			Borrower:       addr20(borrower),
			WarningsIssued: loan.WarningsIssued,
			Penalty:        penalty,
		})
	}

	eligible = loan.WarningsIssued >= e.params.MaxWarnings || breach
	if eligible {
		e.emit(events.LendingLiquidationEligible{
			Borrower:       addr20(borrower),
			DebtRatio:      cloneBigInt(ratio),
			WarningsIssued: loan.WarningsIssued,
		})
	}
	if err := e.state.PutLoan(loan); err != nil {
		return false, false, err
	}
	return warned, eligible, nil
}

// Liquidate seizes a loan that breached the health threshold: all collateral
// is burned from custody, the caller earns the bot reward in stable units and
// the record is written off. Only the registered liquidator may call it. A
// below-threshold call fails without touching any state.
func (e *Engine) Liquidate(caller, borrower crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.guard(); err != nil {
		return nil, err
	}
	if e.roles == nil || !e.roles.HasRole(common.RoleLiquidator, caller) {
		return nil, ErrUnauthorized
	}
	loan, err := e.state.GetLoan(borrower)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, ErrLoanNotFound
	}
	now := e.nowFn()
	e.accrue(loan, now)

	value, err := e.collateralValue(loan.Collateral, now)
	if err != nil {
		return nil, err
	}
	totalDebt := loan.TotalDebt()
	lhs := new(big.Int).Mul(totalDebt, big.NewInt(100))
	rhs := new(big.Int).Mul(value, new(big.Int).SetUint64(e.params.LiquidationThresholdPct))
	if lhs.Cmp(rhs) < 0 {
		return nil, ErrLiquidationThresholdNotMet
	}

	reward := bpsShare(value, e.params.BotRewardBps)
	if reward.Sign() > 0 && e.ledger.BalanceOf(e.params.StableAsset, e.module).Cmp(reward) < 0 {
		return nil, ErrInsufficientPoolLiquidity
	}
	for _, holding := range loan.Collateral {
		if err := e.ledger.Burn(holding.Asset, e.module, holding.Amount); err != nil {
			return nil, err
		}
	}
	if reward.Sign() > 0 {
		if err := e.ledger.Transfer(e.params.StableAsset, e.module, caller, reward); err != nil {
			return nil, err
		}
	}

	recovered := new(big.Int).Sub(value, reward)
	if recovered.Sign() < 0 {
		recovered = big.NewInt(0)
	}
	if recovered.Cmp(totalDebt) > 0 {
		recovered = new(big.Int).Set(totalDebt)
	}
	shortfall := new(big.Int).Sub(totalDebt, recovered)

	pool, err := e.pool()
	if err != nil {
		return nil, err
	}
	pool.Locked.Sub(pool.Locked, loan.Principal)
	if pool.Locked.Sign() < 0 {
		pool.Locked = big.NewInt(0)
	}
	pool.Total.Add(pool.Total, new(big.Int).Sub(recovered, loan.Principal))
	if pool.Total.Sign() < 0 {
		pool.Total = big.NewInt(0)
	}

	for _, holding := range loan.Collateral {
		if vault := e.vaultFor(holding.Asset); vault != nil {
			if err := vault.MarkAsBorrower(borrower, nil, 0); err != nil {
				return nil, err
			}
			if err := vault.SetLPLiquidityUsed(borrower, nil); err != nil {
				return nil, err
			}
		}
	}
	if err := e.state.DeleteLoan(borrower); err != nil {
		return nil, err
	}
	if err := e.state.PutPoolLiquidity(pool); err != nil {
		return nil, err
	}
	e.emit(events.LendingLiquidated{
		Borrower:  addr20(borrower),
		Debt:      totalDebt,
		Recovered: recovered,
		Reward:    cloneBigInt(reward),
		Shortfall: shortfall,
	})
	return reward, nil
}

// SetRiskProfile registers or replaces the policy input for one collateral
// asset class.
func (e *Engine) SetRiskProfile(profile *TokenRiskProfile) error {
	if err := e.ready(); err != nil {
		return err
	}
	if profile == nil {
		return ErrInvalidAmount
	}
	asset := normaliseAsset(profile.Asset)
	if asset == "" {
		return ErrInvalidAmount
	}
	stored := profile.Clone()
	stored.Asset = asset
	return e.state.PutRiskProfile(stored)
}

// GetRiskProfile returns the registered profile for the asset, or nil.
func (e *Engine) GetRiskProfile(asset string) (*TokenRiskProfile, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.GetRiskProfile(asset)
}

// mergeCollateral folds duplicate asset entries together and rejects invalid
// amounts, preserving first-seen order.
func mergeCollateral(collateral []CollateralHolding) ([]CollateralHolding, error) {
	merged := make([]CollateralHolding, 0, len(collateral))
	index := make(map[string]int, len(collateral))
	for _, holding := range collateral {
		asset := normaliseAsset(holding.Asset)
		if asset == "" {
			return nil, ErrNoCollateral
		}
		if holding.Amount == nil || holding.Amount.Sign() <= 0 {
			return nil, ErrInvalidAmount
		}
		if pos, ok := index[asset]; ok {
			merged[pos].Amount = new(big.Int).Add(merged[pos].Amount, holding.Amount)
			continue
		}
		index[asset] = len(merged)
		merged = append(merged, CollateralHolding{Asset: asset, Amount: new(big.Int).Set(holding.Amount)})
	}
	return merged, nil
}

func normaliseAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

func bpsShare(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return share.Quo(share, big.NewInt(10_000))
}

func addr20(addr crypto.Address) [20]byte {
	var out [20]byte
	copy(out[:], addr.Bytes())
	return out
}
