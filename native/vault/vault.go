package vault

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"rwalend/crypto"
	"rwalend/native/token"
)

var (
	errInvalidAmount   = errors.New("vault: amount must be positive")
	errNoStake         = errors.New("vault: user has no stake")
	errInsufficient    = errors.New("vault: insufficient staked amount")
	errLockupActive    = errors.New("vault: cannot unstake during lockup period")
	errLiquidityInUse  = errors.New("vault: liquidity is being used for loans")
	errNothingToClaim  = errors.New("vault: no yield to claim")
	errPoolNotWired    = errors.New("vault: lending pool address not configured")
	errLedgerNotWired  = errors.New("vault: token ledger not configured")
	errYieldUnderflows = errors.New("vault: yield pool underflow")
)

// StakeInfo tracks one staker's position and borrower status within the vault.
type StakeInfo struct {
	Amount         *big.Int
	Timestamp      uint64
	IsBorrower     bool
	BorrowedAmount *big.Int
	LoanPeriod     uint64
}

// Clone returns a deep copy of the stake record.
func (s *StakeInfo) Clone() *StakeInfo {
	if s == nil {
		return nil
	}
	clone := &StakeInfo{
		Timestamp:  s.Timestamp,
		IsBorrower: s.IsBorrower,
		LoanPeriod: s.LoanPeriod,
	}
	if s.Amount != nil {
		clone.Amount = new(big.Int).Set(s.Amount)
	}
	if s.BorrowedAmount != nil {
		clone.BorrowedAmount = new(big.Int).Set(s.BorrowedAmount)
	}
	return clone
}

// Vault converts a raw risk asset into loan-eligible staked collateral and
// manages the yield pool funding borrower repayments. One vault instance
// serves one collateral asset class.
type Vault struct {
	mu          sync.Mutex
	ledger      *token.Ledger
	asset       string
	stakedAsset string
	stableAsset string
	address     crypto.Address
	poolAddress crypto.Address
	yieldPool   *big.Int
	stakes      map[string]*StakeInfo
	lpUsed      map[string]*big.Int
	nowFn       func() uint64
}

// NewVault constructs a vault for one collateral asset class. The address is
// the vault's own custody account on the token ledger.
func NewVault(ledger *token.Ledger, asset, stakedAsset, stableAsset string, address crypto.Address) *Vault {
	return &Vault{
		ledger:      ledger,
		asset:       asset,
		stakedAsset: stakedAsset,
		stableAsset: stableAsset,
		address:     address,
		yieldPool:   big.NewInt(0),
		stakes:      make(map[string]*StakeInfo),
		lpUsed:      make(map[string]*big.Int),
		nowFn:       func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetPoolAddress wires the lending pool custody account that receives yield
// pulled for repayments.
func (v *Vault) SetPoolAddress(addr crypto.Address) {
	if v == nil {
		return
	}
	v.mu.Lock()
	v.poolAddress = addr
	v.mu.Unlock()
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (v *Vault) SetNowFunc(now func() uint64) {
	if v == nil {
		return
	}
	v.mu.Lock()
	if now == nil {
		v.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
	} else {
		v.nowFn = now
	}
	v.mu.Unlock()
}

// StakedAsset returns the symbol of the loan-eligible staked token.
func (v *Vault) StakedAsset() string { return v.stakedAsset }

func (v *Vault) stakeFor(key string) *StakeInfo {
	info, ok := v.stakes[key]
	if !ok {
		return nil
	}
	if info.Amount == nil {
		info.Amount = big.NewInt(0)
	}
	if info.BorrowedAmount == nil {
		info.BorrowedAmount = big.NewInt(0)
	}
	return info
}

// Stake pulls the raw asset into custody and mints staked tokens 1:1.
func (v *Vault) Stake(user crypto.Address, amount *big.Int) error {
	if v == nil || v.ledger == nil {
		return errLedgerNotWired
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ledger.Transfer(v.asset, user, v.address, amount); err != nil {
		return err
	}
	if err := v.ledger.Mint(v.stakedAsset, user, amount); err != nil {
		return err
	}

	key := string(user.Bytes())
	info := v.stakeFor(key)
	if info == nil {
		info = &StakeInfo{Amount: big.NewInt(0), BorrowedAmount: big.NewInt(0)}
		v.stakes[key] = info
	}
	info.Amount = new(big.Int).Add(info.Amount, amount)
	info.Timestamp = v.nowFn()
	return nil
}

// Unstake burns staked tokens and releases the raw asset. Borrowers are held
// to a lockup covering the first 20% of the loan period and pay a 5%
// foreclosure fee while a borrow is outstanding; non-borrowers cannot pull
// liquidity currently reserved for loans.
func (v *Vault) Unstake(user crypto.Address, amount *big.Int) error {
	if v == nil || v.ledger == nil {
		return errLedgerNotWired
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	key := string(user.Bytes())
	info := v.stakeFor(key)
	if info == nil {
		return errNoStake
	}
	if info.Amount.Cmp(amount) < 0 {
		return errInsufficient
	}

	if info.IsBorrower {
		lockup := info.LoanPeriod * 20 / 100
		if v.nowFn()-info.Timestamp < lockup {
			return errLockupActive
		}
		if info.BorrowedAmount.Sign() > 0 {
			fee := new(big.Int).Mul(amount, big.NewInt(5))
			fee = fee.Quo(fee, big.NewInt(100))
			if fee.Sign() > 0 {
				if err := v.ledger.Burn(v.stakedAsset, user, fee); err != nil {
					return err
				}
			}
		}
	} else {
		inUse, ok := v.lpUsed[key]
		if ok && inUse.Sign() > 0 {
			free := new(big.Int).Sub(info.Amount, inUse)
			if amount.Cmp(free) > 0 {
				return errLiquidityInUse
			}
		}
	}

	if err := v.ledger.Burn(v.stakedAsset, user, amount); err != nil {
		return err
	}
	if err := v.ledger.Transfer(v.asset, v.address, user, amount); err != nil {
		return err
	}
	info.Amount = new(big.Int).Sub(info.Amount, amount)
	return nil
}

// FundYield credits the shared yield pool from the funder's stable balance.
func (v *Vault) FundYield(from crypto.Address, amount *big.Int) error {
	if v == nil || v.ledger == nil {
		return errLedgerNotWired
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ledger.Transfer(v.stableAsset, from, v.address, amount); err != nil {
		return err
	}
	v.yieldPool = new(big.Int).Add(v.yieldPool, amount)
	return nil
}

func (v *Vault) claimableLocked(user crypto.Address) *big.Int {
	balance := v.ledger.BalanceOf(v.stakedAsset, user)
	if balance.Sign() == 0 {
		return big.NewInt(0)
	}
	supply := v.ledger.TotalSupply(v.stakedAsset)
	if supply.Sign() == 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(v.yieldPool, balance)
	return share.Quo(share, supply)
}

// ClaimableYield returns the user's pro-rata share of the yield pool.
func (v *Vault) ClaimableYield(user crypto.Address) *big.Int {
	if v == nil || v.ledger == nil {
		return big.NewInt(0)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.claimableLocked(user)
}

// ClaimYield pays out the user's accrued yield in the stable asset.
func (v *Vault) ClaimYield(user crypto.Address) (*big.Int, error) {
	if v == nil || v.ledger == nil {
		return nil, errLedgerNotWired
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	claimable := v.claimableLocked(user)
	if claimable.Sign() == 0 {
		return nil, errNothingToClaim
	}
	if err := v.ledger.Transfer(v.stableAsset, v.address, user, claimable); err != nil {
		return nil, err
	}
	v.yieldPool = new(big.Int).Sub(v.yieldPool, claimable)
	if v.yieldPool.Sign() < 0 {
		return nil, errYieldUnderflows
	}
	return claimable, nil
}

// MarkAsBorrower records the user's borrower status. A zero borrowed amount
// clears the flag, which is how the pool releases a closed loan.
func (v *Vault) MarkAsBorrower(user crypto.Address, borrowed *big.Int, loanPeriod uint64) error {
	if v == nil {
		return errLedgerNotWired
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	key := string(user.Bytes())
	info := v.stakeFor(key)
	if info == nil {
		info = &StakeInfo{Amount: big.NewInt(0), BorrowedAmount: big.NewInt(0)}
		v.stakes[key] = info
	}
	if borrowed == nil || borrowed.Sign() == 0 {
		info.IsBorrower = false
		info.BorrowedAmount = big.NewInt(0)
		info.LoanPeriod = 0
		return nil
	}
	info.IsBorrower = true
	info.BorrowedAmount = new(big.Int).Set(borrowed)
	info.LoanPeriod = loanPeriod
	info.Timestamp = v.nowFn()
	return nil
}

// PullYieldForRepay moves up to amount of the user's claimable yield to the
// lending pool and returns how much was actually pulled.
func (v *Vault) PullYieldForRepay(user crypto.Address, amount *big.Int) (*big.Int, error) {
	if v == nil || v.ledger == nil {
		return nil, errLedgerNotWired
	}
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.poolAddress.IsZero() {
		return nil, errPoolNotWired
	}

	claimable := v.claimableLocked(user)
	pull := new(big.Int).Set(amount)
	if pull.Cmp(claimable) > 0 {
		pull = claimable
	}
	if pull.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if err := v.ledger.Transfer(v.stableAsset, v.address, v.poolAddress, pull); err != nil {
		return nil, err
	}
	v.yieldPool = new(big.Int).Sub(v.yieldPool, pull)
	return pull, nil
}

// SetLPLiquidityUsed records how much of the user's stake backs active loans.
func (v *Vault) SetLPLiquidityUsed(user crypto.Address, amount *big.Int) error {
	if v == nil {
		return errLedgerNotWired
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if amount == nil || amount.Sign() <= 0 {
		delete(v.lpUsed, string(user.Bytes()))
		return nil
	}
	v.lpUsed[string(user.Bytes())] = new(big.Int).Set(amount)
	return nil
}

// Stake returns a copy of the user's stake record, or nil when absent.
func (v *Vault) StakeOf(user crypto.Address) *StakeInfo {
	if v == nil {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stakeFor(string(user.Bytes())).Clone()
}
