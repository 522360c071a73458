package token

import (
	"errors"
	"math/big"
	"strings"
	"sync"

	"rwalend/crypto"
)

var (
	errInvalidAmount        = errors.New("token ledger: amount must be positive")
	errUnknownAsset         = errors.New("token ledger: asset symbol required")
	errInsufficientBalance  = errors.New("token ledger: insufficient balance")
	errInsufficientAllowTok = errors.New("token ledger: insufficient allowance")
)

// Ledger is an in-process multi-asset fungible token ledger. It stands in for
// the external token contracts the pool routes funds through: balances are
// keyed by (asset symbol, holder) and amounts are big integers in the asset's
// smallest unit.
type Ledger struct {
	mu         sync.RWMutex
	balances   map[string]map[string]*big.Int
	allowances map[string]map[string]map[string]*big.Int
	supply     map[string]*big.Int
}

// NewLedger constructs an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[string]map[string]*big.Int),
		allowances: make(map[string]map[string]map[string]*big.Int),
		supply:     make(map[string]*big.Int),
	}
}

func normaliseAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

func addrKey(addr crypto.Address) string { return string(addr.Bytes()) }

func (l *Ledger) balanceLocked(asset, holder string) *big.Int {
	holders, ok := l.balances[asset]
	if !ok {
		return big.NewInt(0)
	}
	bal, ok := holders[holder]
	if !ok {
		return big.NewInt(0)
	}
	return bal
}

func (l *Ledger) setBalanceLocked(asset, holder string, amount *big.Int) {
	holders, ok := l.balances[asset]
	if !ok {
		holders = make(map[string]*big.Int)
		l.balances[asset] = holders
	}
	holders[holder] = amount
}

// BalanceOf returns the holder's balance for the asset.
func (l *Ledger) BalanceOf(asset string, holder crypto.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.balanceLocked(normaliseAsset(asset), addrKey(holder)))
}

// TotalSupply returns the outstanding supply for the asset.
func (l *Ledger) TotalSupply(asset string) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if supply, ok := l.supply[normaliseAsset(asset)]; ok {
		return new(big.Int).Set(supply)
	}
	return big.NewInt(0)
}

// Mint credits newly issued units to the recipient.
func (l *Ledger) Mint(asset string, to crypto.Address, amount *big.Int) error {
	symbol := normaliseAsset(asset)
	if symbol == "" {
		return errUnknownAsset
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := addrKey(to)
	l.setBalanceLocked(symbol, key, new(big.Int).Add(l.balanceLocked(symbol, key), amount))
	current, ok := l.supply[symbol]
	if !ok {
		current = big.NewInt(0)
	}
	l.supply[symbol] = new(big.Int).Add(current, amount)
	return nil
}

// Burn destroys units held by the holder, reducing total supply.
func (l *Ledger) Burn(asset string, from crypto.Address, amount *big.Int) error {
	symbol := normaliseAsset(asset)
	if symbol == "" {
		return errUnknownAsset
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := addrKey(from)
	balance := l.balanceLocked(symbol, key)
	if balance.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	l.setBalanceLocked(symbol, key, new(big.Int).Sub(balance, amount))
	current, ok := l.supply[symbol]
	if !ok {
		current = big.NewInt(0)
	}
	l.supply[symbol] = new(big.Int).Sub(current, amount)
	return nil
}

// Transfer moves units between two holders.
func (l *Ledger) Transfer(asset string, from, to crypto.Address, amount *big.Int) error {
	symbol := normaliseAsset(asset)
	if symbol == "" {
		return errUnknownAsset
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferLocked(symbol, addrKey(from), addrKey(to), amount)
}

func (l *Ledger) transferLocked(symbol, from, to string, amount *big.Int) error {
	fromBal := l.balanceLocked(symbol, from)
	if fromBal.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	l.setBalanceLocked(symbol, from, new(big.Int).Sub(fromBal, amount))
	l.setBalanceLocked(symbol, to, new(big.Int).Add(l.balanceLocked(symbol, to), amount))
	return nil
}

// Approve lets spender move up to amount of owner's asset via TransferFrom.
func (l *Ledger) Approve(asset string, owner, spender crypto.Address, amount *big.Int) error {
	symbol := normaliseAsset(asset)
	if symbol == "" {
		return errUnknownAsset
	}
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	owners, ok := l.allowances[symbol]
	if !ok {
		owners = make(map[string]map[string]*big.Int)
		l.allowances[symbol] = owners
	}
	spenders, ok := owners[addrKey(owner)]
	if !ok {
		spenders = make(map[string]*big.Int)
		owners[addrKey(owner)] = spenders
	}
	spenders[addrKey(spender)] = new(big.Int).Set(amount)
	return nil
}

// Allowance returns how much spender may still move on behalf of owner.
func (l *Ledger) Allowance(asset string, owner, spender crypto.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if owners, ok := l.allowances[normaliseAsset(asset)]; ok {
		if spenders, ok := owners[addrKey(owner)]; ok {
			if allowed, ok := spenders[addrKey(spender)]; ok {
				return new(big.Int).Set(allowed)
			}
		}
	}
	return big.NewInt(0)
}

// TransferFrom moves units from the owner to the recipient consuming the
// spender's allowance.
func (l *Ledger) TransferFrom(asset string, spender, from, to crypto.Address, amount *big.Int) error {
	symbol := normaliseAsset(asset)
	if symbol == "" {
		return errUnknownAsset
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	owners, ok := l.allowances[symbol]
	if !ok {
		return errInsufficientAllowTok
	}
	spenders, ok := owners[addrKey(from)]
	if !ok {
		return errInsufficientAllowTok
	}
	allowed, ok := spenders[addrKey(spender)]
	if !ok || allowed.Cmp(amount) < 0 {
		return errInsufficientAllowTok
	}
	if err := l.transferLocked(symbol, addrKey(from), addrKey(to), amount); err != nil {
		return err
	}
	spenders[addrKey(spender)] = new(big.Int).Sub(allowed, amount)
	return nil
}
