package lending

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"rwalend/crypto"
	lendingtypes "rwalend/native/lending"
	"rwalend/storage"
)

const (
	loanPrefix    = "lending/loan/"
	depositPrefix = "lending/lp/"
	poolKey       = "lending/pool"
	riskPrefix    = "lending/risk/"
)

// Store persists lending records as JSON documents in a keyed database. It is
// the engine's only writer; records returned from lookups are fresh decodes,
// so callers can mutate them freely before putting them back.
type Store struct {
	db storage.Database
}

// NewStore wraps the database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func loanKey(borrower crypto.Address) []byte {
	return []byte(loanPrefix + hex.EncodeToString(borrower.Bytes()))
}

func depositKey(depositor crypto.Address) []byte {
	return []byte(depositPrefix + hex.EncodeToString(depositor.Bytes()))
}

func riskKey(asset string) []byte {
	return []byte(riskPrefix + strings.ToUpper(strings.TrimSpace(asset)))
}

func (s *Store) get(key []byte, out any) (bool, error) {
	raw, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("lending store: decode %q: %w", key, err)
	}
	return true, nil
}

func (s *Store) put(key []byte, record any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("lending store: encode %q: %w", key, err)
	}
	return s.db.Put(key, raw)
}

// GetLoan returns the borrower's loan, or nil when no record exists.
func (s *Store) GetLoan(borrower crypto.Address) (*lendingtypes.Loan, error) {
	var loan lendingtypes.Loan
	ok, err := s.get(loanKey(borrower), &loan)
	if err != nil || !ok {
		return nil, err
	}
	return &loan, nil
}

// PutLoan writes the loan keyed by its borrower.
func (s *Store) PutLoan(loan *lendingtypes.Loan) error {
	if loan == nil {
		return fmt.Errorf("lending store: nil loan")
	}
	return s.put(loanKey(loan.Borrower), loan)
}

// DeleteLoan removes the borrower's loan record. Deleting a missing record is
// a no-op.
func (s *Store) DeleteLoan(borrower crypto.Address) error {
	err := s.db.Delete(loanKey(borrower))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// GetDeposit returns the depositor's record, or nil when absent.
func (s *Store) GetDeposit(depositor crypto.Address) (*lendingtypes.LPDeposit, error) {
	var deposit lendingtypes.LPDeposit
	ok, err := s.get(depositKey(depositor), &deposit)
	if err != nil || !ok {
		return nil, err
	}
	return &deposit, nil
}

// PutDeposit writes the deposit keyed by its depositor.
func (s *Store) PutDeposit(deposit *lendingtypes.LPDeposit) error {
	if deposit == nil {
		return fmt.Errorf("lending store: nil deposit")
	}
	return s.put(depositKey(deposit.Depositor), deposit)
}

// GetPoolLiquidity returns the pool counters, or nil before the first write.
func (s *Store) GetPoolLiquidity() (*lendingtypes.PoolLiquidity, error) {
	var pool lendingtypes.PoolLiquidity
	ok, err := s.get([]byte(poolKey), &pool)
	if err != nil || !ok {
		return nil, err
	}
	return &pool, nil
}

// PutPoolLiquidity writes the pool counters.
func (s *Store) PutPoolLiquidity(pool *lendingtypes.PoolLiquidity) error {
	if pool == nil {
		return fmt.Errorf("lending store: nil pool liquidity")
	}
	return s.put([]byte(poolKey), pool)
}

// GetRiskProfile returns the asset's registered profile, or nil when absent.
func (s *Store) GetRiskProfile(asset string) (*lendingtypes.TokenRiskProfile, error) {
	var profile lendingtypes.TokenRiskProfile
	ok, err := s.get(riskKey(asset), &profile)
	if err != nil || !ok {
		return nil, err
	}
	return &profile, nil
}

// PutRiskProfile writes the profile keyed by its asset symbol.
func (s *Store) PutRiskProfile(profile *lendingtypes.TokenRiskProfile) error {
	if profile == nil {
		return fmt.Errorf("lending store: nil risk profile")
	}
	return s.put(riskKey(profile.Asset), profile)
}
