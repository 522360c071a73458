package lending

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"rwalend/crypto"
	"rwalend/native/common"
	"rwalend/native/oracle"
	"rwalend/native/token"
	"rwalend/native/vault"
)

// memState is an in-memory engineState that clones records on both reads and
// writes, matching the isolation of the persistent store.
type memState struct {
	loans    map[string]*Loan
	deposits map[string]*LPDeposit
	pool     *PoolLiquidity
	risks    map[string]*TokenRiskProfile
}

func newMemState() *memState {
	return &memState{
		loans:    make(map[string]*Loan),
		deposits: make(map[string]*LPDeposit),
		risks:    make(map[string]*TokenRiskProfile),
	}
}

func (s *memState) GetLoan(borrower crypto.Address) (*Loan, error) {
	return s.loans[string(borrower.Bytes())].Clone(), nil
}

func (s *memState) PutLoan(loan *Loan) error {
	s.loans[string(loan.Borrower.Bytes())] = loan.Clone()
	return nil
}

func (s *memState) DeleteLoan(borrower crypto.Address) error {
	delete(s.loans, string(borrower.Bytes()))
	return nil
}

func (s *memState) GetDeposit(depositor crypto.Address) (*LPDeposit, error) {
	return s.deposits[string(depositor.Bytes())].Clone(), nil
}

func (s *memState) PutDeposit(deposit *LPDeposit) error {
	s.deposits[string(deposit.Depositor.Bytes())] = deposit.Clone()
	return nil
}

func (s *memState) GetPoolLiquidity() (*PoolLiquidity, error) {
	return s.pool.Clone(), nil
}

func (s *memState) PutPoolLiquidity(pool *PoolLiquidity) error {
	s.pool = pool.Clone()
	return nil
}

func (s *memState) GetRiskProfile(asset string) (*TokenRiskProfile, error) {
	return s.risks[asset].Clone(), nil
}

func (s *memState) PutRiskProfile(profile *TokenRiskProfile) error {
	s.risks[profile.Asset] = profile.Clone()
	return nil
}

func testAddr(suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.RWLPrefix, raw)
}

const baseTime = uint64(1_700_000_000)

type fixture struct {
	engine *Engine
	state  *memState
	ledger *token.Ledger
	prices *oracle.Manual
	roles  *common.RoleRegistry
	pool   crypto.Address
	clock  uint64
}

func newFixture(t *testing.T, params Params) *fixture {
	t.Helper()
	f := &fixture{
		state:  newMemState(),
		ledger: token.NewLedger(),
		prices: oracle.NewManual(),
		roles:  common.NewRoleRegistry(),
		pool:   testAddr(0xF0),
		clock:  baseTime,
	}
	f.engine = NewEngine(f.state, f.ledger, f.prices, f.pool, params)
	f.engine.SetRoles(f.roles)
	f.engine.SetNowFunc(func() uint64 { return f.clock })
	f.setPrice("STRWA", big.NewInt(oracle.PriceScale))
	return f
}

func fixedPolicyParams() Params {
	params := DefaultParams()
	params.RatePolicy = RatePolicyFixed
	return params
}

func (f *fixture) setPrice(asset string, value *big.Int) {
	f.prices.Set(asset, value, time.Unix(int64(f.clock), 0))
}

func (f *fixture) advance(seconds uint64) {
	f.clock += seconds
}

func (f *fixture) mustDeposit(t *testing.T, depositor crypto.Address, amount int64) {
	t.Helper()
	if err := f.ledger.Mint("USDC", depositor, big.NewInt(amount)); err != nil {
		t.Fatalf("mint stable: %v", err)
	}
	if err := f.engine.Deposit(depositor, big.NewInt(amount)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func (f *fixture) mustOriginate(t *testing.T, borrower crypto.Address, collateral, principal int64, months uint64) *Loan {
	t.Helper()
	if err := f.ledger.Mint("STRWA", borrower, big.NewInt(collateral)); err != nil {
		t.Fatalf("mint collateral: %v", err)
	}
	loan, err := f.engine.Originate(borrower,
		[]CollateralHolding{{Asset: "STRWA", Amount: big.NewInt(collateral)}},
		big.NewInt(principal), months)
	if err != nil {
		t.Fatalf("originate: %v", err)
	}
	return loan
}

func TestDepositWithdrawAccounting(t *testing.T) {
	f := newFixture(t, fixedPolicyParams())
	lp1 := testAddr(0x01)
	lp2 := testAddr(0x02)

	f.mustDeposit(t, lp1, 1_000_000)
	f.mustDeposit(t, lp2, 500_000)

	total, err := f.engine.TotalLiquidity()
	if err != nil {
		t.Fatalf("total liquidity: %v", err)
	}
	if total.Cmp(big.NewInt(1_500_000)) != 0 {
		t.Fatalf("unexpected total liquidity: %s", total)
	}

	if err := f.engine.Withdraw(lp2, big.NewInt(600_000)); !errors.Is(err, ErrInsufficientAvailableBalance) {
		t.Fatalf("expected insufficient available balance, got %v", err)
	}
	if err := f.engine.Withdraw(lp2, big.NewInt(500_000)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := f.ledger.BalanceOf("USDC", lp2); got.Cmp(big.NewInt(500_000)) != 0 {
		t.Fatalf("unexpected lp2 balance: %s", got)
	}
	total, _ = f.engine.TotalLiquidity()
	if total.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("unexpected total after withdraw: %s", total)
	}
	if err := f.engine.Withdraw(lp1, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestOriginateHappyPath(t *testing.T) {
	f := newFixture(t, fixedPolicyParams())
	lp := testAddr(0x01)
	borrower := testAddr(0x02)

	f.mustDeposit(t, lp, 1_000_000)
	loan := f.mustOriginate(t, borrower, 200_000, 100_000, 12)

	if loan.Principal.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("unexpected principal: %s", loan.Principal)
	}
	if loan.OutstandingDebt.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("unexpected debt: %s", loan.OutstandingDebt)
	}
	available, err := f.engine.AvailableLiquidity()
	if err != nil {
		t.Fatalf("available liquidity: %v", err)
	}
	if available.Cmp(big.NewInt(900_000)) != 0 {
		t.Fatalf("unexpected available liquidity: %s", available)
	}
	if got := f.ledger.BalanceOf("USDC", borrower); got.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("principal not disbursed: %s", got)
	}
	if got := f.ledger.BalanceOf("STRWA", f.pool); got.Cmp(big.NewInt(200_000)) != 0 {
		t.Fatalf("collateral not in custody: %s", got)
	}
}

func TestOriginateValidation(t *testing.T) {
	f := newFixture(t, fixedPolicyParams())
	lp := testAddr(0x01)
	borrower := testAddr(0x02)
	f.mustDeposit(t, lp, 1_000_000)
	if err := f.ledger.Mint("STRWA", borrower, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("mint collateral: %v", err)
	}
	holdings := []CollateralHolding{{Asset: "STRWA", Amount: big.NewInt(200_000)}}

	if _, err := f.engine.Originate(borrower, holdings, big.NewInt(100_000), 2); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected invalid duration, got %v", err)
	}
	if _, err := f.engine.Originate(borrower, holdings, big.NewInt(100_000), 25); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected invalid duration, got %v", err)
	}
	if _, err := f.engine.Originate(borrower, nil, big.NewInt(100_000), 12); !errors.Is(err, ErrNoCollateral) {
		t.Fatalf("expected no collateral, got %v", err)
	}
	if _, err := f.engine.Originate(borrower, holdings, big.NewInt(0), 12); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	// 200,000 collateral at 1:1 covers at most 142,857 at a 140% floor
	if _, err := f.engine.Originate(borrower, holdings, big.NewInt(150_000), 12); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected insufficient collateral, got %v", err)
	}
	if _, err := f.engine.Originate(borrower,
		[]CollateralHolding{{Asset: "STRWA", Amount: big.NewInt(1_000_000)}},
		big.NewInt(800_000), 12); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected insufficient collateral, got %v", err)
	}

	if _, err := f.engine.Originate(borrower, holdings, big.NewInt(100_000), 12); err != nil {
		t.Fatalf("originate: %v", err)
	}
	if _, err := f.engine.Originate(borrower, holdings, big.NewInt(50_000), 12); !errors.Is(err, ErrDuplicateLoan) {
		t.Fatalf("expected duplicate loan, got %v", err)
	}
}

func TestOriginateExceedingAvailableLiquidity(t *testing.T) {
	f := newFixture(t, fixedPolicyParams())
	lp := testAddr(0x01)
	borrower := testAddr(0x02)
	f.mustDeposit(t, lp, 50_000)
	if err := f.ledger.Mint("STRWA", borrower, big.NewInt(200_000)); err != nil {
		t.Fatalf("mint collateral: %v", err)
	}
	_, err := f.engine.Originate(borrower,
		[]CollateralHolding{{Asset: "STRWA", Amount: big.NewInt(200_000)}},
		big.NewInt(100_000), 12)
	if !errors.Is(err, ErrInsufficientPoolLiquidity) {
		t.Fatalf("expected insufficient pool liquidity, got %v", err)
	}
}

func TestOriginateMergesDuplicateCollateral(t *testing.T) {
	f := newFixture(t, fixedPolicyParams())
	lp := testAddr(0x01)
	borrower := testAddr(0x02)
	f.mustDeposit(t, lp, 1_000_000)
	if err := f.ledger.Mint("STRWA", borrower, big.NewInt(200_000)); err != nil {
		t.Fatalf("mint collateral: %v", err)
	}
	loan, err := f.engine.Originate(borrower, []CollateralHolding{
		{Asset: "strwa", Amount: big.NewInt(120_000)},
		{Asset: "STRWA", Amount: big.NewInt(80_000)},
	}, big.NewInt(100_000), 12)
	if err != nil {
		t.Fatalf("originate: %v", err)
	}
	if len(loan.Collateral) != 1 {
		t.Fatalf("expected merged collateral, got %d entries", len(loan.Collateral))
	}
	if loan.Collateral[0].Amount.Cmp(big.NewInt(200_000)) != 0 {
		t.Fatalf("unexpected merged amount: %s", loan.Collateral[0].Amount)
	}
}

func TestAccrualIdempotentWithinMonthBucket(t *testing.T) {
	f := newFixture(t, fixedPolicyParams())
	f.mustDeposit(t, testAddr(0x01), 1_000_000)
	borrower := testAddr(0x02)
	f.mustOriginate(t, borrower, 200_000, 100_000, 12)

	f.advance(SecondsPerMonth + 1000)
	interest, err := f.engine.UpdateLoanInterest(borrower)
	if err != nil {
		t.Fatalf("update interest: %v", err)
	}
	// 10% fixed annual rate, one month: 100,000 * 1.008333 = 100,833
	if interest.Cmp(big.NewInt(833)) != 0 {
		t.Fatalf("unexpected interest: %s", interest)
	}
	loan, err := f.engine.GetLoan(borrower)
	if err != nil {
		t.Fatalf("get loan: %v", err)
	}
	if loan.OutstandingDebt.Cmp(big.NewInt(100_833)) != 0 {
		t.Fatalf("unexpected debt: %s", loan.OutstandingDebt)
	}

	again, err := f.engine.UpdateLoanInterest(borrower)
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if again.Sign() != 0 {
		t.Fatalf("expected zero interest in same bucket, got %s", again)
	}
}

func TestRepaySplitsLPShare(t *testing.T) {
	f := newFixture(t, fixedPolicyParams())
	f.mustDeposit(t, testAddr(0x01), 1_000_000)
	borrower := testAddr(0x02)
	f.mustOriginate(t, borrower, 200_000, 100_000, 12)

	if err := f.engine.Repay(borrower, big.NewInt(50_000)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	loan, err := f.engine.GetLoan(borrower)
	if err != nil {
		t.Fatalf("get loan: %v", err)
	}
	// yield share 10%: 5,000 to the pool, 45,000 off the debt
	if loan.OutstandingDebt.Cmp(big.NewInt(55_000)) != 0 {
		t.Fatalf("unexpected debt: %s", loan.OutstandingDebt)
	}
	total, _ := f.engine.TotalLiquidity()
	if total.Cmp(big.NewInt(1_005_000)) != 0 {
		t.Fatalf("unexpected pool total: %s", total)
	}
}

func TestFullRepaymentClosesAndReturnsCollateral(t *testing.T) {
	f := newFixture(t, fixedPolicyParams())
	f.mustDeposit(t, testAddr(0x01), 1_000_000)
	borrower := testAddr(0x02)
	f.mustOriginate(t, borrower, 200_000, 100_000, 12)

	// 10% of the payment is the LP share, so 112,000 clears 100,800 > debt.
	if err := f.ledger.Mint("USDC", borrower, big.NewInt(12_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := f.engine.Repay(borrower, big.NewInt(112_000)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if _, err := f.engine.GetLoan(borrower); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("expected loan removed, got %v", err)
	}
	if got := f.ledger.BalanceOf("STRWA", borrower); got.Cmp(big.NewInt(200_000)) != 0 {
		t.Fatalf("collateral not returned: %s", got)
	}
	available, _ := f.engine.AvailableLiquidity()
	// locked principal released; total grew by the 11,200 LP share
	if available.Cmp(big.NewInt(1_011_200)) != 0 {
		t.Fatalf("unexpected available liquidity: %s", available)
	}
}

func TestCloseEarlyChargesFee(t *testing.T) {
	f := newFixture(t, fixedPolicyParams())
	f.mustDeposit(t, testAddr(0x01), 1_000_000)
	borrower := testAddr(0x02)
	f.mustOriginate(t, borrower, 200_000, 100_000, 12)

	// debt 100,000 plus 5% fee needs 105,000; borrower holds the disbursed
	// 100,000 so top up the difference
	if err := f.ledger.Mint("USDC", borrower, big.NewInt(5_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := f.engine.CloseEarly(borrower); err != nil {
		t.Fatalf("close early: %v", err)
	}
	if _, err := f.engine.GetLoan(borrower); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("expected loan removed, got %v", err)
	}
	if got := f.ledger.BalanceOf("USDC", borrower); got.Sign() != 0 {
		t.Fatalf("expected exact 105,000 payment, leftover %s", got)
	}
	if got := f.ledger.BalanceOf("STRWA", borrower); got.Cmp(big.NewInt(200_000)) != 0 {
		t.Fatalf("collateral not returned: %s", got)
	}
	total, _ := f.engine.TotalLiquidity()
	if total.Cmp(big.NewInt(1_005_000)) != 0 {
		t.Fatalf("unexpected pool total: %s", total)
	}
}

func TestCloseEarlyInsufficientFundsLeavesLoanOpen(t *testing.T) {
	f := newFixture(t, fixedPolicyParams())
	f.mustDeposit(t, testAddr(0x01), 1_000_000)
	borrower := testAddr(0x02)
	f.mustOriginate(t, borrower, 200_000, 100_000, 12)

	// borrower only holds the 100,000 principal, 5,000 short of the fee
	if err := f.engine.CloseEarly(borrower); !errors.Is(err, ErrInsufficientAvailableBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	loan, err := f.engine.GetLoan(borrower)
	if err != nil {
		t.Fatalf("loan should remain open: %v", err)
	}
	if loan.OutstandingDebt.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("debt mutated on failed close: %s", loan.OutstandingDebt)
	}
}

func TestAdjustCollateralAllOrNothing(t *testing.T) {
	f := newFixture(t, fixedPolicyParams())
	f.mustDeposit(t, testAddr(0x01), 1_000_000)
	borrower := testAddr(0x02)
	f.mustOriginate(t, borrower, 200_000, 100_000, 12)

	// removing more than held
	err := f.engine.AdjustCollateral(borrower, []CollateralChange{
		{Kind: CollateralRemove, Asset: "STRWA", Amount: big.NewInt(250_000)},
	})
	if !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected insufficient collateral, got %v", err)
	}

	// removing enough to break the 140% floor: 200,000 - 70,000 = 130,000 < 140,000
	err = f.engine.AdjustCollateral(borrower, []CollateralChange{
		{Kind: CollateralRemove, Asset: "STRWA", Amount: big.NewInt(70_000)},
	})
	if !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected health floor rejection, got %v", err)
	}
	loan, _ := f.engine.GetLoan(borrower)
	if loan.Collateral[0].Amount.Cmp(big.NewInt(200_000)) != 0 {
		t.Fatalf("failed adjustment mutated collateral: %s", loan.Collateral[0].Amount)
	}
	if got := f.ledger.BalanceOf("STRWA", borrower); got.Sign() != 0 {
		t.Fatalf("failed adjustment moved funds: %s", got)
	}

	// a valid batch: add a second asset, trim the first
	f.setPrice("STGOLD", big.NewInt(oracle.PriceScale))
	if err := f.ledger.Mint("STGOLD", borrower, big.NewInt(50_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	err = f.engine.AdjustCollateral(borrower, []CollateralChange{
		{Kind: CollateralAdd, Asset: "STGOLD", Amount: big.NewInt(50_000)},
		{Kind: CollateralRemove, Asset: "STRWA", Amount: big.NewInt(50_000)},
	})
	if err != nil {
		t.Fatalf("adjust collateral: %v", err)
	}
	loan, _ = f.engine.GetLoan(borrower)
	if len(loan.Collateral) != 2 {
		t.Fatalf("expected two collateral entries, got %d", len(loan.Collateral))
	}
	if got := f.ledger.BalanceOf("STRWA", borrower); got.Cmp(big.NewInt(50_000)) != 0 {
		t.Fatalf("removed collateral not returned: %s", got)
	}
	if got := f.ledger.BalanceOf("STGOLD", f.pool); got.Cmp(big.NewInt(50_000)) != 0 {
		t.Fatalf("added collateral not in custody: %s", got)
	}
}

func TestWarningCadence(t *testing.T) {
	f := newFixture(t, fixedPolicyParams())
	f.mustDeposit(t, testAddr(0x01), 1_000_000)
	borrower := testAddr(0x02)
	f.mustOriginate(t, borrower, 200_000, 100_000, 12)

	// healthy and inside the cadence window: nothing happens
	warned, eligible, err := f.engine.CheckWarning(borrower)
	if err != nil {
		t.Fatalf("check warning: %v", err)
	}
	if warned || eligible {
		t.Fatalf("unexpected escalation: warned=%v eligible=%v", warned, eligible)
	}

	// 14 days with no warning triggers the cadence branch
	f.advance(14 * 24 * 60 * 60)
	f.setPrice("STRWA", big.NewInt(oracle.PriceScale))
	warned, eligible, err = f.engine.CheckWarning(borrower)
	if err != nil {
		t.Fatalf("check warning: %v", err)
	}
	if !warned {
		t.Fatalf("expected cadence warning")
	}
	if eligible {
		t.Fatalf("healthy loan must not be liquidation eligible")
	}
	loan, _ := f.engine.GetLoan(borrower)
	if loan.WarningsIssued != 1 {
		t.Fatalf("unexpected warnings count: %d", loan.WarningsIssued)
	}
	// 2% of 100,000 debt
	if loan.Penalties.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("unexpected penalty: %s", loan.Penalties)
	}

	// immediately again: inside cadence, still healthy
	warned, _, err = f.engine.CheckWarning(borrower)
	if err != nil {
		t.Fatalf("check warning: %v", err)
	}
	if warned {
		t.Fatalf("unexpected second warning inside cadence")
	}
}

func TestWarningRatioBreachAndEligibility(t *testing.T) {
	f := newFixture(t, fixedPolicyParams())
	f.mustDeposit(t, testAddr(0x01), 1_000_000)
	borrower := testAddr(0x02)
	f.mustOriginate(t, borrower, 200_000, 100_000, 12)

	// price collapse: collateral worth 80,000 against 100,000 debt → ratio 125
	f.setPrice("STRWA", big.NewInt(400_000))
	warned, eligible, err := f.engine.CheckWarning(borrower)
	if err != nil {
		t.Fatalf("check warning: %v", err)
	}
	if !warned || !eligible {
		t.Fatalf("expected breach warning and eligibility, got warned=%v eligible=%v", warned, eligible)
	}
	warned, eligible, err = f.engine.CheckWarning(borrower)
	if err != nil {
		t.Fatalf("check warning: %v", err)
	}
	if !warned || !eligible {
		t.Fatalf("expected second breach warning, got warned=%v eligible=%v", warned, eligible)
	}
	// warnings capped at two; eligibility persists
	warned, eligible, err = f.engine.CheckWarning(borrower)
	if err != nil {
		t.Fatalf("check warning: %v", err)
	}
	if warned {
		t.Fatalf("warnings must cap at two")
	}
	if !eligible {
		t.Fatalf("expected eligibility at warning cap")
	}
	loan, _ := f.engine.GetLoan(borrower)
	if loan.WarningsIssued != 2 {
		t.Fatalf("unexpected warnings count: %d", loan.WarningsIssued)
	}
}

func TestGoodFaithPaymentResetsWarnings(t *testing.T) {
	f := newFixture(t, fixedPolicyParams())
	f.mustDeposit(t, testAddr(0x01), 1_000_000)
	borrower := testAddr(0x02)
	f.mustOriginate(t, borrower, 200_000, 100_000, 12)

	f.advance(14 * 24 * 60 * 60)
	f.setPrice("STRWA", big.NewInt(oracle.PriceScale))
	if _, _, err := f.engine.CheckWarning(borrower); err != nil {
		t.Fatalf("check warning: %v", err)
	}
	loan, _ := f.engine.GetLoan(borrower)
	if loan.WarningsIssued != 1 {
		t.Fatalf("warning setup failed: %d", loan.WarningsIssued)
	}

	// principal share of 20,000 payment is 18,000 > 10% of principal
	if err := f.engine.Repay(borrower, big.NewInt(20_000)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	loan, _ = f.engine.GetLoan(borrower)
	if loan.WarningsIssued != 0 || loan.LastWarningTime != 0 {
		t.Fatalf("good-faith payment did not reset warnings: %d %d", loan.WarningsIssued, loan.LastWarningTime)
	}
}

func TestSmallRepaymentKeepsWarnings(t *testing.T) {
	f := newFixture(t, fixedPolicyParams())
	f.mustDeposit(t, testAddr(0x01), 1_000_000)
	borrower := testAddr(0x02)
	f.mustOriginate(t, borrower, 200_000, 100_000, 12)

	f.advance(14 * 24 * 60 * 60)
	f.setPrice("STRWA", big.NewInt(oracle.PriceScale))
	if _, _, err := f.engine.CheckWarning(borrower); err != nil {
		t.Fatalf("check warning: %v", err)
	}

	// principal share of 5,000 payment is 4,500 < 10,000
	if err := f.engine.Repay(borrower, big.NewInt(5_000)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	loan, _ := f.engine.GetLoan(borrower)
	if loan.WarningsIssued != 1 {
		t.Fatalf("small payment must not reset warnings: %d", loan.WarningsIssued)
	}
}

func TestLiquidateRequiresRoleAndThreshold(t *testing.T) {
	f := newFixture(t, fixedPolicyParams())
	f.mustDeposit(t, testAddr(0x01), 1_000_000)
	borrower := testAddr(0x02)
	liquidator := testAddr(0x03)
	f.mustOriginate(t, borrower, 200_000, 100_000, 12)

	if _, err := f.engine.Liquidate(liquidator, borrower); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	f.roles.Grant(common.RoleLiquidator, liquidator)

	if _, err := f.engine.Liquidate(liquidator, borrower); !errors.Is(err, ErrLiquidationThresholdNotMet) {
		t.Fatalf("expected threshold rejection, got %v", err)
	}
	// below-threshold attempt must not change any state
	loan, err := f.engine.GetLoan(borrower)
	if err != nil {
		t.Fatalf("loan must survive failed liquidation: %v", err)
	}
	if loan.OutstandingDebt.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("debt mutated by failed liquidation: %s", loan.OutstandingDebt)
	}
	available, _ := f.engine.AvailableLiquidity()
	if available.Cmp(big.NewInt(900_000)) != 0 {
		t.Fatalf("liquidity mutated by failed liquidation: %s", available)
	}
}

func TestLiquidateSeizesAndRewards(t *testing.T) {
	f := newFixture(t, fixedPolicyParams())
	f.mustDeposit(t, testAddr(0x01), 1_000_000)
	borrower := testAddr(0x02)
	liquidator := testAddr(0x03)
	f.roles.Grant(common.RoleLiquidator, liquidator)
	f.mustOriginate(t, borrower, 200_000, 100_000, 12)

	// collateral value drops to 90,000: 100,000×100 ≥ 90,000×110
	f.setPrice("STRWA", big.NewInt(450_000))
	reward, err := f.engine.Liquidate(liquidator, borrower)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if reward.Cmp(big.NewInt(9_000)) != 0 {
		t.Fatalf("unexpected reward: %s", reward)
	}
	if got := f.ledger.BalanceOf("USDC", liquidator); got.Cmp(big.NewInt(9_000)) != 0 {
		t.Fatalf("reward not paid: %s", got)
	}
	if got := f.ledger.BalanceOf("STRWA", f.pool); got.Sign() != 0 {
		t.Fatalf("collateral not burned: %s", got)
	}
	if _, err := f.engine.GetLoan(borrower); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("expected loan removed, got %v", err)
	}
	// locked released; total absorbs the recovery shortfall:
	// recovered 81,000 against 100,000 principal → total 981,000
	total, _ := f.engine.TotalLiquidity()
	if total.Cmp(big.NewInt(981_000)) != 0 {
		t.Fatalf("unexpected pool total: %s", total)
	}
	available, _ := f.engine.AvailableLiquidity()
	if available.Cmp(big.NewInt(981_000)) != 0 {
		t.Fatalf("unexpected available liquidity: %s", available)
	}
}

func TestStaleOracleAbortsChecks(t *testing.T) {
	f := newFixture(t, fixedPolicyParams())
	f.mustDeposit(t, testAddr(0x01), 1_000_000)
	borrower := testAddr(0x02)
	liquidator := testAddr(0x03)
	f.roles.Grant(common.RoleLiquidator, liquidator)
	f.mustOriginate(t, borrower, 200_000, 100_000, 12)

	// quote ages out after the freshness window
	f.advance(48 * 60 * 60)
	if _, _, err := f.engine.CheckWarning(borrower); !errors.Is(err, ErrStaleOracleData) {
		t.Fatalf("expected stale oracle error, got %v", err)
	}
	if _, err := f.engine.Liquidate(liquidator, borrower); !errors.Is(err, ErrStaleOracleData) {
		t.Fatalf("expected stale oracle error, got %v", err)
	}
	// the aborted check must not have persisted accrual or warnings
	loan, _ := f.engine.GetLoan(borrower)
	if loan.LastInterestUpdate != baseTime {
		t.Fatalf("stale check persisted accrual watermark: %d", loan.LastInterestUpdate)
	}
	if loan.WarningsIssued != 0 {
		t.Fatalf("stale check issued warning: %d", loan.WarningsIssued)
	}

	// origination against a stale quote fails too
	other := testAddr(0x04)
	if err := f.ledger.Mint("STRWA", other, big.NewInt(200_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	_, err := f.engine.Originate(other,
		[]CollateralHolding{{Asset: "STRWA", Amount: big.NewInt(200_000)}},
		big.NewInt(100_000), 12)
	if !errors.Is(err, ErrStaleOracleData) {
		t.Fatalf("expected stale oracle error, got %v", err)
	}
}

func TestRepaySourcesVaultYieldFirst(t *testing.T) {
	f := newFixture(t, fixedPolicyParams())
	f.mustDeposit(t, testAddr(0x01), 1_000_000)
	borrower := testAddr(0x02)
	funder := testAddr(0x05)

	v := vault.NewVault(f.ledger, "RWA", "STRWA", "USDC", testAddr(0xE0))
	v.SetPoolAddress(f.pool)
	v.SetNowFunc(func() uint64 { return f.clock })
	f.engine.RegisterVault("STRWA", v)

	// borrower stakes 300,000 RWA, posts 200,000 of the staked tokens
	if err := f.ledger.Mint("RWA", borrower, big.NewInt(300_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := v.Stake(borrower, big.NewInt(300_000)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	loan, err := f.engine.Originate(borrower,
		[]CollateralHolding{{Asset: "STRWA", Amount: big.NewInt(200_000)}},
		big.NewInt(100_000), 12)
	if err != nil {
		t.Fatalf("originate: %v", err)
	}
	if loan == nil {
		t.Fatalf("missing loan")
	}

	// fund 30,000 of yield; borrower's remaining 100,000 staked out of
	// 300,000 supply entitles them to 10,000
	if err := f.ledger.Mint("USDC", funder, big.NewInt(30_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := v.FundYield(funder, big.NewInt(30_000)); err != nil {
		t.Fatalf("fund yield: %v", err)
	}

	if err := f.engine.Repay(borrower, big.NewInt(50_000)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	// 10,000 came from yield, 40,000 from the borrower's 100,000 principal
	if got := f.ledger.BalanceOf("USDC", borrower); got.Cmp(big.NewInt(60_000)) != 0 {
		t.Fatalf("unexpected borrower balance: %s", got)
	}
	// 20,000 of yield remains; the borrower's share of it is 6,666
	if got := v.ClaimableYield(borrower); got.Cmp(big.NewInt(6_666)) != 0 {
		t.Fatalf("unexpected remaining claimable yield: %s", got)
	}
	loan, err = f.engine.GetLoan(borrower)
	if err != nil {
		t.Fatalf("get loan: %v", err)
	}
	if loan.OutstandingDebt.Cmp(big.NewInt(55_000)) != 0 {
		t.Fatalf("unexpected debt: %s", loan.OutstandingDebt)
	}
}

func TestRiskProfilePolicy(t *testing.T) {
	params := DefaultParams()
	params.RatePolicy = RatePolicyRiskProfile
	f := newFixture(t, params)
	f.mustDeposit(t, testAddr(0x01), 1_000_000)

	// no profile registered: high risk pricing
	highRisk := testAddr(0x02)
	loan := f.mustOriginate(t, highRisk, 200_000, 100_000, 12)
	if loan.InterestRateBps != params.HighRiskRateBps || loan.YieldShareBps != params.HighRiskYieldShareBps {
		t.Fatalf("expected high-risk terms, got %d/%d", loan.InterestRateBps, loan.YieldShareBps)
	}

	// a registered profile above the yield threshold earns the low-risk tier
	if err := f.engine.SetRiskProfile(&TokenRiskProfile{Asset: "STRWA", YieldAPRBps: 650}); err != nil {
		t.Fatalf("set risk profile: %v", err)
	}
	lowRisk := testAddr(0x03)
	loan = f.mustOriginate(t, lowRisk, 200_000, 100_000, 12)
	if loan.InterestRateBps != params.LowRiskRateBps || loan.YieldShareBps != params.LowRiskYieldShareBps {
		t.Fatalf("expected low-risk terms, got %d/%d", loan.InterestRateBps, loan.YieldShareBps)
	}

	// an expired profile falls back to high risk
	if err := f.engine.SetRiskProfile(&TokenRiskProfile{Asset: "STRWA", YieldAPRBps: 650, ExpiresAt: f.clock - 1}); err != nil {
		t.Fatalf("set risk profile: %v", err)
	}
	expired := testAddr(0x04)
	loan = f.mustOriginate(t, expired, 200_000, 100_000, 12)
	if loan.InterestRateBps != params.HighRiskRateBps {
		t.Fatalf("expected high-risk terms for expired profile, got %d", loan.InterestRateBps)
	}
}

func TestPausedModuleRejectsMutations(t *testing.T) {
	f := newFixture(t, fixedPolicyParams())
	f.engine.SetPauses(pauseMap{moduleName: true})
	lp := testAddr(0x01)
	if err := f.ledger.Mint("USDC", lp, big.NewInt(1_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := f.engine.Deposit(lp, big.NewInt(1_000)); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected pause rejection, got %v", err)
	}
}

type pauseMap map[string]bool

func (p pauseMap) IsPaused(module string) bool { return p[module] }
