package lending

import (
	"log/slog"
	"math/big"
	"sync"

	"rwalend/crypto"
	"rwalend/native/common"
	"rwalend/observability/metrics"
)

// Proof method names bound into authorization digests.
const (
	MethodDeposit          = "deposit"
	MethodWithdraw         = "withdraw"
	MethodOriginateLoan    = "originate_loan"
	MethodUpdateInterest   = "update_loan_interest"
	MethodRepayLoan        = "repay_loan"
	MethodCloseLoanEarly   = "close_loan_early"
	MethodAdjustCollateral = "adjust_collateral"
	MethodCheckWarning     = "check_warning"
	MethodLiquidateLoan    = "liquidate_loan"
	MethodSetRiskProfile   = "set_risk_profile"
	MethodSetRole          = "set_role"
)

// Module is the caller-facing surface of the pool. It serialises operations,
// verifies each mutation's authorization proof against the named principal,
// enforces per-signer nonce monotonicity and records logs and metrics around
// the engine. View operations require no proof.
type Module struct {
	mu      sync.Mutex
	engine  *Engine
	roles   *common.RoleRegistry
	nonces  map[string]uint64
	log     *slog.Logger
	metrics *metrics.LendingMetrics
}

// NewModule wires the facade around an engine and the shared role registry.
func NewModule(engine *Engine, roles *common.RoleRegistry, log *slog.Logger) *Module {
	if log == nil {
		log = slog.Default()
	}
	module := &Module{
		engine:  engine,
		roles:   roles,
		nonces:  make(map[string]uint64),
		log:     log.With("module", moduleName),
		metrics: metrics.Lending(),
	}
	if engine != nil {
		engine.SetRoles(roles)
	}
	return module
}

// authorize validates the proof for method on behalf of principal and consumes
// its nonce. A failed operation does not refund the nonce.
func (m *Module) authorize(proof crypto.Proof, method string, principal crypto.Address) error {
	if err := proof.Verify(moduleName, method); err != nil {
		return ErrUnauthorized
	}
	if !proof.Signer.Equal(principal) {
		return ErrUnauthorized
	}
	key := string(principal.Bytes())
	if proof.Nonce <= m.nonces[key] {
		return ErrUnauthorized
	}
	m.nonces[key] = proof.Nonce
	return nil
}

func (m *Module) fail(operation string, err error) error {
	m.metrics.IncOperationFailure(operation)
	m.log.Warn("operation rejected", "operation", operation, "error", err)
	return err
}

func (m *Module) publishLiquidity() {
	pool, err := m.engine.pool()
	if err != nil {
		return
	}
	total, _ := new(big.Float).SetInt(pool.Total).Float64()
	locked, _ := new(big.Float).SetInt(pool.Locked).Float64()
	m.metrics.SetLiquidity(total, locked)
}

// Deposit credits stable liquidity from the depositor.
func (m *Module) Deposit(proof crypto.Proof, depositor crypto.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(proof, MethodDeposit, depositor); err != nil {
		return m.fail(MethodDeposit, err)
	}
	if err := m.engine.Deposit(depositor, amount); err != nil {
		return m.fail(MethodDeposit, err)
	}
	m.metrics.ObserveDeposit()
	m.publishLiquidity()
	m.log.Info("deposit accepted", "depositor", depositor.String(), "amount", amount.String())
	return nil
}

// Withdraw releases stable liquidity back to the depositor.
func (m *Module) Withdraw(proof crypto.Proof, depositor crypto.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(proof, MethodWithdraw, depositor); err != nil {
		return m.fail(MethodWithdraw, err)
	}
	if err := m.engine.Withdraw(depositor, amount); err != nil {
		return m.fail(MethodWithdraw, err)
	}
	m.metrics.ObserveWithdrawal()
	m.publishLiquidity()
	m.log.Info("withdrawal paid", "depositor", depositor.String(), "amount", amount.String())
	return nil
}

// GetDeposit returns the depositor's record, or nil when absent.
func (m *Module) GetDeposit(depositor crypto.Address) (*LPDeposit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.GetDeposit(depositor)
}

// OriginateLoan opens a loan for the borrower.
func (m *Module) OriginateLoan(proof crypto.Proof, borrower crypto.Address, collateral []CollateralHolding, amount *big.Int, durationMonths uint64) (*Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(proof, MethodOriginateLoan, borrower); err != nil {
		return nil, m.fail(MethodOriginateLoan, err)
	}
	loan, err := m.engine.Originate(borrower, collateral, amount, durationMonths)
	if err != nil {
		return nil, m.fail(MethodOriginateLoan, err)
	}
	m.metrics.ObserveOrigination()
	m.publishLiquidity()
	m.log.Info("loan originated",
		"borrower", borrower.String(),
		"principal", loan.Principal.String(),
		"duration_months", durationMonths,
		"rate_bps", loan.InterestRateBps,
	)
	return loan, nil
}

// UpdateLoanInterest applies pending interest to the borrower's loan.
func (m *Module) UpdateLoanInterest(proof crypto.Proof, borrower crypto.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(proof, MethodUpdateInterest, borrower); err != nil {
		return nil, m.fail(MethodUpdateInterest, err)
	}
	interest, err := m.engine.UpdateLoanInterest(borrower)
	if err != nil {
		return nil, m.fail(MethodUpdateInterest, err)
	}
	return interest, nil
}

// RepayLoan applies a payment to the borrower's loan.
func (m *Module) RepayLoan(proof crypto.Proof, borrower crypto.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(proof, MethodRepayLoan, borrower); err != nil {
		return m.fail(MethodRepayLoan, err)
	}
	if err := m.engine.Repay(borrower, amount); err != nil {
		return m.fail(MethodRepayLoan, err)
	}
	m.metrics.ObserveRepayment()
	m.publishLiquidity()
	m.log.Info("repayment applied", "borrower", borrower.String(), "amount", amount.String())
	return nil
}

// CloseLoanEarly settles the loan ahead of maturity for a fee.
func (m *Module) CloseLoanEarly(proof crypto.Proof, borrower crypto.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(proof, MethodCloseLoanEarly, borrower); err != nil {
		return m.fail(MethodCloseLoanEarly, err)
	}
	if err := m.engine.CloseEarly(borrower); err != nil {
		return m.fail(MethodCloseLoanEarly, err)
	}
	m.metrics.ObserveRepayment()
	m.publishLiquidity()
	m.log.Info("loan closed early", "borrower", borrower.String())
	return nil
}

// AdjustCollateral applies a batch of collateral changes to the loan.
func (m *Module) AdjustCollateral(proof crypto.Proof, borrower crypto.Address, changes []CollateralChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(proof, MethodAdjustCollateral, borrower); err != nil {
		return m.fail(MethodAdjustCollateral, err)
	}
	if err := m.engine.AdjustCollateral(borrower, changes); err != nil {
		return m.fail(MethodAdjustCollateral, err)
	}
	m.log.Info("collateral adjusted", "borrower", borrower.String(), "changes", len(changes))
	return nil
}

// CheckWarning runs the escalation check for the borrower's loan. Monitoring
// is permissionless, so no proof is required.
func (m *Module) CheckWarning(borrower crypto.Address) (warned bool, eligible bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	warned, eligible, err = m.engine.CheckWarning(borrower)
	if err != nil {
		return false, false, m.fail(MethodCheckWarning, err)
	}
	if warned {
		m.metrics.ObserveWarning()
		m.log.Info("warning issued", "borrower", borrower.String())
	}
	return warned, eligible, nil
}

// LiquidateLoan seizes the borrower's loan on behalf of the liquidator.
func (m *Module) LiquidateLoan(proof crypto.Proof, caller, borrower crypto.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(proof, MethodLiquidateLoan, caller); err != nil {
		return nil, m.fail(MethodLiquidateLoan, err)
	}
	reward, err := m.engine.Liquidate(caller, borrower)
	if err != nil {
		return nil, m.fail(MethodLiquidateLoan, err)
	}
	m.metrics.ObserveLiquidation()
	m.publishLiquidity()
	m.log.Info("loan liquidated", "borrower", borrower.String(), "reward", reward.String())
	return reward, nil
}

// GetLoan returns the borrower's open loan.
func (m *Module) GetLoan(borrower crypto.Address) (*Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.GetLoan(borrower)
}

// GetTotalLiquidity returns the pool-wide liquidity counter.
func (m *Module) GetTotalLiquidity() (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.TotalLiquidity()
}

// GetAvailableLiquidity returns the unlocked liquidity available for loans.
func (m *Module) GetAvailableLiquidity() (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.AvailableLiquidity()
}

// SetRiskProfile registers a collateral asset's policy input. Admin only.
func (m *Module) SetRiskProfile(proof crypto.Proof, admin crypto.Address, profile *TokenRiskProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(proof, MethodSetRiskProfile, admin); err != nil {
		return m.fail(MethodSetRiskProfile, err)
	}
	if m.roles == nil || !m.roles.HasRole(common.RoleAdmin, admin) {
		return m.fail(MethodSetRiskProfile, ErrUnauthorized)
	}
	if err := m.engine.SetRiskProfile(profile); err != nil {
		return m.fail(MethodSetRiskProfile, err)
	}
	m.log.Info("risk profile updated", "asset", profile.Asset)
	return nil
}

// SetLiquidator grants the liquidator role to the address. Admin only.
func (m *Module) SetLiquidator(proof crypto.Proof, admin, liquidator crypto.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(proof, MethodSetRole, admin); err != nil {
		return m.fail(MethodSetRole, err)
	}
	if m.roles == nil || !m.roles.HasRole(common.RoleAdmin, admin) {
		return m.fail(MethodSetRole, ErrUnauthorized)
	}
	m.roles.Grant(common.RoleLiquidator, liquidator)
	m.log.Info("liquidator registered", "liquidator", liquidator.String())
	return nil
}
