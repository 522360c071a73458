package events

import "math/big"

const (
	// TypeLendingDeposit is emitted when an LP deposits stable liquidity.
	TypeLendingDeposit = "lending.lp.deposit"
	// TypeLendingWithdraw is emitted when an LP withdraws stable liquidity.
	TypeLendingWithdraw = "lending.lp.withdraw"
	// TypeLendingLoanOriginated is emitted when a new loan is created.
	TypeLendingLoanOriginated = "lending.loan.originated"
	// TypeLendingInterestAccrued is emitted when compound interest is applied
	// to a loan's outstanding debt.
	TypeLendingInterestAccrued = "lending.loan.interest"
	// TypeLendingRepaid is emitted for every repayment applied to a loan.
	TypeLendingRepaid = "lending.loan.repaid"
	// TypeLendingClosed is emitted when a loan record is removed after full
	// repayment, early closure or liquidation.
	TypeLendingClosed = "lending.loan.closed"
	// TypeLendingClosedEarly is emitted when a borrower pays the early closure
	// fee to exit before maturity.
	TypeLendingClosedEarly = "lending.loan.closed_early"
	// TypeLendingCollateralAdjusted is emitted after a successful collateral
	// add/remove batch.
	TypeLendingCollateralAdjusted = "lending.loan.collateral_adjusted"
	// TypeLendingWarning is emitted when a warning is issued to a borrower.
	TypeLendingWarning = "lending.loan.warning"
	// TypeLendingLiquidationEligible signals that a loan may be liquidated.
	// It does not itself move funds.
	TypeLendingLiquidationEligible = "lending.loan.liquidation_eligible"
	// TypeLendingLiquidated is emitted when a loan is seized and written off.
	TypeLendingLiquidated = "lending.loan.liquidated"
)

// LendingDeposit captures an LP deposit into the pool.
type LendingDeposit struct {
	Depositor [20]byte
	Amount    *big.Int
}

// EventType implements the Event interface.
func (LendingDeposit) EventType() string { return TypeLendingDeposit }

// LendingWithdraw captures an LP withdrawal from the pool.
type LendingWithdraw struct {
	Depositor [20]byte
	Amount    *big.Int
}

// EventType implements the Event interface.
func (LendingWithdraw) EventType() string { return TypeLendingWithdraw }

// LendingLoanOriginated captures the key terms frozen into a new loan.
type LendingLoanOriginated struct {
	Borrower        [20]byte
	Principal       *big.Int
	DurationMonths  uint32
	InterestRateBps uint64
	YieldShareBps   uint64
}

// EventType implements the Event interface.
func (LendingLoanOriginated) EventType() string { return TypeLendingLoanOriginated }

// LendingInterestAccrued captures one interest application.
type LendingInterestAccrued struct {
	Borrower [20]byte
	Interest *big.Int
	Months   uint64
}

// EventType implements the Event interface.
func (LendingInterestAccrued) EventType() string { return TypeLendingInterestAccrued }

// LendingRepaid captures a repayment split between LP share and principal
// reduction.
type LendingRepaid struct {
	Borrower    [20]byte
	Amount      *big.Int
	YieldPulled *big.Int
	LPShare     *big.Int
}

// EventType implements the Event interface.
func (LendingRepaid) EventType() string { return TypeLendingRepaid }

// LendingClosed captures the removal of a loan record.
type LendingClosed struct {
	Borrower [20]byte
}

// EventType implements the Event interface.
func (LendingClosed) EventType() string { return TypeLendingClosed }

// LendingClosedEarly captures the total payment made to exit early.
type LendingClosedEarly struct {
	Borrower     [20]byte
	TotalPayment *big.Int
	ClosureFee   *big.Int
}

// EventType implements the Event interface.
func (LendingClosedEarly) EventType() string { return TypeLendingClosedEarly }

// LendingCollateralAdjusted captures a successful collateral adjustment batch.
type LendingCollateralAdjusted struct {
	Borrower [20]byte
	Changes  int
}

// EventType implements the Event interface.
func (LendingCollateralAdjusted) EventType() string { return TypeLendingCollateralAdjusted }

// LendingWarning captures a warning issuance and the penalty applied.
type LendingWarning struct {
	Borrower       [20]byte
	WarningsIssued uint8
	Penalty        *big.Int
}

// EventType implements the Event interface.
func (LendingWarning) EventType() string { return TypeLendingWarning }

// LendingLiquidationEligible flags a loan for the liquidation bot.
type LendingLiquidationEligible struct {
	Borrower       [20]byte
	DebtRatio      *big.Int
	WarningsIssued uint8
}

// EventType implements the Event interface.
func (LendingLiquidationEligible) EventType() string { return TypeLendingLiquidationEligible }

// LendingLiquidated captures the outcome of a seizure. Shortfall is the debt
// that could not be recovered from collateral and is borne by the pool.
type LendingLiquidated struct {
	Borrower  [20]byte
	Debt      *big.Int
	Recovered *big.Int
	Reward    *big.Int
	Shortfall *big.Int
}

// EventType implements the Event interface.
func (LendingLiquidated) EventType() string { return TypeLendingLiquidated }
