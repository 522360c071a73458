package lending

import "errors"

var (
	// ErrInvalidAmount indicates a zero or negative amount was supplied.
	ErrInvalidAmount = errors.New("lending engine: amount must be positive")
	// ErrDuplicateLoan indicates the borrower already has an open loan.
	ErrDuplicateLoan = errors.New("lending engine: borrower already has an open loan")
	// ErrInvalidDuration indicates the requested term is outside the allowed
	// month range.
	ErrInvalidDuration = errors.New("lending engine: loan duration outside allowed range")
	// ErrNoCollateral indicates origination was attempted without collateral.
	ErrNoCollateral = errors.New("lending engine: at least one collateral entry required")
	// ErrInsufficientCollateral indicates a health-floor failure or an attempt
	// to remove more collateral than is held.
	ErrInsufficientCollateral = errors.New("lending engine: insufficient collateral")
	// ErrInsufficientPoolLiquidity indicates the pool cannot cover the request.
	ErrInsufficientPoolLiquidity = errors.New("lending engine: insufficient pool liquidity")
	// ErrInsufficientAvailableBalance indicates the depositor's available
	// balance cannot cover the withdrawal.
	ErrInsufficientAvailableBalance = errors.New("lending engine: insufficient available balance")
	// ErrLoanNotFound indicates no open loan exists for the borrower.
	ErrLoanNotFound = errors.New("lending engine: loan not found")
	// ErrStaleOracleData indicates a collateral price was older than the
	// freshness window.
	ErrStaleOracleData = errors.New("lending engine: stale oracle data")
	// ErrLiquidationThresholdNotMet indicates the loan is still above the
	// seizure threshold.
	ErrLiquidationThresholdNotMet = errors.New("lending engine: liquidation threshold not met")
	// ErrUnauthorized indicates the caller lacks the role required for the
	// operation.
	ErrUnauthorized = errors.New("lending engine: unauthorized")
	// ErrNotReady indicates the engine is missing a required collaborator.
	ErrNotReady = errors.New("lending engine: not initialised")
)
