package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type LendingMetrics struct {
	deposits          prometheus.Counter
	withdrawals       prometheus.Counter
	originations      prometheus.Counter
	repayments        prometheus.Counter
	warnings          prometheus.Counter
	liquidations      prometheus.Counter
	operationFailures *prometheus.CounterVec
	totalLiquidity    prometheus.Gauge
	lockedLiquidity   prometheus.Gauge
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			deposits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lending_deposits_total",
				Help: "Count of successful LP deposits.",
			}),
			withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lending_withdrawals_total",
				Help: "Count of successful LP withdrawals.",
			}),
			originations: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lending_loans_originated_total",
				Help: "Count of loans opened.",
			}),
			repayments: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lending_repayments_total",
				Help: "Count of repayments applied, including early closures.",
			}),
			warnings: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lending_warnings_issued_total",
				Help: "Count of under-collateralization warnings issued.",
			}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lending_liquidations_total",
				Help: "Count of loans seized and written off.",
			}),
			operationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_operation_failures_total",
				Help: "Count of rejected operations by operation name.",
			}, []string{"operation"}),
			totalLiquidity: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lending_pool_total_liquidity",
				Help: "Current pool-wide stable liquidity counter.",
			}),
			lockedLiquidity: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lending_pool_locked_liquidity",
				Help: "Stable liquidity reserved by outstanding loan principals.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.deposits,
			lendingRegistry.withdrawals,
			lendingRegistry.originations,
			lendingRegistry.repayments,
			lendingRegistry.warnings,
			lendingRegistry.liquidations,
			lendingRegistry.operationFailures,
			lendingRegistry.totalLiquidity,
			lendingRegistry.lockedLiquidity,
		)
	})
	return lendingRegistry
}

func (m *LendingMetrics) ObserveDeposit() {
	if m == nil {
		return
	}
	m.deposits.Inc()
}

func (m *LendingMetrics) ObserveWithdrawal() {
	if m == nil {
		return
	}
	m.withdrawals.Inc()
}

func (m *LendingMetrics) ObserveOrigination() {
	if m == nil {
		return
	}
	m.originations.Inc()
}

func (m *LendingMetrics) ObserveRepayment() {
	if m == nil {
		return
	}
	m.repayments.Inc()
}

func (m *LendingMetrics) ObserveWarning() {
	if m == nil {
		return
	}
	m.warnings.Inc()
}

func (m *LendingMetrics) ObserveLiquidation() {
	if m == nil {
		return
	}
	m.liquidations.Inc()
}

func (m *LendingMetrics) IncOperationFailure(operation string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	m.operationFailures.WithLabelValues(operation).Inc()
}

func (m *LendingMetrics) SetLiquidity(total, locked float64) {
	if m == nil {
		return
	}
	m.totalLiquidity.Set(total)
	m.lockedLiquidity.Set(locked)
}
