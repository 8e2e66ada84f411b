package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// IsolationMetrics tracks vault provisioning, vault operations, trader
// conversions and ledger batches.
type IsolationMetrics struct {
	vaultsCreated   *prometheus.CounterVec
	vaultOperations *prometheus.CounterVec
	exchanges       *prometheus.CounterVec
	exchangeVolume  *prometheus.CounterVec
	ledgerOperate   *prometheus.CounterVec
	wrappedSupply   *prometheus.GaugeVec
}

var (
	isolationOnce     sync.Once
	isolationRegistry *IsolationMetrics
)

// Isolation returns the lazily registered isolation metrics.
func Isolation() *IsolationMetrics {
	isolationOnce.Do(func() {
		isolationRegistry = &IsolationMetrics{
			vaultsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "isovault",
				Name:      "vaults_created_total",
				Help:      "Count of vaults created per factory.",
			}, []string{"factory"}),
			vaultOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "isovault",
				Name:      "vault_operations_total",
				Help:      "Count of vault operations by kind and outcome.",
			}, []string{"operation", "outcome"}),
			exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "isovault",
				Name:      "trader_exchanges_total",
				Help:      "Count of trader conversions by direction and outcome.",
			}, []string{"direction", "outcome"}),
			exchangeVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "isovault",
				Name:      "trader_exchange_volume",
				Help:      "Cumulative input volume converted by traders, in whole token units.",
			}, []string{"direction"}),
			ledgerOperate: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "isovault",
				Name:      "ledger_operations_total",
				Help:      "Count of ledger operate batches by outcome.",
			}, []string{"outcome"}),
			wrappedSupply: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "isovault",
				Name:      "wrapped_supply",
				Help:      "Wrapped token supply held in ledger custody per factory, in whole token units.",
			}, []string{"factory"}),
		}
		prometheus.MustRegister(
			isolationRegistry.vaultsCreated,
			isolationRegistry.vaultOperations,
			isolationRegistry.exchanges,
			isolationRegistry.exchangeVolume,
			isolationRegistry.ledgerOperate,
			isolationRegistry.wrappedSupply,
		)
	})
	return isolationRegistry
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *IsolationMetrics) ObserveVaultCreated(factory string) {
	if m == nil {
		return
	}
	if factory == "" {
		factory = "unknown"
	}
	m.vaultsCreated.WithLabelValues(factory).Inc()
}

func (m *IsolationMetrics) ObserveVaultOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.vaultOperations.WithLabelValues(operation, outcome(err)).Inc()
}

// ObserveExchange records a trader conversion. amount is in base units with
// 18 decimals.
func (m *IsolationMetrics) ObserveExchange(direction string, amount *big.Int, err error) {
	if m == nil {
		return
	}
	m.exchanges.WithLabelValues(direction, outcome(err)).Inc()
	if err == nil && amount != nil && amount.Sign() > 0 {
		m.exchangeVolume.WithLabelValues(direction).Add(toUnits(amount))
	}
}

func (m *IsolationMetrics) ObserveLedgerOperate(err error) {
	if m == nil {
		return
	}
	m.ledgerOperate.WithLabelValues(outcome(err)).Inc()
}

func (m *IsolationMetrics) SetWrappedSupply(factory string, supply *big.Int) {
	if m == nil || supply == nil {
		return
	}
	m.wrappedSupply.WithLabelValues(factory).Set(toUnits(supply))
}

var unitScale = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

func toUnits(amount *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), unitScale).Float64()
	return f
}
