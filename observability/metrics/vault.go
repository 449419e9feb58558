package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// VaultMetrics exposes the pool state and operation flow of the vault.
type VaultMetrics struct {
	totalAssets     prometheus.Gauge
	effectiveAssets prometheus.Gauge
	unvested        prometheus.Gauge
	shareSupply     prometheus.Gauge
	operations      *prometheus.CounterVec
	assetsMoved     *prometheus.CounterVec
	rejections      *prometheus.CounterVec
}

var (
	vaultOnce     sync.Once
	vaultRegistry *VaultMetrics
)

// Vault returns the process-wide vault metrics.
func Vault() *VaultMetrics {
	vaultOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			totalAssets: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vault_total_assets",
				Help: "Base assets held by the vault including unvested rewards.",
			}),
			effectiveAssets: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vault_effective_assets",
				Help: "Base assets backing outstanding shares.",
			}),
			unvested: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vault_unvested_assets",
				Help: "Portion of the latest reward still locked.",
			}),
			shareSupply: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vault_share_supply",
				Help: "Outstanding vault shares.",
			}),
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_operations_total",
				Help: "Completed vault operations by kind.",
			}, []string{"operation"}),
			assetsMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_assets_moved_total",
				Help: "Base assets moved by operation kind.",
			}, []string{"operation"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_rejections_total",
				Help: "Rejected vault operations by kind and error class.",
			}, []string{"operation", "class"}),
		}
		prometheus.MustRegister(
			vaultRegistry.totalAssets,
			vaultRegistry.effectiveAssets,
			vaultRegistry.unvested,
			vaultRegistry.shareSupply,
			vaultRegistry.operations,
			vaultRegistry.assetsMoved,
			vaultRegistry.rejections,
		)
	})
	return vaultRegistry
}

// SetPool publishes a snapshot of the pool.
func (m *VaultMetrics) SetPool(totalAssets, effectiveAssets, unvested, shareSupply uint64) {
	if m == nil {
		return
	}
	m.totalAssets.Set(float64(totalAssets))
	m.effectiveAssets.Set(float64(effectiveAssets))
	m.unvested.Set(float64(unvested))
	m.shareSupply.Set(float64(shareSupply))
}

// ObserveOperation counts a completed operation and the assets it moved.
func (m *VaultMetrics) ObserveOperation(operation string, assets uint64) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	m.operations.WithLabelValues(operation).Inc()
	if assets > 0 {
		m.assetsMoved.WithLabelValues(operation).Add(float64(assets))
	}
}

// ObserveRejection counts a failed operation by error class.
func (m *VaultMetrics) ObserveRejection(operation, class string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	if class == "" {
		class = "other"
	}
	m.rejections.WithLabelValues(operation, class).Inc()
}
