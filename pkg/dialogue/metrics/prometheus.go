// Package metrics provides the ambient, optional observability collector a
// Dialogue reports dispatch activity to. It never influences protocol
// behavior.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jabolina/go-dialogue/pkg/dialogue/types"
)

// Prometheus is a types.Collector backed by client_golang counter and gauge
// vectors, labeled by packet kind / table name.
type Prometheus struct {
	dispatched *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	tableSize  *prometheus.GaugeVec
}

// NewPrometheus builds a Collector and registers its vectors against reg.
// Passing nil registers against the default registerer.
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	p := &Prometheus{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_packets_dispatched_total",
			Help:      "Packets routed to an owning table entry or published as fresh inbound, by kind.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_packets_dropped_total",
			Help:      "Packets silently dropped as stale, by kind.",
		}, []string{"kind"}),
		tableSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dialogue_table_entries",
			Help:      "Live entries per internal table.",
		}, []string{"table"}),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(p.dispatched, p.dropped, p.tableSize)
	return p
}

func (p *Prometheus) IncDispatched(kind types.PacketKind) {
	p.dispatched.WithLabelValues(kind.String()).Inc()
}

func (p *Prometheus) IncDropped(kind types.PacketKind) {
	p.dropped.WithLabelValues(kind.String()).Inc()
}

func (p *Prometheus) SetTableSize(table string, n int) {
	p.tableSize.WithLabelValues(table).Set(float64(n))
}

// Noop is the Collector used when a Dialogue is not configured with one.
type Noop struct{}

func (Noop) IncDispatched(types.PacketKind) {}
func (Noop) IncDropped(types.PacketKind)    {}
func (Noop) SetTableSize(string, int)       {}
