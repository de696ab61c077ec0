package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "gym_snapshot"

// Metrics records snapshot operations in its own Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	rows         *prometheus.CounterVec
	snapshotSize prometheus.Gauge
	denied       *prometheus.CounterVec
}

// NewMetrics creates the snapshot metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "Snapshot operations by operation and outcome.",
		}, []string{"operation", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of snapshot operations.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 120},
		}, []string{"operation"}),
		rows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "entity_rows_total",
			Help:      "Rows read, wiped or inserted per entity set.",
		}, []string{"entity_set", "phase"}),
		snapshotSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_snapshot_size_bytes",
			Help:      "Stored size of the most recently saved snapshot.",
		}),
		denied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "access_denied_total",
			Help:      "Calls refused by the access gate.",
		}, []string{"action"}),
	}
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveOperation counts one finished operation. The result label is
// "success" or the error type.
func (m *Metrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = string(ErrorTypeOf(err))
		if result == "" {
			result = "error"
		}
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveDenied counts a call refused by the access gate.
func (m *Metrics) ObserveDenied(action Action) {
	if m == nil {
		return
	}
	m.denied.WithLabelValues(string(action)).Inc()
}

// ObserveSnapshotSize records the stored size of a saved snapshot.
func (m *Metrics) ObserveSnapshotSize(size int64) {
	if m == nil {
		return
	}
	m.snapshotSize.Set(float64(size))
}

// ObserveRows adds to the row counter of one entity set and phase.
func (m *Metrics) ObserveRows(entitySet, phase string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.rows.WithLabelValues(entitySet, phase).Add(float64(n))
}

// OpsDecorator wraps registry operations so every read, wipe and insert is
// counted. Pass it to WithOpsDecorator.
func (m *Metrics) OpsDecorator() func(name string, ops EntityOps) EntityOps {
	return func(name string, ops EntityOps) EntityOps {
		return &meteredOps{name: name, next: ops, metrics: m}
	}
}

// WriteTextfile writes every metric in the node exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

type meteredOps struct {
	name    string
	next    EntityOps
	metrics *Metrics
}

func (o *meteredOps) Read(ctx context.Context, q Querier, tenantID string) ([]Record, error) {
	records, err := o.next.Read(ctx, q, tenantID)
	if err == nil {
		o.metrics.ObserveRows(o.name, "read", int64(len(records)))
	}
	return records, err
}

func (o *meteredOps) DeleteAll(ctx context.Context, q Querier) (int64, error) {
	n, err := o.next.DeleteAll(ctx, q)
	if err == nil {
		o.metrics.ObserveRows(o.name, "wipe", n)
	}
	return n, err
}

func (o *meteredOps) BulkInsert(ctx context.Context, q Querier, records []Record) (int64, error) {
	n, err := o.next.BulkInsert(ctx, q, records)
	if err == nil {
		o.metrics.ObserveRows(o.name, "insert", n)
	}
	return n, err
}
