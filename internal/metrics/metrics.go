// Package metrics exposes Prometheus instrumentation for anvil operations.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jbweber/anvil/internal/errdefs"
)

const namespace = "anvil"

// Recorder records operation outcomes. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	commands   *prometheus.CounterVec
	rollbacks  prometheus.Counter
}

// New creates a Recorder and registers its collectors with reg.
// A nil reg leaves the collectors unregistered.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Lifecycle operations by name and result.",
		}, []string{"operation", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Lifecycle operation latency.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_commands_total",
			Help:      "External tool invocations by command and result.",
		}, []string{"command", "result"}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "volume_rollbacks_total",
			Help:      "Volumes deleted after a failed domain creation.",
		}),
	}
	if reg != nil {
		reg.MustRegister(r.operations, r.duration, r.commands, r.rollbacks)
	}
	return r
}

// ObserveOperation records one completed operation.
func (r *Recorder) ObserveOperation(op string, start time.Time, err error) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(op, result(err)).Inc()
	r.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// ObserveCommand records one external tool invocation.
func (r *Recorder) ObserveCommand(name string, err error) {
	if r == nil {
		return
	}
	r.commands.WithLabelValues(name, result(err)).Inc()
}

// VolumeRolledBack records a volume deleted during create rollback.
func (r *Recorder) VolumeRolledBack() {
	if r == nil {
		return
	}
	r.rollbacks.Inc()
}

func result(err error) string {
	if err == nil {
		return "success"
	}
	kind := errdefs.KindOf(err)
	if kind == "" {
		return "error"
	}
	return strings.ReplaceAll(string(kind), " ", "_")
}
