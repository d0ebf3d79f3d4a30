// Package metrics implements Prometheus metrics.
package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/eventbus"
)

var (
	// LinkUp is 1 while a port (port="0" for the aggregate) has link
	LinkUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swctl_link_up",
			Help: "Link state per port, 1 when up",
		},
		[]string{"interface", "port"},
	)

	// LinkTransitionsTotal counts observed link transitions
	LinkTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swctl_link_transitions_total",
			Help: "Total number of observed link transitions",
		},
		[]string{"interface", "port", "state"},
	)

	// FdbOperationsTotal counts forwarding database operations by outcome
	FdbOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swctl_fdb_operations_total",
			Help: "Total number of forwarding database operations",
		},
		[]string{"op", "result"},
	)

	// TailTagFramesTotal counts tapped frames per decoded source port
	TailTagFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swctl_tailtag_frames_total",
			Help: "Total number of tail-tagged frames decoded on the host interface",
		},
		[]string{"interface", "port"},
	)

	// TailTagErrorsTotal counts frames whose tag could not be decoded
	TailTagErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swctl_tailtag_errors_total",
			Help: "Total number of frames with an undecodable tail tag",
		},
		[]string{"interface", "reason"},
	)

	// HardwareTimeoutsTotal counts bounded hardware waits that gave up
	HardwareTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swctl_hardware_timeouts_total",
			Help: "Total number of hardware waits that exhausted their attempt bound",
		},
		[]string{"chip"},
	)

	// ControllerState tracks the controller lifecycle (0 uninitialized, 1 initializing, 2 ready)
	ControllerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swctl_controller_state",
			Help: "Controller lifecycle state",
		},
		[]string{"chip"},
	)

	// ReporterErrorsTotal counts link event reporter failures
	ReporterErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swctl_reporter_errors_total",
			Help: "Total number of reporter errors",
		},
		[]string{"reporter", "error_type"},
	)
)

var results = []struct {
	err   error
	label string
}{
	{core.ErrTableFull, "table_full"},
	{core.ErrNotFound, "not_found"},
	{core.ErrEndOfTable, "end_of_table"},
	{core.ErrInvalidEntry, "invalid_entry"},
	{core.ErrInvalidPort, "invalid_port"},
	{core.ErrUnsupported, "unsupported"},
	{core.ErrHardwareTimeout, "timeout"},
}

// Result maps an operation error to a bounded label value.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	for _, r := range results {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "error"
}

// ObserveFdb records one forwarding database operation.
func ObserveFdb(op string, err error) {
	FdbOperationsTotal.WithLabelValues(op, Result(err)).Inc()
}

// ObserveLink records a link transition. It is subscribed to the event bus.
func ObserveLink(ev eventbus.LinkEvent) error {
	port := strconv.Itoa(int(ev.Port))
	v := 0.0
	if ev.State == core.LinkUp {
		v = 1
	}
	LinkUp.WithLabelValues(ev.Interface, port).Set(v)
	LinkTransitionsTotal.WithLabelValues(ev.Interface, port, ev.State.String()).Inc()
	return nil
}
