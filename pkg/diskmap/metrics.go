package diskmap

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation names used as the "op" label.
const (
	opPut    = "put"
	opGet    = "get"
	opRemove = "remove"
	opDump   = "dump"
)

// Results used as the "result" label.
const (
	resultOK       = "ok"
	resultMiss     = "miss"
	resultCapacity = "capacity_exceeded"
	resultError    = "error"
)

// Tiers used as the "tier" label.
const (
	tierMemory = "memory"
	tierSlots  = "slots"
)

// metrics holds the Prometheus collectors for one [Map].
type metrics struct {
	ops     *prometheus.CounterVec
	entries *prometheus.GaugeVec
	reads   prometheus.CounterFunc
	writes  prometheus.CounterFunc
}

func newMetrics(reg prometheus.Registerer, slots *SlotStore) (*metrics, error) {
	m := &metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "diskmap_operations_total",
			Help: "Map operations by operation and result.",
		}, []string{"op", "result"}),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "diskmap_entries",
			Help: "Entries currently stored, by tier.",
		}, []string{"tier"}),
		reads: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "diskmap_slot_reads_total",
			Help: "Slot files read and decoded.",
		}, func() float64 { return float64(slots.Reads()) }),
		writes: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "diskmap_slot_writes_total",
			Help: "Slot files written.",
		}, func() float64 { return float64(slots.Writes()) }),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.ops, m.entries, m.reads, m.writes} {
		err := reg.Register(c)
		if err != nil {
			m.unregister(reg)

			return nil, fmt.Errorf("registering metrics: %w: %w", err, ErrInvalidInput)
		}
	}

	return m, nil
}

// unregister removes the collectors from reg. Used on Close and on a failed
// Open so the same registry can be reused.
func (m *metrics) unregister(reg prometheus.Registerer) {
	if reg == nil {
		return
	}

	reg.Unregister(m.ops)
	reg.Unregister(m.entries)
	reg.Unregister(m.reads)
	reg.Unregister(m.writes)
}

func (m *metrics) observe(op string, found bool, err error) {
	result := resultOK

	switch {
	case errors.Is(err, ErrCapacityExceeded):
		result = resultCapacity
	case err != nil:
		result = resultError
	case !found && (op == opGet || op == opRemove):
		result = resultMiss
	}

	m.ops.WithLabelValues(op, result).Inc()
}

func (m *metrics) setEntries(memory, slots int) {
	m.entries.WithLabelValues(tierMemory).Set(float64(memory))
	m.entries.WithLabelValues(tierSlots).Set(float64(slots))
}
