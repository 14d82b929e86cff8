package cli

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/calvinalkan/diskmap/pkg/diskmap"
)

// openMap opens the configured store. reg may be nil.
func (a *app) openMap(reg prometheus.Registerer) (*diskmap.Map, error) {
	m, err := diskmap.Open(diskmap.Options{
		Dir:            a.cfg.DirAbs,
		MemoryCapacity: a.cfg.MemoryCapacity,
		SlotCount:      a.cfg.SlotCount,
		Preserve:       a.cfg.Preserve,
		Logger:         &a.log,
		Registerer:     reg,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", a.cfg.DirAbs, err)
	}

	return m, nil
}

// printDump writes every entry grouped by tier.
func printDump(o *IO, m *diskmap.Map) error {
	// Stats and Dump run under separate lock acquisitions; callers hold the
	// only reference to m, so the counts match the dump.
	stats, err := m.Stats()
	if err != nil {
		return err
	}

	entries, err := m.Dump()
	if err != nil {
		return err
	}

	o.Printf("memory (%d):\n", stats.MemoryEntries)

	for _, e := range entries[:stats.MemoryEntries] {
		o.Printf("  %s=%s\n", e.Key, e.Value)
	}

	entries = entries[stats.MemoryEntries:]

	for i, n := range stats.SlotEntries {
		o.Printf("slot %d (%d):\n", i, n)

		for _, e := range entries[:n] {
			o.Printf("  %s=%s\n", e.Key, e.Value)
		}

		entries = entries[n:]
	}

	return nil
}

func formatLookup(value string, found bool) string {
	if !found {
		return "(missing)"
	}

	return value
}
