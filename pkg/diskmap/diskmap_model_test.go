package diskmap_test

import (
	"errors"
	"math/rand/v2"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/calvinalkan/diskmap/pkg/diskmap"
	"github.com/calvinalkan/diskmap/pkg/diskmap/model"
)

// Test_Map_Matches_Model_For_Random_Operations drives the real map and the
// model with the same operations and compares every observable result.
func Test_Map_Matches_Model_For_Random_Operations(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		memory, slots int
	}{
		{memory: 1, slots: 1},
		{memory: 2, slots: 2},
		{memory: 3, slots: 4},
		{memory: 2, slots: 5},
	} {
		name := strconv.Itoa(tt.memory) + "x" + strconv.Itoa(tt.slots)

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			for seed := range uint64(5) {
				runModelSeed(t, seed, tt.memory, tt.slots)
			}
		})
	}
}

func runModelSeed(t *testing.T, seed uint64, memory, slots int) {
	t.Helper()

	rng := rand.New(rand.NewPCG(seed, uint64(memory*100+slots)))
	dm := openMap(t, diskmap.Options{MemoryCapacity: memory, SlotCount: slots})
	want := model.New(memory, slots)

	// A keyspace a bit larger than capacity exercises overwrites,
	// removals of absent keys and capacity errors.
	keyspace := dm.Capacity() + 3

	for step := range 300 {
		key := "k" + strconv.Itoa(rng.IntN(keyspace))
		value := "v" + strconv.Itoa(step)

		switch op := rng.IntN(10); {
		case op < 5:
			gotPrev, gotExisted, gotErr := dm.Put(key, value)
			wantPrev, wantExisted, wantErr := want.Put(key, value)

			if gotPrev != wantPrev || gotExisted != wantExisted || errors.Is(gotErr, diskmap.ErrCapacityExceeded) != errors.Is(wantErr, diskmap.ErrCapacityExceeded) {
				t.Fatalf("seed %d step %d Put(%q)=%q, %v, %v, model=%q, %v, %v",
					seed, step, key, gotPrev, gotExisted, gotErr, wantPrev, wantExisted, wantErr)
			}

			if gotErr != nil && !errors.Is(gotErr, diskmap.ErrCapacityExceeded) {
				t.Fatalf("seed %d step %d Put(%q): %v", seed, step, key, gotErr)
			}
		case op < 8:
			gotValue, gotFound := mustGet(t, dm, key)
			wantValue, wantFound := want.Get(key)

			if gotValue != wantValue || gotFound != wantFound {
				t.Fatalf("seed %d step %d Get(%q)=%q, %v, model=%q, %v",
					seed, step, key, gotValue, gotFound, wantValue, wantFound)
			}
		default:
			gotPrev, gotFound, err := dm.Remove(key)
			if err != nil {
				t.Fatalf("seed %d step %d Remove(%q): %v", seed, step, key, err)
			}

			wantPrev, wantFound := want.Remove(key)

			if gotPrev != wantPrev || gotFound != wantFound {
				t.Fatalf("seed %d step %d Remove(%q)=%q, %v, model=%q, %v",
					seed, step, key, gotPrev, gotFound, wantPrev, wantFound)
			}
		}

		stats, err := dm.Stats()
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}

		if diff := cmp.Diff(want.SlotLens(), stats.SlotEntries); diff != "" {
			t.Fatalf("seed %d step %d slot lengths (-model +real):\n%s", seed, step, diff)
		}

		if stats.MemoryEntries > memory {
			t.Fatalf("seed %d step %d memory holds %d entries, capacity %d", seed, step, stats.MemoryEntries, memory)
		}
	}

	dump, err := dm.Dump()
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}

	if diff := cmp.Diff(want.Dump(), dump); diff != "" {
		t.Fatalf("seed %d Dump (-model +real):\n%s", seed, diff)
	}

	seen := make(map[string]bool, len(dump))
	for _, e := range dump {
		if seen[e.Key] {
			t.Fatalf("seed %d key %q stored twice", seed, e.Key)
		}

		seen[e.Key] = true
	}
}

func Test_Map_Exports_Operation_Metrics_When_Registerer_Is_Set(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	opts := diskmap.Options{Dir: t.TempDir(), MemoryCapacity: 1, SlotCount: 1, Registerer: reg}

	m, err := diskmap.Open(opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	mustPut(t, m, "a", "1")
	mustPut(t, m, "b", "2")

	if _, _, err := m.Put("c", "3"); !errors.Is(err, diskmap.ErrCapacityExceeded) {
		t.Fatalf("Put(c): err=%v, want %v", err, diskmap.ErrCapacityExceeded)
	}

	mustGet(t, m, "b")
	mustGet(t, m, "missing")

	const want = `
# HELP diskmap_entries Entries currently stored, by tier.
# TYPE diskmap_entries gauge
diskmap_entries{tier="memory"} 1
diskmap_entries{tier="slots"} 1
# HELP diskmap_operations_total Map operations by operation and result.
# TYPE diskmap_operations_total counter
diskmap_operations_total{op="get",result="miss"} 1
diskmap_operations_total{op="get",result="ok"} 1
diskmap_operations_total{op="put",result="capacity_exceeded"} 1
diskmap_operations_total{op="put",result="ok"} 2
`

	err = testutil.GatherAndCompare(reg, strings.NewReader(want), "diskmap_operations_total", "diskmap_entries")
	if err != nil {
		t.Fatalf("metrics mismatch: %v", err)
	}

	if n, err := testutil.GatherAndCount(reg, "diskmap_slot_writes_total"); err != nil || n != 1 {
		t.Fatalf("GatherAndCount(slot writes)=%d, %v, want 1, nil", n, err)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Close unregisters, so the registry can back a new map.
	reopened, err := diskmap.Open(opts)
	if err != nil {
		t.Fatalf("Open after Close: %v", err)
	}

	_ = reopened.Close()
}
