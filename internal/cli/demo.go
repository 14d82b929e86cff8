package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/diskmap/pkg/diskmap"
)

const demoDefaultCount = 70

// demoProbeKeys are looked up and removed after the fill.
var demoProbeKeys = []string{"1", "21", "61"}

// DemoCmd returns the demo command.
func DemoCmd(a *app) *Command {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	count := fs.IntP("count", "n", demoDefaultCount, "Insert keys 1..`N`-1")

	return &Command{
		Flags: fs,
		Usage: "demo [flags]",
		Short: "Fill the store until it overflows, then read and remove",
		Long: `Insert keys "1".."N-1" (value = key) until the store is full, dump it,
look up and remove keys 1, 21 and 61, then dump again.

With the default 10 entries per tier and 5 slots the store holds 60
entries, so the put of key 61 fails with a capacity error.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return execDemo(ctx, a, o, *count)
		},
	}
}

func execDemo(ctx context.Context, a *app, o *IO, count int) error {
	m, err := a.openMap(nil)
	if err != nil {
		return err
	}

	defer func() { _ = m.Close() }()

	o.Printf("# put 1..%d (capacity %d)\n", count-1, m.Capacity())

	stored := 0

	for i := 1; i < count; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		key := strconv.Itoa(i)

		_, _, err := m.Put(key, key)
		if errors.Is(err, diskmap.ErrCapacityExceeded) {
			o.Printf("put %s: %v\n", key, err)

			break
		}

		if err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}

		stored++
	}

	o.Printf("stored %d entries\n", stored)
	o.Println()
	o.Println("# dump")

	err = printDump(o, m)
	if err != nil {
		return err
	}

	o.Println()
	o.Println("# get")

	err = demoLookup(o, "get", demoProbeKeys, m.Get)
	if err != nil {
		return err
	}

	o.Println()
	o.Println("# remove, then get")

	err = demoLookup(o, "remove", demoProbeKeys, m.Remove)
	if err != nil {
		return err
	}

	err = demoLookup(o, "get", demoProbeKeys, m.Get)
	if err != nil {
		return err
	}

	o.Println()
	o.Println("# dump")

	return printDump(o, m)
}

func demoLookup(o *IO, verb string, keys []string, fn func(string) (string, bool, error)) error {
	for _, key := range keys {
		value, found, err := fn(key)
		if err != nil {
			return fmt.Errorf("%s %s: %w", verb, key, err)
		}

		o.Printf("%s %s -> %s\n", verb, key, formatLookup(value, found))
	}

	return nil
}
