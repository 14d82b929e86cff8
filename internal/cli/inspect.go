package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/diskmap/pkg/diskmap"
	"github.com/calvinalkan/diskmap/pkg/fs"
)

// InspectCmd returns the inspect command.
func InspectCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("inspect", flag.ContinueOnError),
		Usage: "inspect",
		Short: "Show the contents of the slot files",
		Long: `Read every slot file in place and print its entries.

Slot files are not reset. Entries that lived in memory are gone once the
owning process exits and are not shown. Missing or corrupt slots are
reported as warnings.`,
		Exec: func(_ context.Context, o *IO, _ []string) error {
			return execInspect(a, o)
		},
	}
}

func execInspect(a *app, o *IO) error {
	fsys := fs.NewReal()
	dir := a.cfg.DirAbs

	exists, err := fsys.Exists(dir)
	if err != nil {
		return err
	}

	if !exists {
		return fmt.Errorf("storage directory not found: %s", dir)
	}

	lock, err := fs.NewLocker(fsys).TryLock(filepath.Join(dir, diskmap.LockFileName))
	if errors.Is(err, fs.ErrWouldBlock) {
		return fmt.Errorf("%w: %s", diskmap.ErrLocked, dir)
	}

	if err != nil {
		return err
	}

	defer func() { _ = lock.Close() }()

	store, err := diskmap.NewSlotStore(fsys, dir, a.cfg.SlotCount)
	if err != nil {
		return err
	}

	total := 0

	for i := range store.Count() {
		entries, err := store.ReadSlot(i)
		if err != nil {
			o.Warn(fmt.Sprintf("slot %d: %v", i, err), "delete the slot file or reopen without --preserve")

			continue
		}

		o.Printf("slot %d (%d) %s\n", i, len(entries), store.Path(i))

		keys := make([]string, 0, len(entries))
		for key := range entries {
			keys = append(keys, key)
		}

		slices.Sort(keys)

		for _, key := range keys {
			o.Printf("  %s=%s\n", key, entries[key])
		}

		total += len(entries)
	}

	o.Printf("total %d entries in %d slots (slot capacity %d)\n", total, store.Count(), a.cfg.MemoryCapacity)

	return nil
}
