package cli_test

import (
	"os"
	"testing"

	"github.com/calvinalkan/diskmap/internal/cli"
	"github.com/calvinalkan/diskmap/pkg/diskmap"
)

func Test_Demo_Fills_Store_Until_Capacity_Error_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run("demo")

	if got, want := exitCode, 0; got != want {
		t.Fatalf("exitCode=%d, want=%d\nstderr: %s", got, want, stderr)
	}

	cli.AssertContains(t, stdout, "# put 1..69 (capacity 60)")
	cli.AssertContains(t, stdout, `put 61: diskmap: capacity exceeded: cannot add "61" = "61"`)
	cli.AssertContains(t, stdout, "stored 60 entries")
	cli.AssertContains(t, stdout, "memory (10):")
	cli.AssertContains(t, stdout, "memory (9):")
	cli.AssertContains(t, stdout, "get 1 -> 1")
	cli.AssertContains(t, stdout, "get 21 -> 21")
	cli.AssertContains(t, stdout, "get 61 -> (missing)")
	cli.AssertContains(t, stdout, "remove 21 -> 21")
	cli.AssertContains(t, stdout, "get 21 -> (missing)")
	cli.AssertNotContains(t, stdout, "put 62")

	// Warn-level log line from the store.
	cli.AssertContains(t, stderr, "capacity exceeded")

	for i := range 5 {
		if _, err := os.Stat(diskmap.SlotPath(c.StoreDir(), i)); err != nil {
			t.Errorf("slot %d: %v", i, err)
		}
	}
}

func Test_Demo_Respects_Count_And_Size_Flags_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("--memory-capacity=2", "--slots=1", "demo", "--count", "4")

	cli.AssertContains(t, stdout, "# put 1..3 (capacity 4)")
	cli.AssertContains(t, stdout, "stored 3 entries")
	cli.AssertNotContains(t, stdout, "capacity exceeded")
	cli.AssertContains(t, stdout, "slot 0 (1):")
}
