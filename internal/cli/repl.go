package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/diskmap/pkg/diskmap"
)

const replPrompt = "diskmap> "

var replCommands = []string{"put", "get", "rm", "dump", "len", "stats", "metrics", "help", "exit", "quit"}

// lineReader is satisfied by *liner.State and by [scanLines].
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// scanLines reads commands from a non-terminal input such as a pipe.
type scanLines struct {
	sc *bufio.Scanner
}

func (s *scanLines) Prompt(string) (string, error) {
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil {
			return "", err
		}

		return "", io.EOF
	}

	return s.sc.Text(), nil
}

func (*scanLines) AppendHistory(string) {}

func (*scanLines) Close() error { return nil }

// ReplCmd returns the repl command.
func ReplCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("repl", flag.ContinueOnError),
		Usage: "repl",
		Short: "Interactive shell over the store",
		Long: `Start an interactive shell. Commands:

  put <key> <value>   Store a value
  get <key>           Look up a key
  rm <key>            Remove a key
  dump                List every entry by tier
  len                 Count entries
  stats               Show per-tier counts
  metrics             Show Prometheus metrics
  help                Show this help
  exit | quit         Leave the shell

Reads commands line by line when stdin is not a terminal.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return execRepl(ctx, a, o)
		},
	}
}

type repl struct {
	m   *diskmap.Map
	reg *prometheus.Registry
	o   *IO
}

func execRepl(ctx context.Context, a *app, o *IO) error {
	reg := prometheus.NewRegistry()

	m, err := a.openMap(reg)
	if err != nil {
		return err
	}

	defer func() { _ = m.Close() }()

	lines, history := a.lineReader()
	defer func() { _ = lines.Close() }()

	r := &repl{m: m, reg: reg, o: o}

	for ctx.Err() == nil {
		line, err := lines.Prompt(replPrompt)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			break
		}

		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		lines.AppendHistory(line)

		if !r.exec(strings.Fields(line)) {
			break
		}
	}

	if history != nil {
		history()
	}

	return ctx.Err()
}

// lineReader picks liner for an interactive terminal and a plain scanner
// otherwise. The returned func, if non-nil, saves the history.
func (a *app) lineReader() (lineReader, func()) {
	if f, ok := a.in.(*os.File); !ok || f != os.Stdin || !liner.TerminalSupported() {
		in := a.in
		if in == nil {
			in = strings.NewReader("")
		}

		return &scanLines{sc: bufio.NewScanner(in)}, nil
	}

	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	state.SetCompleter(func(line string) []string {
		var out []string

		for _, c := range replCommands {
			if strings.HasPrefix(c, strings.ToLower(line)) {
				out = append(out, c)
			}
		}

		return out
	})

	path := ""
	if home := a.env["HOME"]; home != "" {
		path = filepath.Join(home, ".diskmap_history")
	}

	if path == "" {
		return state, nil
	}

	if f, err := os.Open(path); err == nil {
		_, _ = state.ReadHistory(f)
		_ = f.Close()
	}

	return state, func() {
		if f, err := os.Create(path); err == nil {
			_, _ = state.WriteHistory(f)
			_ = f.Close()
		}
	}
}

// exec runs one shell command. Returns false when the shell should exit.
func (r *repl) exec(args []string) bool {
	cmd, args := strings.ToLower(args[0]), args[1:]

	var err error

	switch cmd {
	case "put":
		if len(args) < 2 {
			r.o.Println("usage: put <key> <value>")

			return true
		}

		var (
			prev    string
			existed bool
		)

		prev, existed, err = r.m.Put(args[0], strings.Join(args[1:], " "))
		if err == nil && existed {
			r.o.Println("updated, was", prev)
		} else if err == nil {
			r.o.Println("ok")
		}
	case "get", "rm":
		if len(args) != 1 {
			r.o.Printf("usage: %s <key>\n", cmd)

			return true
		}

		fn := r.m.Get
		if cmd == "rm" {
			fn = r.m.Remove
		}

		var (
			value string
			found bool
		)

		value, found, err = fn(args[0])
		if err == nil {
			r.o.Println(formatLookup(value, found))
		}
	case "dump":
		err = printDump(r.o, r.m)
	case "len":
		var n int

		n, err = r.m.Len()
		if err == nil {
			r.o.Println(n)
		}
	case "stats":
		var stats diskmap.Stats

		stats, err = r.m.Stats()
		if err == nil {
			r.o.Printf("memory=%d slots=%v capacity=%d\n", stats.MemoryEntries, stats.SlotEntries, stats.Capacity)
		}
	case "metrics":
		err = r.printMetrics()
	case "help":
		r.o.Println("commands:", strings.Join(replCommands, ", "))
	case "exit", "quit":
		return false
	default:
		r.o.Printf("unknown command %q, try help\n", cmd)
	}

	if err != nil {
		r.o.ErrPrintln("error:", err)
	}

	return true
}

func (r *repl) printMetrics() error {
	families, err := r.reg.Gather()
	if err != nil {
		return err
	}

	var buf strings.Builder

	for _, mf := range families {
		_, err = expfmt.MetricFamilyToText(&buf, mf)
		if err != nil {
			return err
		}
	}

	r.o.Printf("%s", buf.String())

	return nil
}
