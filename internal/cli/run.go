package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/diskmap/internal/config"
)

// errNoCommand is returned when only global flags were given.
var errNoCommand = errors.New("no command provided")

// globalFlags are parsed before the command name.
type globalFlags struct {
	set *flag.FlagSet

	workDir        string
	configPath     string
	dir            string
	memoryCapacity int
	slotCount      int
	preserve       bool
	logLevel       string
	help           bool
}

func newGlobalFlags() *globalFlags {
	g := &globalFlags{set: flag.NewFlagSet("diskmap", flag.ContinueOnError)}

	g.set.SetInterspersed(false)
	g.set.SetOutput(io.Discard)

	g.set.StringVarP(&g.workDir, "cwd", "C", "", "Run as if started in `dir`")
	g.set.StringVarP(&g.configPath, "config", "c", "", "Use specified config `file`")
	g.set.StringVar(&g.dir, "dir", "", "Storage directory for slot files")
	g.set.IntVar(&g.memoryCapacity, "memory-capacity", 0, "Entries held in memory and in each slot")
	g.set.IntVar(&g.slotCount, "slots", 0, "Number of slot files")
	g.set.BoolVar(&g.preserve, "preserve", false, "Keep slot files from a previous run")
	g.set.StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error, disabled)")
	g.set.BoolVarP(&g.help, "help", "h", false, "Show help")

	return g
}

// overrides returns the flags the user actually set.
func (g *globalFlags) overrides() config.Overrides {
	var o config.Overrides

	if g.set.Changed("dir") {
		o.Dir = &g.dir
	}

	if g.set.Changed("memory-capacity") {
		o.MemoryCapacity = &g.memoryCapacity
	}

	if g.set.Changed("slots") {
		o.SlotCount = &g.slotCount
	}

	if g.set.Changed("preserve") {
		o.Preserve = &g.preserve
	}

	if g.set.Changed("log-level") {
		o.LogLevel = &g.logLevel
	}

	return o
}

// app is the state shared by all commands of one invocation.
type app struct {
	cfg config.Config
	log zerolog.Logger
	in  io.Reader
	env map[string]string
}

// Run is the main entry point. Returns exit code.
//
// sigCh may be nil. A signal received on it cancels the running command.
func Run(in io.Reader, out, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globals := newGlobalFlags()

	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}

	err := globals.set.Parse(rest)
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, globals, nil)

		return 1
	}

	if len(rest) == 0 || globals.help {
		printUsage(out, globals, nil)

		return 0
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: globals.workDir,
		ConfigPath:      globals.configPath,
		Overrides:       globals.overrides(),
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, globals, nil)

		return 1
	}

	a := &app{
		cfg: cfg,
		log: zerolog.New(zerolog.ConsoleWriter{Out: errOut, NoColor: true}).
			Level(cfg.Level).
			With().Timestamp().Str("run", uuid.NewString()).
			Logger(),
		in:  in,
		env: env,
	}

	commands := a.commands()

	if globals.set.NArg() == 0 {
		fprintln(errOut, "error:", errNoCommand)
		printUsage(errOut, globals, commands)

		return 1
	}

	name := globals.set.Arg(0)

	var cmd *Command

	for _, c := range commands {
		if c.Name() == name {
			cmd = c

			break
		}
	}

	if cmd == nil {
		fprintln(errOut, "error: unknown command:", name)
		printUsage(errOut, globals, commands)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	o := NewIO(out, errOut)

	code := cmd.Run(ctx, o, globals.set.Args()[1:])
	if code != 0 {
		return code
	}

	return o.Finish()
}

func (a *app) commands() []*Command {
	return []*Command{
		DemoCmd(a),
		ReplCmd(a),
		InspectCmd(a),
		PrintConfigCmd(&a.cfg),
	}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, globals *globalFlags, commands []*Command) {
	if commands == nil {
		commands = (&app{}).commands()
	}

	fprintln(w, `diskmap - bounded key-value store that spills to slot files

Usage: diskmap [global flags] <command> [args]

Global flags:`)

	var buf strings.Builder

	globals.set.SetOutput(&buf)
	globals.set.PrintDefaults()
	globals.set.SetOutput(io.Discard)

	_, _ = io.WriteString(w, buf.String())

	fprintln(w)
	fprintln(w, "Commands:")

	for _, c := range commands {
		fprintln(w, c.HelpLine())
	}
}
