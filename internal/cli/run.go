// Package cli implements the jifdb command line.
package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/jifdb/internal/config"
)

var errUnknownCommand = errors.New("unknown command")

// Run is the main entry point. Returns exit code.
//
// args includes the program name. sigCh may be nil; a signal on it cancels
// the running command's context (used by serve and shell).
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	o := NewIO(in, out, errOut)

	globals := flag.NewFlagSet("jifdb", flag.ContinueOnError)
	globals.SetInterspersed(false)
	globals.SetOutput(io.Discard)

	workDir := globals.StringP("cwd", "C", "", "Run as if started in `dir`")
	configPath := globals.StringP("config", "c", "", "Use specified config `file`")
	dbPath := globals.String("db", "", "Database root `dir` (overrides config)")
	verbose := globals.BoolP("verbose", "v", false, "Log database activity to stderr")
	help := globals.BoolP("help", "h", false, "Show help")

	cfg := &config.Config{}
	commands := allCommands(cfg, env)

	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}

	err := globals.Parse(rest)
	if err != nil {
		o.ErrPrintln("error:", err)
		printUsage(errOut, globals, commands)

		return 1
	}

	if *help || globals.NArg() == 0 {
		printUsage(out, globals, commands)

		return 0
	}

	name := globals.Arg(0)
	cmdArgs := globals.Args()[1:]

	cmd := findCommand(commands, name)
	if cmd == nil {
		o.ErrPrintln("error:", errUnknownCommand.Error()+":", name)
		printUsage(errOut, globals, commands)

		return 1
	}

	// Help must work even with a broken config.
	if hasHelpFlag(cmdArgs) {
		cmd.PrintHelp(o)

		return 0
	}

	input := config.LoadInput{
		WorkDirOverride: *workDir,
		ConfigPath:      *configPath,
		Env:             env,
	}

	if globals.Changed("db") {
		input.DBPathOverride = dbPath
	}

	if globals.Changed("verbose") {
		input.VerboseOverride = verbose
	}

	loaded, err := config.Load(input)
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	*cfg = loaded

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

	code := cmd.Run(ctx, o, cmdArgs)
	if code != 0 {
		return code
	}

	return o.Finish()
}

func allCommands(cfg *config.Config, env map[string]string) []*Command {
	return []*Command{
		CollectionsCmd(cfg),
		CreateCmd(cfg),
		GetCmd(cfg),
		UpdateCmd(cfg),
		DeleteCmd(cfg),
		DropCmd(cfg),
		ExportCmd(cfg),
		ServeCmd(cfg),
		ShellCmd(cfg, env),
		PrintConfigCmd(cfg),
	}
}

func findCommand(commands []*Command, name string) *Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}

	return nil
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--" {
			return false
		}

		if arg == "-h" || arg == "--help" {
			return true
		}
	}

	return false
}

func printUsage(w io.Writer, globals *flag.FlagSet, commands []*Command) {
	var b strings.Builder

	b.WriteString("jifdb - embedded JSON file database\n\n")
	b.WriteString("Usage: jifdb [options] <command> [args]\n\n")
	b.WriteString("Options:\n")
	b.WriteString(globals.FlagUsages())
	b.WriteString("\nCommands:\n")

	for _, cmd := range commands {
		b.WriteString(cmd.HelpLine())
		b.WriteString("\n")
	}

	b.WriteString("\nRun 'jifdb <command> --help' for command flags.\n")

	_, _ = io.WriteString(w, b.String())
}
