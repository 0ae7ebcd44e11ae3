// Package cli provides the command-line interface for xeda, adapted
// from the teacher's *cli.App/GlobalFlags/Commands scaffolding onto the
// flow-engine's run/dse/list-flows/list-settings/scrub surface (§6).
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/xedahq/xeda/internal/xerrors"
	"github.com/xedahq/xeda/internal/xlog"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to every subcommand.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "xeda-run-dir",
		Usage:   "root directory for run outputs",
		Value:   "xeda_run",
		EnvVars: []string{"XEDA_RUN_DIR"},
	},
	&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable verbose logging"},
	&cli.BoolFlag{Name: "debug", Usage: "enable debug logging and stack traces on fatal errors"},
	&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "suppress non-error output"},
	&cli.BoolFlag{Name: "no-ansi", Usage: "disable ANSI colors"},
}

func loggerFromContext(c *cli.Context) *xlog.Logger {
	level := xlog.LevelFromFlags(c.Bool("verbose"), c.Bool("debug"), c.Bool("quiet"))
	logger := xlog.New(level)
	if c.Bool("no-ansi") {
		logger.SetANSI(false)
	}
	return logger
}

// Execute builds and runs the xeda CLI, returning the process exit code
// per §6's documented mapping rather than calling os.Exit directly, so
// cmd/xeda can decide how to exit.
func Execute(args []string) int {
	app := &cli.App{
		Name:  "xeda",
		Usage: "orchestrates EDA tool flows: synthesis, simulation, implementation, and design-space exploration",
		Description: `xeda runs named flows (e.g. vivado_synth, ghdl_sim) against a hardware
design, resolving each flow's dependencies, caching successful runs by
content fingerprint, and reporting structured results.

Examples:
  xeda run vivado_synth --design top.yaml --flow-settings clock_period=5.0
  xeda dse vivado_synth --design top.yaml --optimizer fmax_optimizer --init-freq-low 50 --init-freq-high 300
  xeda list-flows`,
		Version: Version,
		Flags:   GlobalFlags,
		Commands: []*cli.Command{
			runCommand,
			dseCommand,
			listFlowsCommand,
			listSettingsCommand,
			scrubCommand,
			dseWorkerCommand,
		},
	}

	exitCode := 0
	app.ExitErrHandler = func(c *cli.Context, err error) {
		if err == nil {
			return
		}
		fmt.Fprintf(os.Stderr, "xeda: %v\n", err)
		exitCode = xerrors.ExitCode(err)
		if exitCode == 0 {
			exitCode = 1
		}
	}

	if err := app.RunContext(context.Background(), args); err != nil {
		fmt.Fprintf(os.Stderr, "xeda: %v\n", err)
		if exitCode == 0 {
			exitCode = xerrors.ExitCode(err)
			if exitCode == 0 {
				exitCode = 1
			}
		}
	}
	return exitCode
}
