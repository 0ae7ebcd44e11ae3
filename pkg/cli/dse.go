package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/xedahq/xeda/pkg/dse"
	"github.com/xedahq/xeda/pkg/launcher"
	"github.com/xedahq/xeda/pkg/runpath"
	"github.com/xedahq/xeda/pkg/settings"
)

// dseWorkerFlag is the hidden subcommand name ProcessSpawner passes to
// re-exec the binary as a worker subprocess (§5).
const dseWorkerFlag = "__dse_worker"

var dseCommand = &cli.Command{
	Name:      "dse",
	Usage:     "design-space exploration: repeatedly launch a flow across a batch of candidate settings",
	ArgsUsage: "FLOW_NAME",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "design", Usage: "path to a design description yaml"},
		&cli.StringFlag{Name: "xedaproject", Usage: "path to an xedaproject yaml naming one or more designs"},
		&cli.StringFlag{Name: "design-name", Usage: "design to select from --xedaproject, when it names more than one"},
		&cli.StringFlag{Name: "optimizer", Value: "fmax_optimizer", Usage: "search strategy to drive the exploration"},
		&cli.Float64Flag{Name: "init-freq-low", Value: 50.0, Usage: "fmax_optimizer: initial lower frequency bound, MHz"},
		&cli.Float64Flag{Name: "init-freq-high", Value: 300.0, Usage: "fmax_optimizer: initial upper frequency bound, MHz"},
		&cli.IntFlag{Name: "max-workers", Value: 4, Usage: "maximum concurrent worker processes"},
		&cli.IntFlag{Name: "max-runtime-minutes", Value: 0, Usage: "stop after this many minutes (0: unbounded)"},
		&cli.IntFlag{Name: "max-failed-iters", Value: 10, Usage: "stop once the count of consecutive iterations with no successful candidate exceeds this"},
		&cli.IntFlag{Name: "max-failed-iters-with-best", Value: 5, Usage: "once a best result exists, stop when consecutive failed iterations exceed this"},
		&cli.StringSliceFlag{Name: "flow-settings", Usage: "KEY=VALUE baseline override applied to every candidate"},
	},
	Action: dseAction,
}

func dseAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("dse: exactly one FLOW_NAME argument is required")
	}
	flowName := c.Args().First()
	if c.String("optimizer") != "fmax_optimizer" {
		return fmt.Errorf("dse: unknown optimizer %q (only fmax_optimizer is built in)", c.String("optimizer"))
	}

	decoded, err := loadDesign(c)
	if err != nil {
		return err
	}

	baseSettings := settings.Merge(decoded.FlowConfig[flowName])
	if err := settings.MergeCLIOverrides(baseSettings, c.StringSlice("flow-settings")); err != nil {
		return err
	}

	paths, err := runpath.New(c.String("xeda-run-dir"))
	if err != nil {
		return err
	}
	logger := loggerFromContext(c)
	l := launcher.New(paths, logger)

	selfPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("dse: resolving own executable path: %w", err)
	}

	// The worker subprocess re-runs with only the hidden subcommand name,
	// not the parent's full flag set; it reads xeda-run-dir from its own
	// GlobalFlags default/env var, so XEDA_RUN_DIR must be exported for a
	// non-default --xeda-run-dir to reach the workers too.
	pool := &dse.Pool{
		Spawner:    dse.ProcessSpawner{SelfPath: selfPath, WorkerFlag: dseWorkerFlag},
		MaxWorkers: c.Int("max-workers"),
	}

	fmaxSettings := dse.DefaultFmaxSettings(c.Float64("init-freq-low"), c.Float64("init-freq-high"))
	optimizer := dse.NewFmaxOptimizer(c.Int("max-workers"), fmaxSettings, baseSettings, defaultFmaxVariations(flowName), time.Now().UnixNano())

	driver := &dse.Driver{
		Pool:           pool,
		Optimizer:      optimizer,
		Logger:         logger,
		Load:           dse.ProcLoadSampler{},
		BestResultPath: filepath.Join(paths.RootDir, decoded.Design.Name, flowName+"_dse_best.json"),
	}

	result, err := driver.Run(c.Context, dse.RunConfig{
		FlowName:   flowName,
		Design:     decoded.Design,
		MaxWorkers: c.Int("max-workers"),
		Stop: dse.StopCriteria{
			MaxRuntimeMinutes:      c.Int("max-runtime-minutes"),
			MaxFailedIters:         c.Int("max-failed-iters"),
			MaxFailedItersWithBest: c.Int("max-failed-iters-with-best"),
		},
	})
	if err != nil {
		return err
	}

	if result.Best == nil {
		return fmt.Errorf("dse: no successful candidate found after %d iterations", result.NumIterations)
	}
	logger.Info("best result: run_path=%s after %d iterations (%.1fs)", result.Best.RunPath, result.NumIterations, result.TotalTime.Seconds())
	return nil
}

// defaultFmaxVariations names the strategy axes fmax_optimizer samples
// per candidate frequency, grounded on fmax.py's default_variations
// table for vivado_synth/vivado_alt_synth.
func defaultFmaxVariations(flowName string) map[string][]string {
	switch flowName {
	case "vivado_synth":
		return map[string][]string{
			"synth.strategy": {"Flow_PerfOptimized_high", "Flow_AlternateRoutability", "Flow_RuntimeOptimized"},
			"impl.strategy":  {"Performance_ExploreWithRemap", "Performance_Explore", "Performance_ExtraTimingOpt"},
		}
	default:
		return nil
	}
}
