package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/xedahq/xeda/pkg/design"
	"github.com/xedahq/xeda/pkg/launcher"
	"github.com/xedahq/xeda/pkg/runpath"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "launch a flow against a design",
	ArgsUsage: "FLOW_NAME",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "design", Usage: "path to a design description yaml"},
		&cli.StringFlag{Name: "xedaproject", Usage: "path to an xedaproject yaml naming one or more designs"},
		&cli.StringFlag{Name: "design-name", Usage: "design to select from --xedaproject, when it names more than one"},
		&cli.StringSliceFlag{Name: "flow-settings", Usage: "KEY=VALUE override, repeatable, highest precedence"},
		&cli.BoolFlag{Name: "clean", Usage: "call the flow's Clean() before Init(), removing prior run-path contents"},
		&cli.BoolFlag{Name: "incremental", Usage: "reuse the run directory in place, skipping hash-suffixed naming"},
		&cli.BoolFlag{Name: "scrub", Usage: "scrub old hash-suffixed run directories for this flow before launching"},
	},
	Action: runAction,
}

func runAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("run: exactly one FLOW_NAME argument is required")
	}
	flowName := c.Args().First()

	decoded, err := loadDesign(c)
	if err != nil {
		return err
	}

	paths, err := runpath.New(c.String("xeda-run-dir"))
	if err != nil {
		return err
	}
	logger := loggerFromContext(c)

	l := launcher.New(paths, logger)
	l.ScrubOldRunsPolicy = c.Bool("scrub")
	l.ConfirmScrub = confirmOnTTY

	overrides := c.StringSlice("flow-settings")
	if c.Bool("clean") {
		overrides = append(overrides, "clean=true")
	}

	result, err := l.Launch(c.Context, flowName, decoded.Design, decoded.FlowConfig[flowName], launcher.LaunchOptions{
		Incremental:  c.Bool("incremental"),
		CLIOverrides: overrides,
	})
	if err != nil {
		return err
	}

	logger.Info("run path: %s", result.RunPath)
	if result.Results.Success {
		logger.Info("%s: success (%.1fs)", flowName, result.Results.RuntimeSeconds)
		return nil
	}
	logger.Error("%s: failed (%.1fs)", flowName, result.Results.RuntimeSeconds)
	return fmt.Errorf("run: flow %q did not succeed", flowName)
}

// loadDesign resolves --design or --xedaproject[+--design-name] into a
// DecodedDesign, the shared entry point run and dse use to go
// from the CLI surface to a typed Design (§6).
func loadDesign(c *cli.Context) (*design.DecodedDesign, error) {
	switch {
	case c.String("design") != "":
		path := c.String("design")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("run: reading design file %s: %w", path, err)
		}
		return design.DecodeDesignYAML(data, filepath.Dir(path))

	case c.String("xedaproject") != "":
		path := c.String("xedaproject")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("run: reading xedaproject file %s: %w", path, err)
		}
		proj, err := design.DecodeXedaProjectYAML(data, filepath.Dir(path))
		if err != nil {
			return nil, err
		}
		var d *design.Design
		if name := c.String("design-name"); name != "" {
			d = proj.DesignByName(name)
			if d == nil {
				return nil, fmt.Errorf("run: xedaproject %s has no design named %q", path, name)
			}
		} else if len(proj.Designs) == 1 {
			d = proj.Designs[0]
		} else {
			return nil, fmt.Errorf("run: xedaproject %s names %d designs; pass --design-name to pick one", path, len(proj.Designs))
		}
		return &design.DecodedDesign{Design: d, FlowConfig: proj.Flows}, nil

	default:
		return nil, fmt.Errorf("run: one of --design or --xedaproject is required")
	}
}

// confirmOnTTY asks on stdin before a destructive scrub, matching the
// source's confirmation prompt; a non-interactive run (no TTY) declines
// by default rather than deleting run directories silently.
func confirmOnTTY(candidates []string) bool {
	if fi, err := os.Stdin.Stat(); err != nil || (fi.Mode()&os.ModeCharDevice) == 0 {
		return false
	}
	fmt.Printf("scrub %d old run director%s? [y/N] ", len(candidates), plural(len(candidates)))
	var answer string
	_, _ = fmt.Scanln(&answer)
	return answer == "y" || answer == "Y"
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
