package cli

import (
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/xedahq/xeda/pkg/runpath"
)

var scrubCommand = &cli.Command{
	Name:      "scrub",
	Usage:     "delete old hash-suffixed run directories for a flow",
	ArgsUsage: "FLOW_NAME DESIGN_NAME",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 2 {
			return fmt.Errorf("scrub: FLOW_NAME and DESIGN_NAME arguments are required")
		}
		flowName := c.Args().Get(0)
		designName := c.Args().Get(1)

		root := c.String("xeda-run-dir")
		designDir := filepath.Join(root, designName)

		logger := loggerFromContext(c)
		return runpath.ScrubOldRuns(designDir, flowName, func(candidates []string) bool {
			logger.Info("candidates for removal under %s:", designDir)
			for _, cand := range candidates {
				logger.Info("  %s", cand)
			}
			return confirmOnTTY(candidates)
		})
	},
}
