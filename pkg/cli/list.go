package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	_ "github.com/xedahq/xeda/pkg/flows" // registers the built-in flows
	"github.com/xedahq/xeda/pkg/flow"
	"github.com/xedahq/xeda/pkg/settings"
)

var listFlowsCommand = &cli.Command{
	Name:  "list-flows",
	Usage: "print the names of every registered flow",
	Action: func(c *cli.Context) error {
		for _, name := range flow.Names() {
			fmt.Println(name)
		}
		return nil
	},
}

var listSettingsCommand = &cli.Command{
	Name:      "list-settings",
	Usage:     "print the common default settings every flow starts from, as yaml",
	ArgsUsage: "FLOW_NAME",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 1 {
			return fmt.Errorf("list-settings: exactly one FLOW_NAME argument is required")
		}
		flowName := c.Args().First()
		if _, err := flow.Lookup(flowName); err != nil {
			return err
		}

		base := settings.BaseToMap(settings.DefaultBase())
		data, err := yaml.Marshal(base)
		if err != nil {
			return fmt.Errorf("list-settings: rendering schema dump: %w", err)
		}
		fmt.Printf("# %s: common settings (flow-specific keys are merged on top)\n%s", flowName, data)
		return nil
	},
}
