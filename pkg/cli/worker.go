package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/xedahq/xeda/pkg/dse"
	"github.com/xedahq/xeda/pkg/launcher"
	"github.com/xedahq/xeda/pkg/runpath"
)

// dseWorkerCommand is the hidden subcommand ProcessSpawner re-execs the
// binary with (§5): it decodes one WorkerTask from stdin, runs it
// through the Launcher, and writes one WorkerResult to stdout. It takes
// no flags of its own and is never invoked directly by a user.
var dseWorkerCommand = &cli.Command{
	Name:   "__dse_worker",
	Hidden: true,
	Action: func(c *cli.Context) error {
		paths, err := runpath.New(c.String("xeda-run-dir"))
		if err != nil {
			return err
		}
		l := launcher.New(paths, loggerFromContext(c))
		if err := dse.ServeWorker(c.Context, os.Stdin, os.Stdout, l); err != nil {
			return fmt.Errorf("__dse_worker: %w", err)
		}
		return nil
	},
}
