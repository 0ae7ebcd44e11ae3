// Command xeda is the entrypoint binary: it wires pkg/cli's command
// surface to os.Args and translates the returned exit code (§6).
package main

import (
	"os"

	"github.com/xedahq/xeda/pkg/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args))
}
