package main

import (
	"os"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/urfave/cli/v2"

	"github.com/ajoudaki/scheduler/cmd"
)

func main() {
	app := &cli.App{
		Name:  "gpu-scheduler",
		Usage: "Lightweight local GPU job scheduler daemon",
		Commands: []*cli.Command{
			cmd.ServeCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		logging.Log.WithError(err).Fatal("runtime error")
	}
}
