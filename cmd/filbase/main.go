package main

import (
	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"

	"github.com/filecoin-project/filbase/build"
	filbaselog "github.com/filecoin-project/filbase/lib/logging"
)

var log = logging.Logger("main")

func main() {
	filbaselog.SetupLogLevels()

	app := &cli.App{
		Name:                 "filbase",
		Usage:                "Sector staging, sealing and proof command service",
		Version:              build.UserVersion(),
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "config file to load instead of " + configDefaultName(),
				EnvVars: []string{"FILBASE_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			daemonCmd,
			postCmd,
			sealCmd,
			sectorCmd,
			pieceCmd,
			configCmd,
		},
	}

	RunApp(app)
}
