package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	meetsdk "github.com/meetkit/meeting-sdk-go"
)

func main() {
	app := &cli.App{
		Name:  "meetsim",
		Usage: "replay meeting scenarios through the active speaker pipeline",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name: "verbose",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file, defaults are used when empty",
			},
		},
		Version: meetsdk.Version,
	}

	app.Commands = append(app.Commands, RunCommands...)
	app.Commands = append(app.Commands, ConfigCommands...)

	if err := app.Run(os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
