package main

import (
	"fmt"

	protoLogger "github.com/livekit/protocol/logger"
	"github.com/urfave/cli/v2"

	meetsdk "github.com/meetkit/meeting-sdk-go"
	"github.com/meetkit/meeting-sdk-go/pkg/config"
)

var (
	RunCommands = []*cli.Command{
		{
			Name:      "run",
			Usage:     "replay a scenario file",
			ArgsUsage: "SCENARIO",
			Action:    runScenario,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "scores",
					Usage: "also print score callbacks of scenario observers",
				},
			},
		},
	}

	ConfigCommands = []*cli.Command{
		{
			Name:   "config",
			Usage:  "print the effective configuration",
			Action: printConfig,
		},
	}
)

func loadConfig(c *cli.Context) (*config.Config, error) {
	var conf *config.Config
	var err error
	if path := c.String("config"); path != "" {
		conf, err = config.LoadFile(path)
	} else {
		conf, err = config.NewConfig("")
	}
	if err != nil {
		return nil, err
	}
	if c.Bool("verbose") {
		conf.LogLevel = "debug"
	}
	return conf, nil
}

func initLogger(conf *config.Config) protoLogger.Logger {
	protoLogger.InitFromConfig(&protoLogger.Config{Level: conf.LogLevel}, "meetsim")
	l := protoLogger.GetLogger()
	meetsdk.SetLogger(l)
	return l
}

func runScenario(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowSubcommandHelp(c)
	}
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := initLogger(conf)

	sc, err := LoadScenario(c.Args().First())
	if err != nil {
		return err
	}
	logger.Debugw("running scenario", "events", len(sc.Events), "duration", sc.Duration)

	return NewSimulator(c.App.Writer, conf, logger, c.Bool("scores")).Run(sc)
}

func printConfig(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	body, err := conf.Marshal()
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(c.App.Writer, body)
	return err
}
