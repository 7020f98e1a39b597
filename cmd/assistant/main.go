package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli"

	"github.com/tazhate/orgassist/config"
)

var version = "dev"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "orgassist",
		Usage:   "Personal assistant that reads your calendars and reminds you about them",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:   "config",
				Usage:  "Path to the YAML config file",
				Value:  config.DefaultPath,
				EnvVar: "ORGASSIST_CONFIG",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Output debug messages",
			},
			&cli.BoolFlag{
				Name:  "test",
				Usage: "Initialize, but don't start the bot",
			},
		},
		Commands: []cli.Command{
			RunCmd,
			AgendaCmd,
			PluginsCmd,
		},
		Action: run,
	}
}
