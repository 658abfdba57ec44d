// Command festrank runs the leaderboard service and its operator tools.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "festrank:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "festrank",
		Usage: "rhythm-game leaderboard scoring and ranking",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML configuration file",
				EnvVars: []string{"FESTRANK_CONFIG"},
			},
		},
		Before: func(c *cli.Context) error {
			if path := c.String("config"); path != "" {
				return os.Setenv("FESTRANK_CONFIG", path)
			}
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			scoreCommand(),
			invertCommand(),
			tokenCommand(),
			importCommand(),
			loadgenCommand(),
		},
	}
}
