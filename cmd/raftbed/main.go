package main

import (
	"context"
	"log"
	"os"

	commands "github.com/urfave/cli/v3"

	"github.com/raftbed/raftbed/internal/cli"
)

func main() {
	cmd := &commands.Command{
		Name:  "raftbed",
		Usage: "Black-box system tests for a replicated SQL database daemon",
		Flags: []commands.Flag{
			&commands.StringFlag{
				Name:    "binary",
				Usage:   "Path to the rsqld binary under test",
				Aliases: []string{"b"},
			},
			&commands.StringFlag{
				Name:  "config",
				Usage: "Path to the harness config file",
				Value: "raftbed.yaml",
			},
			&commands.BoolFlag{
				Name:    "verbose",
				Usage:   "Show debug-level harness logs",
				Aliases: []string{"v"},
			},
		},
		Commands: []*commands.Command{
			{
				Name:      "run",
				Usage:     "Run scenarios against the daemon",
				ArgsUsage: "[scenario...]",
				Action:    cli.Run,
			},
			{
				Name:   "list",
				Usage:  "Show available scenarios",
				Action: cli.List,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
