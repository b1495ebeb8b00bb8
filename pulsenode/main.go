// Command pulsenode runs the biometric acquisition node and its companion
// consumer.
//
// Usage:
//
//	pulsenode run -c node.yaml
//	pulsenode companion -c node.yaml
//	pulsenode temp -c node.yaml
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "pulsenode",
		Usage: "MAX30100 pulse oximeter node",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				EnvVars: []string{"PULSENODE_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			companionCommand(),
			tempCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
