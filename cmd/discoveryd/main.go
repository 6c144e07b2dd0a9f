package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/ExclusiveAccount/discovery-engine/internal/app"
	"github.com/ExclusiveAccount/discovery-engine/internal/config"
)

const (
	appName    = "discoveryd"
	appVersion = "0.1.0"
)

func main() {
	cliApp := &cli.App{
		Name:    appName,
		Usage:   "Network discovery engine: staged CIDR scan, SSH fact extraction, job persistence",
		Version: appVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "",
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"DISCOVERY_CONFIG_FILE"},
			},
		},
		Commands: []*cli.Command{
			commandServe(),
			commandMigrate(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		color.Red("discoveryd: %v", err)
		os.Exit(1)
	}
}

func commandServe() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the discovery API server",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			a, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}

			color.Green("%s v%s starting on %s:%d", appName, appVersion, cfg.Server.Host, cfg.Server.Port)
			color.Yellow("Press Ctrl+C to stop")

			return a.Run(context.Background())
		},
	}
}

func commandMigrate() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update database tables, then exit",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			a, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}

			if err := a.Migrate(); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			color.Green("database schema is up to date")
			return nil
		},
	}
}
