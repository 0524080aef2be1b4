package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/dev-tams/sqlbackup/internal/app"
	"github.com/dev-tams/sqlbackup/internal/config"
	"github.com/dev-tams/sqlbackup/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	releaseOnDone(ctx, stop)

	cliApp := &cli.App{
		Name:  "sqlbackup",
		Usage: "scheduled MySQL backups with age-based retention",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config yaml (environment variables override it)",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "daemon",
				Usage: "run backups on the configured cron schedule until interrupted",
				Action: func(c *cli.Context) error {
					cfg, log, err := setup(c)
					if err != nil {
						return err
					}
					defer func() { _ = log.Sync() }()

					return app.RunDaemon(c.Context, cfg, log)
				},
			},
			{
				Name:  "backup",
				Usage: "run one backup now and exit",
				Action: func(c *cli.Context) error {
					cfg, log, err := setup(c)
					if err != nil {
						return err
					}
					defer func() { _ = log.Sync() }()

					return app.RunBackup(c.Context, cfg, log, os.Stdout)
				},
			},
			{
				Name:  "list",
				Usage: "list backups in the backup directory, newest first",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c.String("config"))
					if err != nil {
						return err
					}
					return app.RunList(c.Context, cfg, os.Stdout)
				},
			},
			{
				Name:  "test",
				Usage: "verify configuration, backup directory and database connectivity",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c.String("config"))
					if err != nil {
						return err
					}
					return app.RunCheck(c.Context, cfg, os.Stdout)
				},
			},
			{
				Name:  "verify",
				Usage: "decompress a backup end to end to check it is intact",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "file",
						Usage: "artifact name (defaults to the newest backup)",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c.String("config"))
					if err != nil {
						return err
					}
					return app.RunVerify(c.Context, cfg, c.String("file"), os.Stdout)
				},
			},
			{
				Name:  "restore",
				Usage: "load a backup into the configured database",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Required: true,
						Usage:    "artifact name to restore",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, log, err := setup(c)
					if err != nil {
						return err
					}
					defer func() { _ = log.Sync() }()

					return app.RunRestore(c.Context, cfg, c.String("file"), log, os.Stdout)
				},
			},
		},
	}

	if err := cliApp.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// releaseOnDone unregisters the signal handlers once ctx is done, so a second
// Ctrl+C while a dump drains falls back to the default and kills the process.
func releaseOnDone(ctx context.Context, stop context.CancelFunc) {
	go func() {
		<-ctx.Done()
		stop()
	}()
}

func setup(c *cli.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := loadValidatedConfig(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Log.Level, c.Bool("verbose"))
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func loadConfig(cfgPath string) (*config.Config, error) {
	return config.LoadConfig(cfgPath)
}

func loadValidatedConfig(cfgPath string) (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
