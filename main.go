// Command myshows-backup exports a user's myshows.me watch history as
// JSON and CSV files, through either the legacy or the OAuth API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/olegsh/myshows-backup/internal/backup"
	"github.com/olegsh/myshows-backup/internal/export"
	"github.com/olegsh/myshows-backup/internal/myshows"
	"github.com/olegsh/myshows-backup/internal/o11y"
	"github.com/olegsh/myshows-backup/internal/slack"
	"github.com/olegsh/myshows-backup/internal/ui"
	"github.com/robfig/cron"
	"github.com/sethvargo/go-envconfig"
	"github.com/urfave/cli/v2"
)

type appConfig struct {
	Legacy myshows.LegacyConfig `env:",prefix=MYSHOWS_"`
	OAuth  myshows.OAuthConfig  `env:",prefix=MYSHOWS_"`
	Backup backup.Config        `env:",prefix=BACKUP_"`
	Slack  slack.Config         `env:",prefix=SLACK_"`
}

func main() {
	app := &cli.App{
		Name:  "myshows-backup",
		Usage: "export your TV-show watch history from myshows.me",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output file path (JSON); stdout when omitted"},
			&cli.BoolFlag{Name: "v1", Usage: "use the legacy API"},
			&cli.BoolFlag{Name: "v2", Usage: "use the OAuth API"},
			&cli.IntFlag{Name: "workers", Usage: "parallel fetch workers", Value: 5},
			&cli.IntFlag{Name: "batch-size", Usage: "shows coordinated per batch", Value: 25},
			&cli.DurationFlag{Name: "delay", Usage: "delay between requests", Value: 100 * time.Millisecond},
			&cli.BoolFlag{Name: "simple", Usage: "sequential one-show-at-a-time mode"},
			&cli.StringFlag{Name: "cron", Usage: "run on a schedule instead of once (cron spec)"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable debug logging"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		slog.Error("backup failed", "error", err.Error())
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	if c.Bool("verbose") {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}
	if c.Bool("v1") && c.Bool("v2") {
		return errors.New("cannot specify both --v1 and --v2")
	}

	var cfg appConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return fmt.Errorf("parse the env: %w", err)
	}
	if c.IsSet("workers") {
		cfg.Backup.Workers = c.Int("workers")
	}
	if c.IsSet("batch-size") {
		cfg.Backup.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("delay") {
		cfg.Backup.RequestDelay = c.Duration("delay")
	}
	if c.Bool("simple") {
		cfg.Backup.Workers = 1
		cfg.Backup.BatchSize = 0
	}

	client, err := buildClient(c, &cfg)
	if err != nil {
		return err
	}
	runner := backup.NewRunner(client, cfg.Backup, newReporter(cfg.Slack))

	if spec := c.String("cron"); spec != "" {
		return runOnSchedule(ctx, spec, runner, c.String("output"))
	}
	return runOnce(ctx, runner, c.String("output"))
}

func buildClient(c *cli.Context, cfg *appConfig) (myshows.Client, error) {
	var variant myshows.Variant
	switch {
	case c.Bool("v1"):
		variant = myshows.VariantLegacy
	case c.Bool("v2"):
		variant = myshows.VariantOAuth
	default:
		var err error
		if variant, err = ui.SelectVariant(); err != nil {
			return nil, err
		}
	}

	if variant == myshows.VariantLegacy {
		if err := ui.LegacyCredentials(&cfg.Legacy); err != nil {
			return nil, err
		}
		return myshows.NewLegacyClient(cfg.Legacy), nil
	}
	if err := ui.OAuthCredentials(&cfg.OAuth); err != nil {
		return nil, err
	}
	return myshows.NewOAuthClient(cfg.OAuth), nil
}

func newReporter(cfg slack.Config) o11y.Reporter {
	if len(cfg.WebhookURLs) == 0 {
		return o11y.LogReporter{}
	}
	return slack.NewClient(cfg)
}

// runOnce performs one backup. Nothing is written unless the whole run
// succeeded, so an interrupt is a clean abort rather than a truncated
// export.
func runOnce(ctx context.Context, runner *backup.Runner, output string) error {
	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	if err := export.SaveJSON(output, result); err != nil {
		return err
	}
	if output == "" {
		return nil
	}
	full, lite := export.CSVPaths(output)
	if err := export.SaveCSV(full, result.Shows, result.Meta.Username); err != nil {
		return err
	}
	if err := export.SaveLiteCSV(lite, result.Shows); err != nil {
		return err
	}
	slog.Info("backup completed", "shows", result.Meta.TotalShows)
	return nil
}

func runOnSchedule(ctx context.Context, spec string, runner *backup.Runner, output string) error {
	crn := cron.New()
	err := crn.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, time.Hour)
		defer cancel()
		if err := runOnce(runCtx, runner, output); err != nil {
			slog.Error("scheduled backup failed", "error", err.Error())
		}
	})
	if err != nil {
		return fmt.Errorf("setup cron: %w", err)
	}
	crn.Start()
	slog.Info("running on a schedule", "spec", spec)

	<-ctx.Done()
	slog.Info("stopping")
	crn.Stop()
	return nil
}
