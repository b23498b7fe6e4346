package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/calebt/typeset/internal/api"
	"github.com/calebt/typeset/internal/config"
	"github.com/calebt/typeset/internal/dashboard"
	"github.com/calebt/typeset/internal/db"
	"github.com/calebt/typeset/internal/dispatch"
	"github.com/calebt/typeset/internal/identity"
	"github.com/calebt/typeset/internal/notify"
	"github.com/calebt/typeset/internal/notify/discord"
	"github.com/calebt/typeset/internal/notify/slack"
	"github.com/calebt/typeset/internal/storage"
	"github.com/calebt/typeset/internal/sweeper"
	"github.com/calebt/typeset/internal/webhook"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the conversion API server",
		Long:  "Runs the full service: job submission and dispatch, webhook fan-out, converter callbacks, the dashboard, and the expired-job sweeper.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "typeset.yaml", "path to config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	if port > 0 {
		cfg.Port = port
	}

	cdn, err := storage.OpenFS(cfg.DataDir, cfg.CDNBucket)
	if err != nil {
		return err
	}
	preconvert, err := storage.OpenFS(cfg.DataDir, cfg.PreconvertBucket)
	if err != nil {
		return err
	}

	notifier, err := buildNotifier(cfg.Notify)
	if err != nil {
		return err
	}

	dispatcher, err := dispatch.New(dispatch.Opts{
		DB:        gormDB,
		Resolver:  identity.NewGitResolver(cfg.GitURL),
		Invoker:   dispatch.NewHTTPInvoker(cfg.WorkerTimeout()),
		APIURL:    cfg.APIURL,
		CDNURL:    cfg.CDNURL,
		CDNBucket: cfg.CDNBucket,
		Notifier:  notifier,
	})
	if err != nil {
		return err
	}

	controller, err := webhook.New(webhook.Opts{
		Dispatcher:    dispatcher,
		CDN:           cdn,
		Preconvert:    preconvert,
		APIURL:        cfg.APIURL,
		GitURL:        cfg.GitURL,
		SourceURLBase: cfg.PreconvertURL,
		Token:         cfg.WebhookToken,
	})
	if err != nil {
		return err
	}

	reporter, err := dashboard.NewReporter(gormDB, cfg.CDNURL)
	if err != nil {
		return err
	}

	server, err := api.New(api.Opts{
		DB:         gormDB,
		Dispatcher: dispatcher,
		Webhook:    controller,
		Reporter:   reporter,
		CDN:        cdn,
		APIURL:     cfg.APIURL,
		Port:       cfg.Port,
		Out:        out,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	sw, err := sweeper.New(sweeper.Opts{DB: gormDB, Schedule: cfg.SweepSchedule, Out: out})
	if err != nil {
		return err
	}
	go sw.Run(ctx)

	return server.Start(ctx)
}

// buildNotifier assembles the configured chat notifiers, or nil when
// none are configured.
func buildNotifier(cfg config.NotifyConfig) (notify.Notifier, error) {
	var notifiers notify.Multi
	if cfg.SlackBotToken != "" {
		n, err := slack.New(slack.Opts{Token: cfg.SlackBotToken, ChannelID: cfg.SlackChannel})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	if cfg.DiscordBotToken != "" {
		n, err := discord.New(discord.Opts{Token: cfg.DiscordBotToken, ChannelID: cfg.DiscordChannelID})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	if len(notifiers) == 0 {
		return nil, nil
	}
	return notifiers, nil
}
