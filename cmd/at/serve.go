package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alotth/audio-transcriber/internal/artifact"
	"github.com/alotth/audio-transcriber/internal/config"
	"github.com/alotth/audio-transcriber/internal/db"
	"github.com/alotth/audio-transcriber/internal/lifecycle"
	"github.com/alotth/audio-transcriber/internal/media"
	"github.com/alotth/audio-transcriber/internal/notify"
	"github.com/alotth/audio-transcriber/internal/server"
	"github.com/alotth/audio-transcriber/internal/store"
	"github.com/alotth/audio-transcriber/internal/transcribe"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the transcription service",
		Long:  "Migrates the metadata store, resumes any interrupted jobs and serves the ingest/query HTTP API until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "at.yaml", "path to config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gdb, err := db.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gdb); err != nil {
		return err
	}

	artifacts, err := artifact.New(cfg.DataDir)
	if err != nil {
		return err
	}

	client, err := transcribe.NewHTTPClient(transcribe.Opts{
		APIKey:  cfg.Vendor.APIKey,
		BaseURL: cfg.Vendor.BaseURL,
	})
	if err != nil {
		return err
	}

	notifier, err := buildNotifier(cfg)
	if err != nil {
		return err
	}

	manager, err := lifecycle.New(lifecycle.Opts{
		Store:     store.New(gdb),
		Artifacts: artifacts,
		Client:    client,
		Converter: &media.Converter{},
		Notifier:  notifier,
		Config: lifecycle.Config{
			LanguageCode:    cfg.Vendor.LanguageCode,
			PollInterval:    cfg.Poll.Interval,
			MaxPollInterval: cfg.Poll.MaxInterval,
			BackoffEvery:    cfg.Poll.BackoffEvery,
			MaxPollDuration: cfg.Poll.MaxDuration,
		},
	})
	if err != nil {
		return err
	}
	defer manager.Close()

	if err := manager.Resume(); err != nil {
		return err
	}

	sweeper, err := manager.StartSweeper(lifecycle.DefaultSweepSpec)
	if err != nil {
		return err
	}
	defer sweeper.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Start(ctx, server.StartOpts{
		Store:          store.New(gdb),
		Artifacts:      artifacts,
		Manager:        manager,
		Port:           cfg.Port,
		MaxUploadBytes: cfg.Limits.MaxUploadBytes,
		MinFreeBytes:   cfg.Limits.MinFreeBytes,
		Out:            cmd.OutOrStdout(),
	})
}

// buildNotifier assembles the optional chat notifiers from config. Returns
// nil when none are configured.
func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	var notifiers notify.Multi
	if cfg.Notify.SlackBotToken != "" {
		slack, err := notify.NewSlack(notify.SlackOpts{
			BotToken:  cfg.Notify.SlackBotToken,
			ChannelID: cfg.Notify.SlackChannelID,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, slack)
	}
	if cfg.Notify.DiscordBotToken != "" {
		discord, err := notify.NewDiscord(notify.DiscordOpts{
			BotToken:  cfg.Notify.DiscordBotToken,
			ChannelID: cfg.Notify.DiscordChannelID,
		})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, discord)
	}
	if len(notifiers) == 0 {
		return nil, nil
	}
	return notifiers, nil
}
