package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/auth"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/logging"
	"github.com/zulandar/switchboard/internal/notify"
	"github.com/zulandar/switchboard/internal/notify/discord"
	"github.com/zulandar/switchboard/internal/notify/slack"
	"github.com/zulandar/switchboard/internal/presence"
	"github.com/zulandar/switchboard/internal/relay"
	"github.com/zulandar/switchboard/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat relay server",
		Long:  "Serves the guest and operator REST API, the WebSocket and SSE feeds, and operator notifications until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, store, err := openStore(configPath)
	if err != nil {
		return err
	}
	defer store.Close()
	if port > 0 {
		cfg.Server.Port = port
	}

	log := logging.New(cfg.Log, cmd.ErrOrStderr())
	log.Info().Str("driver", cfg.Store.Driver).Msg("thread store open")

	registry := presence.NewRegistry(logging.Component(log, "registry"))
	rl, err := relay.New(relay.Opts{
		Store:      store,
		Watchers:   registry,
		MaxTextLen: cfg.Limits.MaxTextLen,
		Log:        logging.Component(log, "relay"),
	})
	if err != nil {
		return err
	}
	defer rl.Wait()

	verifier, err := auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.OperatorRoles)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.OutOrStdout())
	defer cancel()

	if cfg.Notify.Platform != "" {
		closeNotify, err := startNotify(ctx, cfg.Notify, rl, logging.Component(log, "notify"))
		if err != nil {
			return err
		}
		defer closeNotify()
	}

	srv, err := server.New(server.Opts{
		Relay:    rl,
		Registry: registry,
		Verifier: verifier,
		Server:   cfg.Server,
		Limits:   cfg.Limits,
		Log:      logging.Component(log, "server"),
	})
	if err != nil {
		return err
	}
	return srv.Start(ctx, cfg.Server.Port, cmd.OutOrStdout())
}

// newAdapter builds the platform adapter named by nc.Platform.
func newAdapter(nc config.NotifyConfig) (notify.Adapter, error) {
	switch nc.Platform {
	case "slack":
		a, err := slack.New(slack.AdapterOpts{BotToken: nc.Slack.BotToken, ChannelID: nc.Channel})
		if err != nil {
			return nil, err
		}
		return a, nil
	case "discord":
		a, err := discord.New(discord.AdapterOpts{BotToken: nc.Discord.BotToken, ChannelID: nc.Channel})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("notify: unsupported platform %q", nc.Platform)
	}
}

// startNotify connects the adapter, registers the new-thread notifier, and
// starts the digest when scheduled. The returned func closes the adapter.
func startNotify(ctx context.Context, nc config.NotifyConfig, rl *relay.Relay, log zerolog.Logger) (func(), error) {
	adapter, err := newAdapter(nc)
	if err != nil {
		return nil, err
	}
	if err := adapter.Connect(ctx); err != nil {
		return nil, err
	}

	n, err := notify.NewNotifier(notify.NotifierOpts{Adapter: adapter, ChannelID: nc.Channel, Log: log})
	if err != nil {
		adapter.Close()
		return nil, err
	}
	rl.AddObserver(n)

	if nc.DigestCron != "" {
		d, err := notify.NewDigest(notify.DigestOpts{
			Threads:   rl,
			Adapter:   adapter,
			ChannelID: nc.Channel,
			Schedule:  nc.DigestCron,
			Log:       log,
		})
		if err != nil {
			adapter.Close()
			return nil, err
		}
		go d.Run(ctx)
	}
	log.Info().Str("platform", nc.Platform).Str("channel", nc.Channel).Msg("operator notifications enabled")
	return func() { adapter.Close() }, nil
}
