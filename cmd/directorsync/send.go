package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/directorsync"
	"pkt.systems/directorsync/core"
	"pkt.systems/directorsync/schema"
	"pkt.systems/pslog"
)

type sendOptions struct {
	load    loadOptions
	timeout time.Duration
}

func newSendCmd() *cobra.Command {
	opts := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Connect, send one operator command, and exit",
	}
	cmd.PersistentFlags().StringVarP(&opts.load.path, "config", "c", "", "path to config file")
	cmd.PersistentFlags().StringVar(&opts.load.endpoint, "endpoint", "", "backend URL (overrides endpoint.url)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "how long to wait for the connection and delivery")

	cmd.AddCommand(&cobra.Command{
		Use:   "streamer <id>",
		Short: "Switch the followed streamer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, svc core.Service) error {
				return svc.SetStreamer(ctx, schema.StreamerID(args[0]))
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "context <text>",
		Short: "Set the manual context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := strings.Join(args, " ")
			return opts.run(cmd, func(ctx context.Context, svc core.Service) error {
				return svc.SetManualContext(ctx, value)
			})
		},
	})
	cmd.AddCommand(newLockCmd(opts, "lock-streamer", "Lock or unlock the streamer selection", func(svc core.Service) func(context.Context, bool) error {
		return svc.SetStreamerLock
	}))
	cmd.AddCommand(newLockCmd(opts, "lock-context", "Lock or unlock the manual context", func(svc core.Service) func(context.Context, bool) error {
		return svc.SetContextLock
	}))
	cmd.AddCommand(newEventCmd(opts))
	return cmd
}

func newLockCmd(opts *sendOptions, use, short string, pick func(core.Service) func(context.Context, bool) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <true|false>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			locked, err := parseLock(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, svc core.Service) error {
				return pick(svc)(ctx, locked)
			})
		},
	}
}

func newEventCmd(opts *sendOptions) *cobra.Command {
	var source, text, username string
	var meta []string
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Inject a manual event",
		RunE: func(cmd *cobra.Command, args []string) error {
			metadata, err := parseMetadata(meta)
			if err != nil {
				return err
			}
			event := schema.InjectEventCommand{
				SourceStr: source,
				Text:      text,
				Metadata:  metadata,
				Username:  username,
			}
			return opts.run(cmd, func(ctx context.Context, svc core.Service) error {
				return svc.SendEvent(ctx, event)
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "event source")
	cmd.Flags().StringVar(&text, "text", "", "event text")
	cmd.Flags().StringVar(&username, "username", "", "optional username")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "metadata key=value (repeatable)")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func (o *sendOptions) run(cmd *cobra.Command, action func(ctx context.Context, svc core.Service) error) error {
	logger := pslog.Ctx(cmd.Context())
	cfg, err := loadConfig(o.load)
	if err != nil {
		return err
	}
	connected := make(chan struct{}, 1)
	client, err := directorsync.New(directorsync.ConfigFromApp(cfg), directorsync.ClientDeps{
		Logger: logger,
		OnState: func(state schema.ConnectionState) {
			if state == schema.Connected {
				select {
				case connected <- struct{}{}:
				default:
				}
			}
		},
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()
	if err := client.Start(ctx); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancelClose := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelClose()
		_ = client.Close(closeCtx)
	}()

	select {
	case <-connected:
	case <-ctx.Done():
		return fmt.Errorf("connect %s: %w", cfg.Endpoint.URL, ctx.Err())
	}
	if err := action(ctx, client.Service()); err != nil {
		return err
	}
	if err := client.Flush(ctx); err != nil {
		return fmt.Errorf("deliver command: %w", err)
	}
	logger.Info("command sent", "command", cmd.Name())
	return nil
}

func parseLock(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "lock", "locked":
		return true, nil
	case "off", "unlock", "unlocked":
		return false, nil
	}
	locked, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%w: lock value %q", schema.ErrInvalidRequest, value)
	}
	return locked, nil
}

func parseMetadata(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: metadata %q must be key=value", schema.ErrInvalidRequest, pair)
		}
		out[key] = value
	}
	return out, nil
}
