package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"pkt.systems/directorsync"
	"pkt.systems/directorsync/schema"
	"pkt.systems/pslog"
)

func newWatchCmd() *cobra.Command {
	var load loadOptions
	var noCollab bool
	var asJSON bool
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stay connected and print the synchronized state",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := loadConfig(load)
			if err != nil {
				return err
			}
			var opts []directorsync.ClientOption
			if cfg.HTTP.Addr != "" {
				opts = append(opts, directorsync.WithHTTP())
			}
			if !noCollab && cfg.Collab.PollInterval() > 0 {
				opts = append(opts, directorsync.WithCollab())
			}
			client, err := directorsync.New(directorsync.ConfigFromApp(cfg), directorsync.ClientDeps{Logger: logger}, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := client.Close(closeCtx); err != nil {
					logger.Warn("client close failed", "err", err)
				}
			}()
			if err := client.Start(ctx); err != nil {
				return err
			}
			go printUpdates(ctx, cmd.OutOrStdout(), client, interval, asJSON)
			return client.Wait()
		},
	}
	cmd.Flags().StringVarP(&load.path, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&load.endpoint, "endpoint", "", "backend URL (overrides endpoint.url)")
	cmd.Flags().StringVar(&load.httpAddr, "http", "", "serve the consumer bridge on this address (overrides http.addr)")
	cmd.Flags().BoolVar(&noCollab, "no-collab", false, "do not poll the collaborator surface")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full state as JSON lines")
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Second, "status line interval")
	return cmd
}

func printUpdates(ctx context.Context, out io.Writer, client directorsync.Client, interval time.Duration, asJSON bool) {
	svc := client.Service()
	topics := svc.Topics()
	conn, unsubConn := topics.Connection.Subscribe()
	defer unsubConn()
	snaps, unsubSnaps := topics.Snapshot.Subscribe()
	defer unsubSnaps()
	suggestions, unsubSuggestions := topics.Suggestions.Subscribe()
	defer unsubSuggestions()
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	emit := func() {
		view := svc.View()
		if asJSON {
			data, err := json.Marshal(view)
			if err == nil {
				_, _ = fmt.Fprintln(out, string(data))
			}
			return
		}
		_, _ = fmt.Fprintln(out, formatStatus(view, time.Now()))
	}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-conn:
			if !ok {
				return
			}
			emit()
		case _, ok := <-snaps:
			if !ok {
				return
			}
			emit()
		case suggestion, ok := <-suggestions:
			if !ok {
				return
			}
			if !asJSON && suggestion.Context != nil {
				_, _ = fmt.Fprintf(out, "suggestion %q\n", *suggestion.Context)
			}
		case <-ticker.C:
			emit()
		}
	}
}

func formatStatus(view schema.View, now time.Time) string {
	parts := []string{view.Connection.String()}
	snap := view.Snapshot
	parts = append(parts,
		"mood "+snap.Mood,
		"state "+snap.ConversationState,
		"streamer "+string(view.Locks.CurrentStreamer)+lockMark(view.Locks.StreamerLocked),
	)
	manual := "context" + lockMark(view.Locks.ContextLocked)
	if view.Locks.ManualContext != "" {
		manual += fmt.Sprintf(" %q", view.Locks.ManualContext)
	}
	parts = append(parts, manual)
	if view.Pending.Present {
		parts = append(parts, fmt.Sprintf("pending %q", view.Pending.Value))
	}
	if view.HasSnapshot {
		parts = append(parts, "updated "+humanize.RelTime(view.SnapshotAt, now, "ago", "from now"))
	} else {
		parts = append(parts, "no snapshot yet")
	}
	mentions := 0
	for _, msg := range view.Chat {
		if msg.IsMention {
			mentions++
		}
	}
	parts = append(parts, fmt.Sprintf("chat %s (%d mentions)", humanize.Comma(int64(len(view.Chat))), mentions))
	if view.Summary.Count > 0 {
		parts = append(parts, fmt.Sprintf("score mean %.2f over %d", view.Summary.Mean, view.Summary.Count))
	}
	if view.Stale {
		parts = append(parts, "stale")
	}
	return strings.Join(parts, " | ")
}

func lockMark(locked bool) string {
	if locked {
		return " [locked]"
	}
	return ""
}
