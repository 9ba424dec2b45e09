package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pkt.systems/directorsync"
	"pkt.systems/directorsync/internal/appconfig"
	"pkt.systems/directorsync/internal/collab"
	"pkt.systems/pslog"
)

func newCollabClient(cfg appconfig.Config, logger pslog.Logger) (*collab.Client, error) {
	return collab.NewClient(directorsync.ConfigFromApp(cfg).Collab, collab.WithLogger(logger))
}

func newStreamersCmd() *cobra.Command {
	var load loadOptions
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "streamers",
		Short: "List the streamers the director can follow",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(load)
			if err != nil {
				return err
			}
			client, err := newCollabClient(cfg, pslog.Ctx(cmd.Context()))
			if err != nil {
				return err
			}
			list := client.FetchStreamers(cmd.Context())
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tDISPLAY NAME")
			for _, s := range list {
				_, _ = fmt.Fprintf(tw, "%s\t%s\n", s.ID, s.DisplayName)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&load.path, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newCollabCmd() *cobra.Command {
	var load loadOptions
	cmd := &cobra.Command{
		Use:   "collab",
		Short: "Fetch the collaborator debug documents once and print them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(load)
			if err != nil {
				return err
			}
			logger := pslog.Ctx(cmd.Context())
			client, err := newCollabClient(cfg, logger)
			if err != nil {
				return err
			}
			surface := collab.NewSurface(client, logger)
			if err := surface.Refresh(cmd.Context()); err != nil {
				logger.Warn("collab refresh incomplete", "err", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(surface.Status())
		},
	}
	cmd.Flags().StringVarP(&load.path, "config", "c", "", "path to config file")
	return cmd
}
