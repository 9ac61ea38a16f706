package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"brainmap/pkg/config"
	"brainmap/pkg/regions"
)

// regionInfo is one row of the regions listing.
type regionInfo struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Color       string   `json:"color"`
	Aliases     []string `json:"aliases,omitempty"`
}

func (a *app) regionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List the brain regions a request may name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table := regions.Default()

			aliases := make(map[string][]string)
			for _, pair := range table.Aliases() {
				aliases[pair[1]] = append(aliases[pair[1]], pair[0])
			}

			var out []regionInfo
			for _, r := range table.Regions() {
				out = append(out, regionInfo{
					Name:        r.Name,
					Label:       r.Label,
					Description: r.Description,
					Color:       r.Color,
					Aliases:     aliases[r.Name],
				})
			}

			data, err := json.Marshal(out)
			if err != nil {
				return a.fail("Failed to encode regions", err)
			}
			_, err = fmt.Fprintln(a.stdout, string(data))
			return err
		},
	}
}

func (a *app) fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Download the anatomical template into the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			defer cancel()

			path, err := newStore(a.cfg, a.logger).Ensure(ctx)
			if err != nil {
				return a.fail("Failed to fetch template", err)
			}
			a.logger.Info("Template ready", zap.String("path", path))
			return nil
		},
	}
}

func (a *app) initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write the default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return a.fail("Failed to write config", err)
			}
			a.logger.Info("Wrote default config", zap.String("path", path))
			return nil
		},
	}
}
