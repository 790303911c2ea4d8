package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/erp/seeder/internal/client"
)

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the destination's row counts per table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := a.stats(cmd.Context())
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats, !a.noColor)
			return nil
		},
	}
}

func (a *app) stats(ctx context.Context) (map[string]int64, error) {
	retry := client.DefaultRetryConfig()
	c, err := client.New(a.cfg.Target, &retry, client.WithLogger(a.log.Named("client")))
	if err != nil {
		return nil, err
	}
	if _, err := c.Authenticate(ctx, client.Credentials{
		Username: a.cfg.Auth.Username,
		Password: a.cfg.Auth.Password,
	}, a.cfg.Auth.TokenPath); err != nil {
		return nil, err
	}
	return c.Stats(ctx)
}

func printStats(w io.Writer, stats map[string]int64, useColor bool) {
	head := color.New(color.Bold)
	if !useColor {
		head.DisableColor()
	}
	head.Fprintf(w, "%-24s %10s\n", "TABLE", "ROWS")
	for _, table := range slices.Sorted(maps.Keys(stats)) {
		fmt.Fprintf(w, "%-24s %10d\n", table, stats[table])
	}
}
