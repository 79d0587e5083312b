// Package statscmder provides the stats command, a health and performance
// report for the memory store.
package statscmder

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/corticalco/engram/pkg/cliui"
	"github.com/corticalco/engram/pkg/config"
	"github.com/corticalco/engram/pkg/demo"
	"github.com/corticalco/engram/pkg/engram"
	"github.com/corticalco/engram/pkg/logger"
	"github.com/corticalco/engram/pkg/memory"
)

const statsLongDesc string = `Report store health and performance metrics.

Seeds the demo corpus, exercises the store and search paths, and prints the
health report plus operation latency percentiles.

Examples:
  engram stats
  engram stats --provider mock`

const statsShortDesc string = "Health and performance report"

type statsCommander struct {
	provider string
}

func NewStatsCmd() *cobra.Command {
	cmder := &statsCommander{}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: statsShortDesc,
		Long:  statsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd.Context(), debug, configDir)
		},
	}

	cmd.Flags().StringVarP(&cmder.provider, "provider", "p", "mock", "Embedding provider (mock, ollama)")

	return cmd
}

func (c *statsCommander) run(ctx context.Context, debug bool, configDir string) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg, err := cfger.LoadConfig()
	if err != nil {
		return err
	}
	if c.provider != "" {
		cfg.Embedding.Provider = c.provider
	}

	log := logger.NewLogger(debug)
	defer log.Sync() //nolint:errcheck

	sys, err := engram.New(cfg, log)
	if err != nil {
		return err
	}
	defer sys.Close(ctx) //nolint:errcheck

	if _, err := demo.Seed(ctx, sys.Driver); err != nil {
		return fmt.Errorf("seeding demo corpus: %w", err)
	}

	// One search and one retrieve so the latency windows have samples.
	if _, err := sys.Searcher.Search(ctx, &memory.Query{
		Text:   "workflow",
		UserID: demo.UserID,
		Limit:  5,
	}, nil); err != nil {
		return err
	}

	health, err := sys.Driver.Health(ctx)
	if err != nil {
		return err
	}
	metrics, err := sys.Driver.Metrics(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n  %s\n", cliui.KeyStyle.Render("Health"))
	fmt.Printf("    memories     %s\n", cliui.ValueStyle.Render(strconv.Itoa(health.TotalRecords)))
	fmt.Printf("    bytes        %s\n", cliui.ValueStyle.Render(strconv.FormatInt(health.StorageBytes, 10)))
	fmt.Printf("    utilization  %s\n", cliui.ValueStyle.Render(fmt.Sprintf("%.2f%%", health.UtilizationPercent)))
	fmt.Printf("    search avg   %s\n", cliui.ValueStyle.Render(health.AvgSearchLatency.String()))
	fmt.Printf("    accuracy     %s\n", cliui.ValueStyle.Render(fmt.Sprintf("%.2f", health.AccuracyEstimate)))
	for _, issue := range health.Issues {
		fmt.Printf("    %s %s %s\n",
			cliui.WarnStyle.Render("!"),
			cliui.DimStyle.Render(string(issue.Severity)),
			issue.Description,
		)
	}

	fmt.Printf("\n  %s\n", cliui.KeyStyle.Render("Latency"))
	printLatency("store", metrics.Store)
	printLatency("retrieve", metrics.Retrieve)

	fmt.Printf("\n  %s\n", cliui.KeyStyle.Render("Storage"))
	fmt.Printf("    avg bytes/record  %s\n", cliui.ValueStyle.Render(fmt.Sprintf("%.0f", metrics.AvgBytesPerRecord)))
	for user, bytes := range metrics.BytesPerUser {
		fmt.Printf("    %-17s %s\n", user, cliui.ValueStyle.Render(strconv.FormatInt(bytes, 10)))
	}
	fmt.Println()

	return nil
}

func printLatency(name string, stats memory.LatencyStats) {
	if stats.Samples == 0 {
		fmt.Printf("    %-9s %s\n", name, cliui.DimStyle.Render("no samples"))
		return
	}
	fmt.Printf("    %-9s p50=%s p95=%s p99=%s avg=%s %s\n",
		name,
		cliui.ValueStyle.Render(stats.P50.String()),
		cliui.ValueStyle.Render(stats.P95.String()),
		cliui.ValueStyle.Render(stats.P99.String()),
		cliui.ValueStyle.Render(stats.Avg.String()),
		cliui.DimStyle.Render(fmt.Sprintf("(%d samples)", stats.Samples)),
	)
}
