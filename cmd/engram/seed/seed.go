// Package seedcmder provides the seed command, which stores the demo memory
// corpus through the full store path and reports the resulting store health.
package seedcmder

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/corticalco/engram/pkg/cliui"
	"github.com/corticalco/engram/pkg/config"
	"github.com/corticalco/engram/pkg/demo"
	"github.com/corticalco/engram/pkg/engram"
	"github.com/corticalco/engram/pkg/logger"
	"github.com/corticalco/engram/pkg/memory"
)

const seedLongDesc string = `Seed demo memories through the full store path.

Each record runs through validation, embedding, indexing and event emission,
exercising the complete pipeline. The store is in-memory; seed is a pipeline
demo and smoke check, and prints the store's health report when done.

Examples:
  engram seed
  engram seed --provider mock`

const seedShortDesc string = "Seed demo memories"

type seedCommander struct {
	provider string
}

func NewSeedCmd() *cobra.Command {
	cmder := &seedCommander{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: seedShortDesc,
		Long:  seedLongDesc,
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

func (c *seedCommander) run(ctx context.Context, debug bool, configDir string) error {
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

	var stored int
	if err := cliui.Step(os.Stdout, "Seeding demo memories", func() error {
		var seedErr error
		stored, seedErr = demo.Seed(ctx, sys.Driver)
		return seedErr
	}); err != nil {
		return err
	}

	health, err := sys.Driver.Health(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n  %s Stored %s memories %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(strconv.Itoa(stored)),
		cliui.DimStyle.Render(fmt.Sprintf("(user %s, agent %s)", demo.UserID, demo.AgentID)),
	)
	printHealth(health)
	return nil
}

func printHealth(h *memory.Health) {
	fmt.Printf("  %s\n", cliui.KeyStyle.Render("Store health"))
	fmt.Printf("    memories     %s\n", cliui.ValueStyle.Render(strconv.Itoa(h.TotalRecords)))
	fmt.Printf("    bytes        %s\n", cliui.ValueStyle.Render(strconv.FormatInt(h.StorageBytes, 10)))
	fmt.Printf("    utilization  %s\n", cliui.ValueStyle.Render(fmt.Sprintf("%.1f%%", h.UtilizationPercent)))
	fmt.Printf("    accuracy     %s\n", cliui.ValueStyle.Render(fmt.Sprintf("%.2f", h.AccuracyEstimate)))
	for _, issue := range h.Issues {
		fmt.Printf("    %s %s %s\n",
			cliui.WarnStyle.Render("!"),
			cliui.DimStyle.Render(string(issue.Severity)),
			issue.Description,
		)
	}
	fmt.Println()
}
