// Package searchcmder provides the search command for semantic search over
// memories.
package searchcmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corticalco/engram/pkg/cliui"
	"github.com/corticalco/engram/pkg/config"
	"github.com/corticalco/engram/pkg/demo"
	"github.com/corticalco/engram/pkg/engram"
	"github.com/corticalco/engram/pkg/logger"
	"github.com/corticalco/engram/pkg/memory"
	"github.com/corticalco/engram/pkg/utils"
)

const searchLongDesc string = `Search memories with semantic re-ranking.

Seeds the demo corpus into an in-memory store, then runs the query through
the full search path: embedding, similarity scoring, weighted re-ranking and
caching. Results are ranked by the blend of similarity, importance and
recency.

Examples:
  engram search "logging configuration"
  engram search "deploy process" --type workflow --limit 3
  engram search "database" --threshold 0.2`

const searchShortDesc string = "Search memories"

type searchCommander struct {
	userID    string
	agentID   string
	memType   string
	limit     int
	threshold float64
	provider  string
}

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd.Context(), args[0], debug, configDir)
		},
	}

	cmd.Flags().StringVarP(&cmder.userID, "user", "u", demo.UserID, "Scope to a user id")
	cmd.Flags().StringVarP(&cmder.agentID, "agent", "a", "", "Scope to an agent id")
	cmd.Flags().StringVarP(&cmder.memType, "type", "t", "", "Filter by memory type")
	cmd.Flags().IntVarP(&cmder.limit, "limit", "l", 10, "Maximum results")
	cmd.Flags().Float64Var(&cmder.threshold, "threshold", 0, "Minimum relevance score (0 uses the configured default)")
	cmd.Flags().StringVarP(&cmder.provider, "provider", "p", "mock", "Embedding provider (mock, ollama)")

	return cmd
}

func (c *searchCommander) run(ctx context.Context, queryText string, debug bool, configDir string) error {
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
	if c.threshold > 0 {
		cfg.Search.Threshold = c.threshold
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

	query := &memory.Query{
		Text:    queryText,
		UserID:  c.userID,
		AgentID: c.agentID,
		Limit:   c.limit,
	}
	if c.memType != "" {
		t := memory.Type(c.memType)
		if !t.Valid() {
			return fmt.Errorf("invalid memory type: %q", c.memType)
		}
		query.Types = []memory.Type{t}
	}

	result, err := sys.Searcher.Search(ctx, query, nil)
	if err != nil {
		return err
	}

	if len(result.Records) == 0 {
		fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("No memories matched."))
		return nil
	}

	fmt.Printf("\n  %s %s\n\n",
		cliui.KeyStyle.Render(fmt.Sprintf("%d results", len(result.Records))),
		cliui.DimStyle.Render(fmt.Sprintf("(%s)", cliui.FormatDuration(result.ExecutionTime))),
	)
	for i, scored := range result.Records {
		fmt.Printf("  %s %s %s\n",
			cliui.NameStyle.Render(fmt.Sprintf("%d.", i+1)),
			cliui.ValueStyle.Render(utils.Truncate(scored.Record.Content, 80)),
			cliui.DimStyle.Render(fmt.Sprintf("[%s score=%.3f sim=%.3f]",
				scored.Record.Type, scored.Relevance, scored.Similarity)),
		)
		if len(scored.Record.Tags) > 0 {
			fmt.Printf("     %s\n", cliui.DimStyle.Render("tags: "+strings.Join(scored.Record.Tags, ", ")))
		}
	}
	fmt.Println()

	return nil
}
