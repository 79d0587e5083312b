// Package engramcmder
package engramcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/corticalco/engram/cmd/engram/config"
	searchcmder "github.com/corticalco/engram/cmd/engram/search"
	seedcmder "github.com/corticalco/engram/cmd/engram/seed"
	statscmder "github.com/corticalco/engram/cmd/engram/stats"
	versioncmder "github.com/corticalco/engram/cmd/version"
)

const engramLongDesc string = `Engram is a memory and context subsystem for agents.

Work with a memory store using:
  engram seed             Seed demo memories
  engram search <query>   Semantic search over memories
  engram stats            Health and performance report
  engram config           Manage persistent configuration`

const engramShortDesc string = "Engram - Agent Memory"

func NewEngramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engram",
		Short: engramShortDesc,
		Long:  engramLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .engram/ config directory")

	// Add subcommands
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(seedcmder.NewSeedCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(statscmder.NewStatsCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
