// Package configcmder provides the config command for managing persistent
// engram configuration stored in the .engram/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent engram configuration.

Configuration is stored as config.toml in the .engram/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  memory.storage_limit_bytes, memory.search_latency_threshold_ms,
  search.similarity_weight, search.importance_weight, search.recency_weight,
  search.threshold, search.max_results, search.cache_ttl_seconds, search.cache_size,
  search.history_size,
  session.idle_timeout_minutes, session.max_duration_hours,
  session.window_max_size, session.window_max_tokens, session.window_strategy,
  session.short_term_cap, session.cleanup_interval_seconds,
  session.promotion_threshold,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  persist.provider, persist.sqlite_path

Use subcommands to get, set, or list configuration values:
  engram config set <key> <value>    Set a configuration value
  engram config get <key>            Get a configuration value
  engram config list                 List all configuration values

Examples:
  engram config set embedding.provider mock
  engram config set search.threshold 0.5
  engram config get session.short_term_cap
  engram config list`

const configShortDesc string = "Manage persistent engram configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
