package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent engram configuration stored as config.toml
// in the .engram/ directory. The TOML layout uses sections for logical
// grouping.
type Config struct {
	Version   int             `toml:"version"`
	Memory    MemoryConfig    `toml:"memory"`
	Search    SearchConfig    `toml:"search"`
	Session   SessionConfig   `toml:"session"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Persist   PersistConfig   `toml:"persist"`
}

// MemoryConfig holds memory store settings.
type MemoryConfig struct {
	// StorageLimitBytes caps the store's estimated footprint.
	StorageLimitBytes int64 `toml:"storage_limit_bytes,omitempty"`

	// SearchLatencyThresholdMs is the health-check latency threshold.
	SearchLatencyThresholdMs int `toml:"search_latency_threshold_ms,omitempty"`
}

// SearchConfig holds re-ranking and cache settings.
type SearchConfig struct {
	SimilarityWeight float64 `toml:"similarity_weight,omitempty"`
	ImportanceWeight float64 `toml:"importance_weight,omitempty"`
	RecencyWeight    float64 `toml:"recency_weight,omitempty"`
	Threshold        float64 `toml:"threshold,omitempty"`
	MaxResults       int     `toml:"max_results,omitempty"`
	CacheTTLSeconds  int     `toml:"cache_ttl_seconds,omitempty"`
	CacheSize        int     `toml:"cache_size,omitempty"`
	HistorySize      int     `toml:"history_size,omitempty"`
}

// SessionConfig holds session manager settings.
type SessionConfig struct {
	IdleTimeoutMinutes     int     `toml:"idle_timeout_minutes,omitempty"`
	MaxDurationHours       int     `toml:"max_duration_hours,omitempty"`
	WindowMaxSize          int     `toml:"window_max_size,omitempty"`
	WindowMaxTokens        int     `toml:"window_max_tokens,omitempty"`
	WindowStrategy         string  `toml:"window_strategy,omitempty"`
	ShortTermCap           int     `toml:"short_term_cap,omitempty"`
	CleanupIntervalSeconds int     `toml:"cleanup_interval_seconds,omitempty"`
	PromotionThreshold     float64 `toml:"promotion_threshold,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// PersistConfig holds session persistence settings.
type PersistConfig struct {
	Provider   string `toml:"provider,omitempty"`
	SQLitePath string `toml:"sqlite_path,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func intKey(get func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			n := *get(c)
			if n == 0 {
				return ""
			}
			return strconv.Itoa(n)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid integer value %q: %w", v, err)
			}
			*get(c) = n
			return nil
		},
	}
}

func floatKey(get func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			f := *get(c)
			if f == 0 {
				return ""
			}
			return strconv.FormatFloat(f, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid float value %q: %w", v, err)
			}
			*get(c) = f
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"memory.storage_limit_bytes": {
		get: func(c *Config) string {
			if c.Memory.StorageLimitBytes == 0 {
				return ""
			}
			return strconv.FormatInt(c.Memory.StorageLimitBytes, 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for memory.storage_limit_bytes: %w", err)
			}
			c.Memory.StorageLimitBytes = n
			return nil
		},
	},
	"memory.search_latency_threshold_ms": intKey(func(c *Config) *int { return &c.Memory.SearchLatencyThresholdMs }),

	"search.similarity_weight": floatKey(func(c *Config) *float64 { return &c.Search.SimilarityWeight }),
	"search.importance_weight": floatKey(func(c *Config) *float64 { return &c.Search.ImportanceWeight }),
	"search.recency_weight":    floatKey(func(c *Config) *float64 { return &c.Search.RecencyWeight }),
	"search.threshold":         floatKey(func(c *Config) *float64 { return &c.Search.Threshold }),
	"search.max_results":       intKey(func(c *Config) *int { return &c.Search.MaxResults }),
	"search.cache_ttl_seconds": intKey(func(c *Config) *int { return &c.Search.CacheTTLSeconds }),
	"search.cache_size":        intKey(func(c *Config) *int { return &c.Search.CacheSize }),
	"search.history_size":      intKey(func(c *Config) *int { return &c.Search.HistorySize }),

	"session.idle_timeout_minutes":     intKey(func(c *Config) *int { return &c.Session.IdleTimeoutMinutes }),
	"session.max_duration_hours":       intKey(func(c *Config) *int { return &c.Session.MaxDurationHours }),
	"session.window_max_size":          intKey(func(c *Config) *int { return &c.Session.WindowMaxSize }),
	"session.window_max_tokens":        intKey(func(c *Config) *int { return &c.Session.WindowMaxTokens }),
	"session.short_term_cap":           intKey(func(c *Config) *int { return &c.Session.ShortTermCap }),
	"session.cleanup_interval_seconds": intKey(func(c *Config) *int { return &c.Session.CleanupIntervalSeconds }),
	"session.promotion_threshold":      floatKey(func(c *Config) *float64 { return &c.Session.PromotionThreshold }),
	"session.window_strategy": {
		get: func(c *Config) string { return c.Session.WindowStrategy },
		set: func(c *Config, v string) error { c.Session.WindowStrategy = v; return nil },
	},

	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},

	"persist.provider": {
		get: func(c *Config) string { return c.Persist.Provider },
		set: func(c *Config, v string) error { c.Persist.Provider = v; return nil },
	},
	"persist.sqlite_path": {
		get: func(c *Config) string { return c.Persist.SQLitePath },
		set: func(c *Config, v string) error { c.Persist.SQLitePath = v; return nil },
	},
}
