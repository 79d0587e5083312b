package config

const (
	defaultStorageLimitBytes        = 100 * 1024 * 1024
	defaultSearchLatencyThresholdMs = 100

	defaultSimilarityWeight = 0.6
	defaultImportanceWeight = 0.3
	defaultRecencyWeight    = 0.1
	defaultThreshold        = 0.7
	defaultMaxResults       = 50
	defaultCacheTTLSeconds  = 60
	defaultCacheSize        = 100
	defaultHistorySize      = 1000

	defaultIdleTimeoutMinutes     = 30
	defaultMaxDurationHours       = 24
	defaultWindowMaxSize          = 50
	defaultWindowMaxTokens        = 4000
	defaultWindowStrategy         = "sliding"
	defaultShortTermCap           = 20
	defaultCleanupIntervalSeconds = 60
	defaultPromotionThreshold     = 0.6

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768

	defaultPersistProvider = "nop"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Memory: MemoryConfig{
			StorageLimitBytes:        defaultStorageLimitBytes,
			SearchLatencyThresholdMs: defaultSearchLatencyThresholdMs,
		},
		Search: SearchConfig{
			SimilarityWeight: defaultSimilarityWeight,
			ImportanceWeight: defaultImportanceWeight,
			RecencyWeight:    defaultRecencyWeight,
			Threshold:        defaultThreshold,
			MaxResults:       defaultMaxResults,
			CacheTTLSeconds:  defaultCacheTTLSeconds,
			CacheSize:        defaultCacheSize,
			HistorySize:      defaultHistorySize,
		},
		Session: SessionConfig{
			IdleTimeoutMinutes:     defaultIdleTimeoutMinutes,
			MaxDurationHours:       defaultMaxDurationHours,
			WindowMaxSize:          defaultWindowMaxSize,
			WindowMaxTokens:        defaultWindowMaxTokens,
			WindowStrategy:         defaultWindowStrategy,
			ShortTermCap:           defaultShortTermCap,
			CleanupIntervalSeconds: defaultCleanupIntervalSeconds,
			PromotionThreshold:     defaultPromotionThreshold,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Persist: PersistConfig{
			Provider: defaultPersistProvider,
		},
	}
}
