package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/corticalco/engram/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .engram/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Always set targetPath when the directory exists so SaveConfig
	// can create or overwrite the file.
	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns the sorted list of all supported configuration key names.
func ValidConfigKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// ParseConfigTOML decodes a config.toml document, rejecting unknown keys.
func ParseConfigTOML(data []byte) (*Config, error) {
	var cfg Config
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config key: %q", undecoded[0].String())
	}
	return &cfg, nil
}

// LoadConfig loads the configuration from config.toml in the target .engram/
// directory. If the file does not exist, returns NewDefaultConfig() so
// callers always receive a fully-populated Config with sane defaults. Fields
// explicitly set in the file override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	// Merge in defaults: fill in any zero-value fields from the loaded config
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	if cfg.Memory.StorageLimitBytes == 0 {
		cfg.Memory.StorageLimitBytes = defaults.Memory.StorageLimitBytes
	}
	if cfg.Memory.SearchLatencyThresholdMs == 0 {
		cfg.Memory.SearchLatencyThresholdMs = defaults.Memory.SearchLatencyThresholdMs
	}

	if cfg.Search.SimilarityWeight == 0 {
		cfg.Search.SimilarityWeight = defaults.Search.SimilarityWeight
	}
	if cfg.Search.ImportanceWeight == 0 {
		cfg.Search.ImportanceWeight = defaults.Search.ImportanceWeight
	}
	if cfg.Search.RecencyWeight == 0 {
		cfg.Search.RecencyWeight = defaults.Search.RecencyWeight
	}
	if cfg.Search.Threshold == 0 {
		cfg.Search.Threshold = defaults.Search.Threshold
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = defaults.Search.MaxResults
	}
	if cfg.Search.CacheTTLSeconds == 0 {
		cfg.Search.CacheTTLSeconds = defaults.Search.CacheTTLSeconds
	}
	if cfg.Search.CacheSize == 0 {
		cfg.Search.CacheSize = defaults.Search.CacheSize
	}

	if cfg.Session.IdleTimeoutMinutes == 0 {
		cfg.Session.IdleTimeoutMinutes = defaults.Session.IdleTimeoutMinutes
	}
	if cfg.Session.MaxDurationHours == 0 {
		cfg.Session.MaxDurationHours = defaults.Session.MaxDurationHours
	}
	if cfg.Session.WindowMaxSize == 0 {
		cfg.Session.WindowMaxSize = defaults.Session.WindowMaxSize
	}
	if cfg.Session.WindowMaxTokens == 0 {
		cfg.Session.WindowMaxTokens = defaults.Session.WindowMaxTokens
	}
	if cfg.Session.WindowStrategy == "" {
		cfg.Session.WindowStrategy = defaults.Session.WindowStrategy
	}
	if cfg.Session.ShortTermCap == 0 {
		cfg.Session.ShortTermCap = defaults.Session.ShortTermCap
	}
	if cfg.Session.CleanupIntervalSeconds == 0 {
		cfg.Session.CleanupIntervalSeconds = defaults.Session.CleanupIntervalSeconds
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = defaults.Embedding.Provider
	}
	if cfg.Embedding.Target == "" {
		cfg.Embedding.Target = defaults.Embedding.Target
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = defaults.Embedding.Model
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = defaults.Embedding.Dimensions
	}

	if cfg.Persist.Provider == "" {
		cfg.Persist.Provider = defaults.Persist.Provider
	}
}

// SaveConfig persists the configuration to config.toml in the target
// .engram/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}
