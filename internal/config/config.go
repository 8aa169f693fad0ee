// Package config holds starbase's environment-driven configuration.
// Defaults are assembled by DefaultConfig and then overridden field-by-field
// by applyEnvOverrides, mirroring the teacher's config/env-override split so
// each recognized variable's precedence is independently testable.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable named in the spec's external-interfaces table.
// Field tags let an optional YAML file (see Load and mergeFile) populate the same
// struct that env overrides fill in, mirroring the teacher's config shape.
type Config struct {
	RemoteToken   string `yaml:"remote_token"`
	StorePath     string `yaml:"store_path"`
	VectorPath    string `yaml:"vector_path"`
	EmbedderURL   string `yaml:"embedder_url"`
	EmbedderModel string `yaml:"embedder_model"`

	FTSWeight      float64 `yaml:"fts_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	GraphWeight    float64 `yaml:"graph_weight"`

	SyncCronDaily  string `yaml:"sync_cron_daily"`
	SyncCronWeekly string `yaml:"sync_cron_weekly"`

	ReadmeMaxChars        int     `yaml:"readme_max_chars"`
	SemanticMinSimilarity float64 `yaml:"semantic_min_similarity"`
	SemanticTopK          int     `yaml:"semantic_top_k"`

	HTTPAddr           string  `yaml:"http_addr"`
	EmbedderBatchSize  int     `yaml:"embedder_batch_size"`
	RemoteMaxRetries   int     `yaml:"remote_max_retries"`
	RemoteRateLimitRPS float64 `yaml:"remote_rate_limit_rps"`
	LogDebug           bool    `yaml:"log_debug"`
}

// DefaultConfig returns the baseline configuration before env overrides.
func DefaultConfig() *Config {
	return &Config{
		StorePath:     "data/starbase.db",
		VectorPath:    "data/vectors",
		EmbedderURL:   "http://localhost:11434",
		EmbedderModel: "embeddinggemma",

		FTSWeight:      0.3,
		SemanticWeight: 0.7,
		GraphWeight:    0.65,

		SyncCronDaily:  "0 2 * * *",
		SyncCronWeekly: "0 3 * * 0",

		ReadmeMaxChars:        500,
		SemanticMinSimilarity: 0.6,
		SemanticTopK:          10,

		HTTPAddr:           ":8080",
		EmbedderBatchSize:  10,
		RemoteMaxRetries:   5,
		RemoteRateLimitRPS: 1.0,
		LogDebug:           false,
	}
}

// Load builds a Config from defaults, an optional YAML file named by
// CONFIG_PATH (silently skipped if unset or missing), and finally the
// process environment, in that increasing order of precedence.
func Load() *Config {
	cfg := DefaultConfig()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "config: ignoring CONFIG_PATH %s: %v\n", path, err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg
}

// mergeFile overlays a YAML document's fields onto an already-populated
// Config; fields the document omits keep their current value.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// applyEnvOverrides reads recognized environment variables and overwrites
// the corresponding fields when present. Unset variables leave defaults (or
// a previously-set field, when called against a non-default Config) intact.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("REMOTE_TOKEN"); v != "" {
		c.RemoteToken = v
	}
	if v := os.Getenv("STORE_PATH"); v != "" {
		c.StorePath = v
	}
	if v := os.Getenv("VECTOR_PATH"); v != "" {
		c.VectorPath = v
	}
	if v := os.Getenv("EMBEDDER_URL"); v != "" {
		c.EmbedderURL = v
	}
	if v := os.Getenv("EMBEDDER_MODEL"); v != "" {
		c.EmbedderModel = v
	}
	if v := getFloat("FTS_WEIGHT"); v != nil {
		c.FTSWeight = *v
	}
	if v := getFloat("SEMANTIC_WEIGHT"); v != nil {
		c.SemanticWeight = *v
	}
	if v := getFloat("GRAPH_WEIGHT"); v != nil {
		c.GraphWeight = *v
	}
	if v := os.Getenv("SYNC_CRON_DAILY"); v != "" {
		c.SyncCronDaily = v
	}
	if v := os.Getenv("SYNC_CRON_WEEKLY"); v != "" {
		c.SyncCronWeekly = v
	}
	if v := getInt("README_MAX_CHARS"); v != nil {
		c.ReadmeMaxChars = *v
	}
	if v := getFloat("SEMANTIC_MIN_SIMILARITY"); v != nil {
		c.SemanticMinSimilarity = *v
	}
	if v := getInt("SEMANTIC_TOP_K"); v != nil {
		c.SemanticTopK = *v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := getInt("EMBEDDER_BATCH_SIZE"); v != nil {
		c.EmbedderBatchSize = *v
	}
	if v := getInt("REMOTE_MAX_RETRIES"); v != nil {
		c.RemoteMaxRetries = *v
	}
	if v := getFloat("REMOTE_RATE_LIMIT_RPS"); v != nil {
		c.RemoteRateLimitRPS = *v
	}
	if v := os.Getenv("LOG_DEBUG"); v != "" {
		c.LogDebug = v == "1" || v == "true"
	}
}

func getFloat(key string) *float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &f
}

func getInt(key string) *int {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &i
}

// Validate returns an error naming the first missing mandatory setting.
// The remote token is intentionally not mandatory: the spec requires an
// unauthenticated low-rate-cap mode when it is absent.
func (c *Config) Validate() error {
	if c.StorePath == "" {
		return fmt.Errorf("STORE_PATH must not be empty")
	}
	if c.SemanticTopK <= 0 {
		return fmt.Errorf("SEMANTIC_TOP_K must be positive")
	}
	return nil
}

// SyncJitter bounds the random delay the scheduler sleeps before running a
// triggered sync (see scheduler.Scheduler.runTracked), kept here rather than
// hard-coded in the scheduler so ops can reason about it alongside the
// other cron settings.
const SyncJitter = 30 * time.Second
