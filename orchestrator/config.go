// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects how the tool surface exposes providers.
type Mode string

const (
	// ModeDirect exposes each back-end as its own tool and keeps
	// smaller in-memory footprints (on-demand operation).
	ModeDirect Mode = "direct"

	// ModeUnified routes everything through the orchestrator.
	ModeUnified Mode = "unified"
)

// Defaults for tunables that environment variables may override.
const (
	DefaultFallbackDelay    = 500 * time.Millisecond
	DefaultBreakerThreshold = 5
	DefaultBreakerTimeout   = 60 * time.Second
	DefaultMaxHistory       = 1000
	DefaultSaveThrottle     = 5 * time.Second

	// Direct (on-demand) mode keeps less state and flushes sooner.
	DirectModeMaxHistory   = 100
	DirectModeSaveThrottle = time.Second

	defaultProviderRetries = 2
	defaultProviderTimeout = 30 * time.Second
)

// Env var ranges: invalid values are logged and ignored.
const (
	minFallbackDelayMS = 0
	maxFallbackDelayMS = 10000
	minBreakerThresh   = 1
	maxBreakerThresh   = 20
	minBreakerTimeout  = 10000
	maxBreakerTimeout  = 3600000
)

// ProviderSettings is the per-provider configuration block.
type ProviderSettings struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	Priority     int           `yaml:"priority" json:"priority"`
	PreferredFor []string      `yaml:"preferred_for" json:"preferred_for,omitempty"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
}

// Config holds orchestration configuration: mode, provider ordering,
// enablement and the fallback/breaker parameters. All mutations go
// through setters so overrides can be persisted consistently.
type Config struct {
	mu sync.RWMutex

	mode            Mode
	providers       map[string]*ProviderSettings
	searchOrder     []string
	aiResponseOrder []string

	fallbackEnabled  bool
	fallbackDelay    time.Duration
	breakerThreshold int
	breakerTimeout   time.Duration

	maxHistory   int
	saveThrottle time.Duration
	stateDir     string
	redisAddr    string
	archiveDSN   string

	onMutate func()
	logger   *log.Logger
}

// NewConfig returns the default configuration.
func NewConfig() *Config {
	c := &Config{
		mode:             ModeUnified,
		providers:        make(map[string]*ProviderSettings),
		searchOrder:      []string{"tavily", "brave", "kagi", "exa"},
		aiResponseOrder:  []string{"perplexity", "kagi_fastgpt"},
		fallbackEnabled:  true,
		fallbackDelay:    DefaultFallbackDelay,
		breakerThreshold: DefaultBreakerThreshold,
		breakerTimeout:   DefaultBreakerTimeout,
		maxHistory:       DefaultMaxHistory,
		saveThrottle:     DefaultSaveThrottle,
		logger:           log.New(os.Stdout, "[CONFIG] ", log.LstdFlags),
	}
	for _, name := range append(append([]string{}, c.searchOrder...), c.aiResponseOrder...) {
		c.providers[name] = &ProviderSettings{
			Enabled:    true,
			Priority:   len(c.providers) + 1,
			MaxRetries: defaultProviderRetries,
			Timeout:    defaultProviderTimeout,
		}
	}
	return c
}

// LoadFromEnv applies OMNISEARCH_* environment overrides. Invalid
// numeric values are logged and ignored, keeping the defaults.
func (c *Config) LoadFromEnv() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("OMNISEARCH_MODE"); v != "" {
		switch Mode(v) {
		case ModeDirect, ModeUnified:
			c.mode = Mode(v)
		default:
			c.logger.Printf("invalid OMNISEARCH_MODE %q, keeping %q", v, c.mode)
		}
	}
	if c.mode == ModeDirect {
		c.maxHistory = DirectModeMaxHistory
		c.saveThrottle = DirectModeSaveThrottle
	}

	if v := os.Getenv("OMNISEARCH_PROVIDER_ORDER"); v != "" {
		c.searchOrder = splitCSV(v)
	}
	if v := os.Getenv("OMNISEARCH_AI_PROVIDER_ORDER"); v != "" {
		c.aiResponseOrder = splitCSV(v)
	}
	if v := os.Getenv("OMNISEARCH_DISABLED_PROVIDERS"); v != "" {
		for _, name := range splitCSV(v) {
			c.settings(name).Enabled = false
		}
	}
	if v := os.Getenv("OMNISEARCH_FALLBACK_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.fallbackEnabled = b
		} else {
			c.logger.Printf("invalid OMNISEARCH_FALLBACK_ENABLED %q, keeping %v", v, c.fallbackEnabled)
		}
	}

	c.loadIntEnv("OMNISEARCH_FALLBACK_DELAY_MS", minFallbackDelayMS, maxFallbackDelayMS, func(n int) {
		c.fallbackDelay = time.Duration(n) * time.Millisecond
	})
	c.loadIntEnv("OMNISEARCH_CIRCUIT_BREAKER_THRESHOLD", minBreakerThresh, maxBreakerThresh, func(n int) {
		c.breakerThreshold = n
	})
	c.loadIntEnv("OMNISEARCH_CIRCUIT_BREAKER_TIMEOUT_MS", minBreakerTimeout, maxBreakerTimeout, func(n int) {
		c.breakerTimeout = time.Duration(n) * time.Millisecond
	})
	c.loadIntEnv("OMNISEARCH_MAX_HISTORY", 1, 1000000, func(n int) {
		c.maxHistory = n
	})
	c.loadIntEnv("OMNISEARCH_SAVE_THROTTLE_MS", 0, 3600000, func(n int) {
		c.saveThrottle = time.Duration(n) * time.Millisecond
	})

	c.stateDir = os.Getenv("OMNISEARCH_STATE_DIR")
	c.redisAddr = os.Getenv("OMNISEARCH_REDIS_ADDR")
	c.archiveDSN = os.Getenv("OMNISEARCH_ARCHIVE_DSN")
}

// loadIntEnv parses an integer env var within [lo, hi] and applies it;
// out-of-range or unparseable values are logged and ignored.
// Caller must hold c.mu.
func (c *Config) loadIntEnv(key string, lo, hi int, apply func(int)) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		c.logger.Printf("invalid %s %q (want %d..%d), keeping default", key, v, lo, hi)
		return
	}
	apply(n)
}

// configFile is the YAML shape of OMNISEARCH_CONFIG_FILE.
type configFile struct {
	Providers map[string]struct {
		Enabled      *bool    `yaml:"enabled"`
		Priority     *int     `yaml:"priority"`
		PreferredFor []string `yaml:"preferred_for"`
		MaxRetries   *int     `yaml:"max_retries"`
		TimeoutMS    *int     `yaml:"timeout_ms"`
	} `yaml:"providers"`
}

// LoadFile applies per-provider settings from a YAML file. File
// settings apply before env overrides.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var parsed configFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for name, entry := range parsed.Providers {
		s := c.settings(name)
		if entry.Enabled != nil {
			s.Enabled = *entry.Enabled
		}
		if entry.Priority != nil {
			s.Priority = *entry.Priority
		}
		if entry.PreferredFor != nil {
			s.PreferredFor = entry.PreferredFor
		}
		if entry.MaxRetries != nil {
			s.MaxRetries = *entry.MaxRetries
		}
		if entry.TimeoutMS != nil {
			s.Timeout = time.Duration(*entry.TimeoutMS) * time.Millisecond
		}
	}
	return nil
}

// settings returns the settings block for name, creating defaults
// lazily. Caller must hold c.mu.
func (c *Config) settings(name string) *ProviderSettings {
	if s, ok := c.providers[name]; ok {
		return s
	}
	s := &ProviderSettings{
		Enabled:    true,
		Priority:   len(c.providers) + 1,
		MaxRetries: defaultProviderRetries,
		Timeout:    defaultProviderTimeout,
	}
	c.providers[name] = s
	return s
}

// SetOnMutate registers the save scheduler run after every setter.
func (c *Config) SetOnMutate(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMutate = fn
}

func (c *Config) mutated() {
	if c.onMutate != nil {
		c.onMutate()
	}
}

// Mode returns the current operating mode.
func (c *Config) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// SetMode switches the operating mode.
func (c *Config) SetMode(m Mode) error {
	if m != ModeDirect && m != ModeUnified {
		return fmt.Errorf("invalid mode %q", m)
	}
	c.mu.Lock()
	c.mode = m
	fn := c.onMutate
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

// Order returns the configured priority order for a category.
func (c *Config) Order(category Category) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var src []string
	if category == CategoryAIResponse {
		src = c.aiResponseOrder
	} else {
		src = c.searchOrder
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// SetOrder replaces the priority order for a category.
func (c *Config) SetOrder(category Category, order []string) {
	c.mu.Lock()
	cloned := make([]string, len(order))
	copy(cloned, order)
	if category == CategoryAIResponse {
		c.aiResponseOrder = cloned
	} else {
		c.searchOrder = cloned
	}
	fn := c.onMutate
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// IsEnabled reports whether a provider is enabled. Providers never
// configured are enabled by default.
func (c *Config) IsEnabled(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.providers[name]; ok {
		return s.Enabled
	}
	return true
}

// SetEnabled flips a provider's enablement.
func (c *Config) SetEnabled(name string, enabled bool) {
	c.mu.Lock()
	c.settings(name).Enabled = enabled
	fn := c.onMutate
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// FallbackEnabled reports whether the fallback loop iterates past the
// first provider.
func (c *Config) FallbackEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fallbackEnabled
}

// SetFallbackEnabled toggles the fallback loop.
func (c *Config) SetFallbackEnabled(enabled bool) {
	c.mu.Lock()
	c.fallbackEnabled = enabled
	fn := c.onMutate
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// FallbackDelay is the pause between provider switches.
func (c *Config) FallbackDelay() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fallbackDelay
}

// BreakerThreshold is the consecutive-failure count that opens the
// circuit breaker.
func (c *Config) BreakerThreshold() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.breakerThreshold
}

// BreakerTimeout is how long an open breaker excludes a provider.
func (c *Config) BreakerTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.breakerTimeout
}

// SetBreakerParams updates the circuit-breaker threshold and timeout.
func (c *Config) SetBreakerParams(threshold int, timeout time.Duration) {
	c.mu.Lock()
	c.breakerThreshold = threshold
	c.breakerTimeout = timeout
	fn := c.onMutate
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// MaxHistory is the performance-record cap.
func (c *Config) MaxHistory() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxHistory
}

// SaveThrottle is the minimum spacing between snapshot writes.
func (c *Config) SaveThrottle() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saveThrottle
}

// StateDir is the snapshot directory override, if any.
func (c *Config) StateDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateDir
}

// RedisAddr is the optional Redis state-store address.
func (c *Config) RedisAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.redisAddr
}

// ArchiveDSN is the optional Postgres archive connection string.
func (c *Config) ArchiveDSN() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.archiveDSN
}

// Settings returns a copy of a provider's settings block.
func (c *Config) Settings(name string) ProviderSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.settings(name)
}

// AllSettings returns a copy of every provider settings block.
func (c *Config) AllSettings() map[string]ProviderSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]ProviderSettings, len(c.providers))
	for name, s := range c.providers {
		out[name] = *s
	}
	return out
}

// GetPreferredProviderForQuery returns the first available provider
// whose preferred_for keywords substring-match the query, or the first
// available provider when none match.
func (c *Config) GetPreferredProviderForQuery(query string, available []string) string {
	if len(available) == 0 {
		return ""
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	lowered := strings.ToLower(query)
	for _, name := range available {
		s, ok := c.providers[name]
		if !ok {
			continue
		}
		for _, kw := range s.PreferredFor {
			if kw != "" && strings.Contains(lowered, strings.ToLower(kw)) {
				return name
			}
		}
	}
	return available[0]
}

// Overrides captures the mutable configuration for the snapshot.
func (c *Config) Overrides() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var disabled []string
	for name, s := range c.providers {
		if !s.Enabled {
			disabled = append(disabled, name)
		}
	}
	sort.Strings(disabled)

	return map[string]interface{}{
		"mode":               string(c.mode),
		"search_order":       append([]string{}, c.searchOrder...),
		"ai_response_order":  append([]string{}, c.aiResponseOrder...),
		"disabled_providers": disabled,
		"fallback_enabled":   c.fallbackEnabled,
	}
}

// ApplyOverrides restores persisted configuration overrides. Unknown
// keys are ignored so older snapshots stay loadable.
func (c *Config) ApplyOverrides(overrides map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := overrides["mode"].(string); ok {
		if m := Mode(v); m == ModeDirect || m == ModeUnified {
			c.mode = m
		}
	}
	if v, ok := overrides["search_order"]; ok {
		if order := toStringSlice(v); order != nil {
			c.searchOrder = order
		}
	}
	if v, ok := overrides["ai_response_order"]; ok {
		if order := toStringSlice(v); order != nil {
			c.aiResponseOrder = order
		}
	}
	if v, ok := overrides["disabled_providers"]; ok {
		for _, name := range toStringSlice(v) {
			c.settings(name).Enabled = false
		}
	}
	if v, ok := overrides["fallback_enabled"].(bool); ok {
		c.fallbackEnabled = v
	}
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// toStringSlice converts either []string or the []interface{} produced
// by JSON round-trips.
func toStringSlice(v interface{}) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
