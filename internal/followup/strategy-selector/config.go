// internal/followup/strategy-selector/config.go
package strategyselector

import (
	"time"

	"followup-orchestrator/internal/common/config"
)

type Config struct {
	FreeFormWindow        time.Duration
	FreeFormMinConfidence float64
	GenerationTimeout     time.Duration
	GenerationRetries     int
	RetryDelay            time.Duration
	RegistryTimeout       time.Duration
	DefaultLanguage       string
}

func DefaultConfig() *Config {
	return &Config{
		FreeFormWindow:        24 * time.Hour,
		FreeFormMinConfidence: 0.75,
		GenerationTimeout:     10 * time.Second,
		GenerationRetries:     2,
		RetryDelay:            time.Second,
		RegistryTimeout:       15 * time.Second,
		DefaultLanguage:       "en",
	}
}

func ConfigFrom(s config.StrategyConfig) *Config {
	c := DefaultConfig()
	c.FreeFormWindow = config.GetDuration(s.FreeFormWindow)
	c.FreeFormMinConfidence = s.FreeFormMinConfidence
	c.GenerationTimeout = config.GetDuration(s.GenerationTimeout)
	c.GenerationRetries = s.GenerationRetries
	c.RetryDelay = config.GetDuration(s.RetryDelay)
	if s.DefaultLanguage != "" {
		c.DefaultLanguage = s.DefaultLanguage
	}
	return c
}
