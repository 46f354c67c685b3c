// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Env override like WHATSAPP_TOKEN, SCHEDULER_MAX_RETRIES
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment overlay, optional
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig()

	return finish(viper.GetViper())
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(viper.GetViper())
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Watch re-reads the config file on change and hands the reloaded config to onChange.
// Invalid reloads are reported through onError and otherwise ignored.
func Watch(onChange func(*Config), onError func(error)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		var cfg Config
		if err := viper.Unmarshal(&cfg); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		applyDefaults(&cfg)
		overrideEmptyConfig(&cfg)
		if err := validateConfig(&cfg); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		onChange(&cfg)
	})
	viper.WatchConfig()
}

// Load .env from multiple possible locations
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env", // test/e2e
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// Direct override if secrets are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty(&cfg.WhatsApp.Token, "WHATSAPP_TOKEN")
	setIfEmpty(&cfg.WhatsApp.PhoneNumberID, "WHATSAPP_PHONE_NUMBER_ID")
	setIfEmpty(&cfg.WhatsApp.BusinessAccountID, "WHATSAPP_BUSINESS_ACCOUNT_ID")
	setIfEmpty(&cfg.AI.GenAI.APIKey, "GENAI_API_KEY")
	setIfEmpty(&cfg.AI.Gemini.APIKey, "GEMINI_API_KEY")
	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
}

func setIfEmpty(field *string, envKey string) {
	if *field != "" {
		return
	}
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "followup-orchestrator"
	}

	// Database defaults
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.IndexPrefix == "" {
		cfg.Database.Elasticsearch.IndexPrefix = "followup"
	}

	// Scheduler defaults
	s := &cfg.Scheduler
	defaultInt(&s.ProcessInterval, 5*60*1000)
	defaultInt(&s.DeadSweepInterval, 24*60*60*1000)
	defaultInt(&s.AnalyticsInterval, 60*60*1000)
	defaultInt(&s.HealthInterval, 15*60*1000)
	defaultInt(&s.TemplatePerfInterval, 24*60*60*1000)
	defaultInt(&s.MaxRetries, 3)
	defaultInt(&s.RetryBackoffBase, 5*60*1000)
	defaultInt(&s.RetryBackoffMax, 6*60*60*1000)
	defaultInt(&s.Concurrency, 4)
	defaultInt(&s.TaskTimeout, 60*1000)
	defaultInt(&s.SlowCycleThreshold, 5*60*1000)
	if s.FailureRatioWarn == 0 {
		s.FailureRatioWarn = 0.10
	}
	defaultInt(&s.NoResponseWindow, 7)
	defaultInt(&s.RetentionWindow, 180)
	defaultInt(&s.ErrorThreshold, 10)
	defaultInt(&s.QueueDepthCeiling, 1000)
	defaultInt(&s.MaxSequenceStages, 5)
	defaultInt(&s.ConversationLimit, 20)

	// Decision defaults
	if cfg.Decision.Timezone == "" {
		cfg.Decision.Timezone = "UTC"
	}
	defaultInt(&cfg.Decision.BusinessHoursStart, 9)
	defaultInt(&cfg.Decision.BusinessHoursEnd, 21)
	defaultInt(&cfg.Decision.ResponseWindowSize, 10)

	// Quota defaults
	q := &cfg.Quota
	defaultInt(&q.Limit, 250)
	defaultInt(&q.WarningThreshold, 200)
	defaultInt(&q.TargetFloor, 180)
	defaultInt(&q.UnusedGraceDays, 7)
	defaultInt(&q.UnusedPassCap, 20)
	defaultInt(&q.StaleAgeDays, 90)
	defaultInt(&q.StaleUsageMax, 5)
	defaultInt(&q.StalePassCap, 15)
	if q.LowResponseRate == 0 {
		q.LowResponseRate = 0.20
	}
	defaultInt(&q.LowPerfMinUsage, 10)
	defaultInt(&q.LowPerfPassCap, 10)
	defaultInt(&q.ReservationTTL, 5*60*1000)

	// Strategy defaults
	st := &cfg.Strategy
	defaultInt(&st.FreeFormWindow, 24*60*60*1000)
	if st.FreeFormMinConfidence == 0 {
		st.FreeFormMinConfidence = 0.75
	}
	defaultInt(&st.GenerationTimeout, 10000)
	defaultInt(&st.GenerationRetries, 2)
	defaultInt(&st.RetryDelay, 1000)
	if st.DefaultLanguage == "" {
		st.DefaultLanguage = "en"
	}

	// WhatsApp defaults
	if cfg.WhatsApp.BaseURL == "" {
		cfg.WhatsApp.BaseURL = "https://graph.facebook.com"
	}
	if cfg.WhatsApp.APIVersion == "" {
		cfg.WhatsApp.APIVersion = "v19.0"
	}
	defaultInt(&cfg.WhatsApp.Timeout, 15000)

	// AI defaults
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "http"
	}
	defaultInt(&cfg.AI.GenAI.MaxTokens, 400)
	if cfg.AI.GenAI.Temperature == 0 {
		cfg.AI.GenAI.Temperature = 0.7
	}
	if cfg.AI.Gemini.Model == "" {
		cfg.AI.Gemini.Model = "gemini-2.0-flash"
	}

	if cfg.Notifications.AWS.Region == "" {
		cfg.Notifications.AWS.Region = "us-east-1"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Tracing.Exporter == "" {
		cfg.Tracing.Exporter = "none"
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 0.1
	}
}

func defaultInt(field *int, def int) {
	if *field == 0 {
		*field = def
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Elasticsearch.Enabled && len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required when elasticsearch is enabled")
	}
	if cfg.Database.Redis.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when redis is enabled")
	}

	q := cfg.Quota
	if !(q.TargetFloor < q.WarningThreshold && q.WarningThreshold < q.Limit) {
		return fmt.Errorf("quota thresholds must satisfy target_floor < warning_threshold < limit (got %d/%d/%d)",
			q.TargetFloor, q.WarningThreshold, q.Limit)
	}

	if cfg.Decision.BusinessHoursStart < 0 || cfg.Decision.BusinessHoursEnd > 24 ||
		cfg.Decision.BusinessHoursStart >= cfg.Decision.BusinessHoursEnd {
		return fmt.Errorf("decision business hours must satisfy 0 <= start < end <= 24")
	}
	if _, err := time.LoadLocation(cfg.Decision.Timezone); err != nil {
		return fmt.Errorf("decision.timezone: %w", err)
	}

	if cfg.Scheduler.MaxSequenceStages < 1 {
		return fmt.Errorf("scheduler.max_sequence_stages must be at least 1")
	}

	switch cfg.AI.Provider {
	case "http", "gemini":
	default:
		return fmt.Errorf("ai.provider must be http or gemini, got %q", cfg.AI.Provider)
	}

	switch cfg.Tracing.Exporter {
	case "none", "stdout":
	case "otlp":
		if cfg.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing.endpoint is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("tracing.exporter must be none, stdout or otlp, got %q", cfg.Tracing.Exporter)
	}
	if r := cfg.Tracing.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1], got %v", r)
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
