// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Scheduler     SchedulerConfig    `mapstructure:"scheduler"`
	Decision      DecisionConfig     `mapstructure:"decision"`
	Quota         QuotaConfig        `mapstructure:"quota"`
	Strategy      StrategyConfig     `mapstructure:"strategy"`
	WhatsApp      WhatsAppConfig     `mapstructure:"whatsapp"`
	AI            AIConfig           `mapstructure:"ai"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Server        ServerConfig       `mapstructure:"server"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Tracing       TracingConfig      `mapstructure:"tracing"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Addresses   []string `mapstructure:"addresses"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	IndexPrefix string   `mapstructure:"index_prefix"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Follow-up Core Configuration ---

// SchedulerConfig holds job intervals and processing limits. Durations are milliseconds.
type SchedulerConfig struct {
	ProcessInterval      int     `mapstructure:"process_interval"`
	DeadSweepInterval    int     `mapstructure:"dead_sweep_interval"`
	AnalyticsInterval    int     `mapstructure:"analytics_interval"`
	HealthInterval       int     `mapstructure:"health_interval"`
	TemplatePerfInterval int     `mapstructure:"template_perf_interval"`
	MaxRetries           int     `mapstructure:"max_retries"`
	RetryBackoffBase     int     `mapstructure:"retry_backoff_base"`
	RetryBackoffMax      int     `mapstructure:"retry_backoff_max"`
	Concurrency          int     `mapstructure:"concurrency"`
	TaskTimeout          int     `mapstructure:"task_timeout"`
	SlowCycleThreshold   int     `mapstructure:"slow_cycle_threshold"`
	FailureRatioWarn     float64 `mapstructure:"failure_ratio_warn"`
	NoResponseWindow     int     `mapstructure:"no_response_window"`
	RetentionWindow      int     `mapstructure:"retention_window"`
	ErrorThreshold       int     `mapstructure:"error_threshold"`
	QueueDepthCeiling    int     `mapstructure:"queue_depth_ceiling"`
	MaxSequenceStages    int     `mapstructure:"max_sequence_stages"`
	ConversationLimit    int     `mapstructure:"conversation_limit"`
	DistributedLocks     bool    `mapstructure:"distributed_locks"`
}

// DecisionConfig holds engagement scoring inputs.
type DecisionConfig struct {
	Timezone           string `mapstructure:"timezone"`
	BusinessHoursStart int    `mapstructure:"business_hours_start"`
	BusinessHoursEnd   int    `mapstructure:"business_hours_end"`
	ResponseWindowSize int    `mapstructure:"response_window_size"`
}

// QuotaConfig holds the template quota thresholds.
type QuotaConfig struct {
	Limit            int     `mapstructure:"limit"`
	WarningThreshold int     `mapstructure:"warning_threshold"`
	TargetFloor      int     `mapstructure:"target_floor"`
	UnusedGraceDays  int     `mapstructure:"unused_grace_days"`
	UnusedPassCap    int     `mapstructure:"unused_pass_cap"`
	StaleAgeDays     int     `mapstructure:"stale_age_days"`
	StaleUsageMax    int     `mapstructure:"stale_usage_max"`
	StalePassCap     int     `mapstructure:"stale_pass_cap"`
	LowResponseRate  float64 `mapstructure:"low_response_rate"`
	LowPerfMinUsage  int     `mapstructure:"low_perf_min_usage"`
	LowPerfPassCap   int     `mapstructure:"low_perf_pass_cap"`
	ReservationTTL   int     `mapstructure:"reservation_ttl"`
}

// StrategyConfig holds strategy selection settings. Durations are milliseconds.
type StrategyConfig struct {
	FreeFormWindow        int     `mapstructure:"free_form_window"`
	FreeFormMinConfidence float64 `mapstructure:"free_form_min_confidence"`
	GenerationTimeout     int     `mapstructure:"generation_timeout"`
	GenerationRetries     int     `mapstructure:"generation_retries"`
	RetryDelay            int     `mapstructure:"retry_delay"`
	CatalogPath           string  `mapstructure:"catalog_path"`
	DefaultLanguage       string  `mapstructure:"default_language"`
}

// WhatsAppConfig holds Cloud API credentials.
type WhatsAppConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	APIVersion        string `mapstructure:"api_version"`
	Token             string `mapstructure:"token"`
	PhoneNumberID     string `mapstructure:"phone_number_id"`
	BusinessAccountID string `mapstructure:"business_account_id"`
	Timeout           int    `mapstructure:"timeout"` // milliseconds
}

// AIConfig selects and configures the AI generator.
type AIConfig struct {
	Provider string `mapstructure:"provider"` // http | gemini

	GenAI struct {
		BaseURL     string  `mapstructure:"base_url"`
		APIKey      string  `mapstructure:"api_key"`
		MaxTokens   int     `mapstructure:"max_tokens"`
		Temperature float64 `mapstructure:"temperature"`
	} `mapstructure:"genai"`

	Gemini struct {
		APIKey string `mapstructure:"api_key"`
		Model  string `mapstructure:"model"`
	} `mapstructure:"gemini"`
}

// NotificationConfig holds alerting and SMS fallback settings.
type NotificationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	Email struct {
		Enabled    bool     `mapstructure:"enabled"`
		FromEmail  string   `mapstructure:"from_email"`
		Recipients []string `mapstructure:"recipients"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
}

// ServerConfig holds the ops HTTP server settings.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type TracingConfig struct {
	Exporter    string  `mapstructure:"exporter"` // none | stdout | otlp
	Endpoint    string  `mapstructure:"endpoint"` // host:port of the OTLP/HTTP collector
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Days converts a day count from config to time.Duration
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
