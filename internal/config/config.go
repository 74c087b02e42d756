package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Research ResearchConfig `mapstructure:"research" validate:"required"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Render   RenderConfig   `mapstructure:"render" validate:"required"`
	Prompt   PromptConfig   `mapstructure:"prompt"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
	// TokenLifetimeMinutes bounds tokens minted by the token command.
	TokenLifetimeMinutes int `mapstructure:"token_lifetime_minutes" validate:"gt=0"`
}

// LLMConfig contains the generative provider settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	// Provider selects the research adapter: the Interactions deep-research
	// agent or plain genai GenerateContent run in the background.
	Provider              string `mapstructure:"provider" validate:"required,oneof=interactions generate"`
	ResearchAgent         string `mapstructure:"research_agent" validate:"required"`
	ModelName             string `mapstructure:"model_name" validate:"required"`
	BaseURL               string `mapstructure:"base_url" validate:"omitempty,url"`
	MaxRetries            int    `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelaySeconds     int    `mapstructure:"retry_delay_seconds" validate:"gte=0"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds" validate:"gt=0"`
}

// ResearchConfig bounds the polling loop.
type ResearchConfig struct {
	MaxAttempts         int `mapstructure:"max_attempts" validate:"gt=0"`
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" validate:"gte=0"`
	PreviewLength       int `mapstructure:"preview_length" validate:"gt=0"`
}

// TaskConfig contains background execution and retention settings.
type TaskConfig struct {
	Dispatcher                    string `mapstructure:"dispatcher" validate:"required,oneof=local redis"`
	WorkerCount                   int    `mapstructure:"worker_count" validate:"gt=0"`
	QueueSize                     int    `mapstructure:"queue_size" validate:"gt=0"`
	StuckTaskAgeMinutes           int    `mapstructure:"stuck_task_age_minutes" validate:"gt=0"`
	StuckTaskCheckIntervalMinutes int    `mapstructure:"stuck_task_check_interval_minutes" validate:"gt=0"`
	RetentionCeiling              int    `mapstructure:"retention_ceiling" validate:"gt=0"`
	RetentionKeep                 int    `mapstructure:"retention_keep" validate:"gt=0,ltefield=RetentionCeiling"`
}

// StorageConfig selects where task records and documents are kept.
type StorageConfig struct {
	Backend     string `mapstructure:"backend" validate:"required,oneof=local postgres"`
	BasePath    string `mapstructure:"base_path" validate:"required"`
	DatabaseURL string `mapstructure:"database_url" validate:"required_if=Backend postgres"`
	SQLitePath  string `mapstructure:"sqlite_path"`
}

// RedisConfig is used when Task.Dispatcher is "redis".
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// RenderConfig selects the report output format.
type RenderConfig struct {
	Format   string `mapstructure:"format" validate:"required,oneof=pdf html"`
	FontPath string `mapstructure:"font_path"`
}

// PromptConfig optionally overrides the embedded persona templates.
type PromptConfig struct {
	TemplateDir string `mapstructure:"template_dir"`
}

// PollInterval returns the configured delay between status polls.
func (c ResearchConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// StuckTaskAge returns how long a processing task may stay silent.
func (c TaskConfig) StuckTaskAge() time.Duration {
	return time.Duration(c.StuckTaskAgeMinutes) * time.Minute
}

// StuckTaskCheckInterval returns the sweep period.
func (c TaskConfig) StuckTaskCheckInterval() time.Duration {
	return time.Duration(c.StuckTaskCheckIntervalMinutes) * time.Minute
}

// TokenLifetime returns how long minted tokens stay valid.
func (c AuthConfig) TokenLifetime() time.Duration {
	return time.Duration(c.TokenLifetimeMinutes) * time.Minute
}

// RetryDelay returns the base backoff delay for generation calls.
func (c LLMConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// RequestTimeout returns the timeout applied to a single provider call.
func (c LLMConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
