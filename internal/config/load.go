package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "SCRY"

var defaults = map[string]any{
	"server.port":      8080,
	"server.log_level": "info",

	"auth.jwt_secret":             "",
	"auth.token_lifetime_minutes": 60,

	"llm.gemini_api_key":          "",
	"llm.provider":                "interactions",
	"llm.research_agent":          "deep-research-pro-preview-12-2025",
	"llm.model_name":              "gemini-2.5-pro",
	"llm.base_url":                "",
	"llm.max_retries":             3,
	"llm.retry_delay_seconds":     2,
	"llm.request_timeout_seconds": 60,

	"research.max_attempts":          120,
	"research.poll_interval_seconds": 10,
	"research.preview_length":        500,

	"task.dispatcher":                        "local",
	"task.worker_count":                      2,
	"task.queue_size":                        100,
	"task.stuck_task_age_minutes":            60,
	"task.stuck_task_check_interval_minutes": 5,
	"task.retention_ceiling":                 100,
	"task.retention_keep":                    50,

	"storage.backend":      "local",
	"storage.base_path":    "data",
	"storage.database_url": "",
	"storage.sqlite_path":  "",

	"redis.addr":     "localhost:6379",
	"redis.password": "",
	"redis.db":       0,

	"render.format":    "pdf",
	"render.font_path": "",

	"prompt.template_dir": "",
}

// Load reads configuration from an optional YAML file and from SCRY_-prefixed
// environment variables, then validates it. Environment variables take
// precedence over the file. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Every key needs a default so AutomaticEnv can see it during Unmarshal
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}
