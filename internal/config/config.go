package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"computer-use-agent/internal/domain/entity"

	"github.com/spf13/viper"
)

const EnvPrefix = "AGENT"

type Config struct {
	Model       ModelConfig       `mapstructure:"model"`
	Loop        LoopConfig        `mapstructure:"loop"`
	Browser     BrowserConfig     `mapstructure:"browser"`
	Remote      RemoteConfig      `mapstructure:"remote"`
	Screenshots ScreenshotsConfig `mapstructure:"screenshots"`
	Journal     JournalConfig     `mapstructure:"journal"`
	Logger      LoggerConfig      `mapstructure:"logger"`
}

type ModelConfig struct {
	Name           string        `mapstructure:"name"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Temperature    float32       `mapstructure:"temperature"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

type LoopConfig struct {
	MaxTurns               int  `mapstructure:"max_turns"`
	MaxConsecutiveFailures int  `mapstructure:"max_consecutive_failures"`
	HistoryTurns           int  `mapstructure:"history_turns"`
	ScreenshotTurns        int  `mapstructure:"screenshot_turns"`
	MaxSummaryLines        int  `mapstructure:"max_summary_lines"`
	IncludePageText        bool `mapstructure:"include_page_text"`
	MaxObservationLen      int  `mapstructure:"max_observation_len"`
}

type BrowserConfig struct {
	Headless         bool          `mapstructure:"headless"`
	SettleTimeout    time.Duration `mapstructure:"settle_timeout"`
	CaptureTimeout   time.Duration `mapstructure:"capture_timeout"`
	ActionTimeout    time.Duration `mapstructure:"action_timeout"`
	ProvisionTimeout time.Duration `mapstructure:"provision_timeout"`
	SlowMotion       time.Duration `mapstructure:"slow_motion"`
	NoSandbox        bool          `mapstructure:"no_sandbox"`
	Bin              string        `mapstructure:"bin"`
	SearchURL        string        `mapstructure:"search_url"`
}

type RemoteConfig struct {
	APIKey    string      `mapstructure:"api_key"`
	ProjectID string      `mapstructure:"project_id"`
	BaseURL   string      `mapstructure:"base_url"`
	Region    string      `mapstructure:"region"`
	KeepAlive bool        `mapstructure:"keep_alive"`
	Retry     RetryConfig `mapstructure:"retry"`
	// UnsupportedActions lists action kinds the remote service cannot perform.
	UnsupportedActions []string `mapstructure:"unsupported_actions"`
}

// UnsupportedKinds returns UnsupportedActions as action kinds. Validate rejects unknown names.
func (r RemoteConfig) UnsupportedKinds() []entity.ActionKind {
	kinds := make([]entity.ActionKind, 0, len(r.UnsupportedActions))
	for _, name := range r.UnsupportedActions {
		if k, err := entity.ParseActionKind(name); err == nil {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

type RetryConfig struct {
	Initial     time.Duration `mapstructure:"initial"`
	MaxInterval time.Duration `mapstructure:"max_interval"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type ScreenshotsConfig struct {
	Dir string `mapstructure:"dir"`
}

type JournalConfig struct {
	Path string `mapstructure:"path"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Dir        string `mapstructure:"dir"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// SetDefaults registers every key, so environment overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("model.name", "google/gemini-2.5-flash")
	v.SetDefault("model.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.temperature", 0.0)
	v.SetDefault("model.request_timeout", "2m")
	v.SetDefault("model.max_retries", 4)

	v.SetDefault("loop.max_turns", 50)
	v.SetDefault("loop.max_consecutive_failures", 3)
	v.SetDefault("loop.history_turns", 10)
	v.SetDefault("loop.screenshot_turns", 3)
	v.SetDefault("loop.max_summary_lines", 40)
	v.SetDefault("loop.include_page_text", false)
	v.SetDefault("loop.max_observation_len", 20000)

	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.settle_timeout", "5s")
	v.SetDefault("browser.capture_timeout", "15s")
	v.SetDefault("browser.action_timeout", "10s")
	v.SetDefault("browser.provision_timeout", "60s")
	v.SetDefault("browser.slow_motion", "0s")
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.search_url", "https://www.google.com")

	v.SetDefault("remote.api_key", "")
	v.SetDefault("remote.project_id", "")
	v.SetDefault("remote.base_url", "https://api.browserbase.com")
	v.SetDefault("remote.region", "")
	v.SetDefault("remote.keep_alive", false)
	v.SetDefault("remote.unsupported_actions", []string{})
	v.SetDefault("remote.retry.initial", "500ms")
	v.SetDefault("remote.retry.max_interval", "5s")
	v.SetDefault("remote.retry.max_attempts", 4)

	v.SetDefault("screenshots.dir", "screenshots")
	v.SetDefault("journal.path", "")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.dir", "log")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", false)
}

// bindSecrets lets the conventional provider variables fill the credential keys.
func bindSecrets(v *viper.Viper) error {
	bindings := map[string][]string{
		"model.name":        {"AGENT_MODEL_NAME", "OPENROUTER_MODEL_NAME"},
		"model.api_key":     {"AGENT_MODEL_API_KEY", "OPENROUTER_API_KEY"},
		"remote.api_key":    {"AGENT_REMOTE_API_KEY", "BROWSERBASE_API_KEY"},
		"remote.project_id": {"AGENT_REMOTE_PROJECT_ID", "BROWSERBASE_PROJECT_ID"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// Load reads defaults, then the config file (cfgFile, or ./config.yaml when present),
// then AGENT_* environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindSecrets(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Loop.MaxTurns < 1:
		return fmt.Errorf("loop.max_turns must be at least 1")
	case c.Loop.MaxConsecutiveFailures < 1:
		return fmt.Errorf("loop.max_consecutive_failures must be at least 1")
	case c.Loop.HistoryTurns < 1:
		return fmt.Errorf("loop.history_turns must be at least 1")
	case c.Model.MaxRetries < 1:
		return fmt.Errorf("model.max_retries must be at least 1")
	case c.Browser.SettleTimeout <= 0:
		return fmt.Errorf("browser.settle_timeout must be positive")
	case c.Browser.CaptureTimeout <= 0:
		return fmt.Errorf("browser.capture_timeout must be positive")
	case c.Browser.ActionTimeout <= 0:
		return fmt.Errorf("browser.action_timeout must be positive")
	}
	for _, name := range c.Remote.UnsupportedActions {
		if _, err := entity.ParseActionKind(name); err != nil {
			return fmt.Errorf("remote.unsupported_actions: %w", err)
		}
	}
	return nil
}
