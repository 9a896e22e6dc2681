package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pay2run/pay2run"
	"github.com/pay2run/pay2run/runner"
)

// GlobalFlags holds the raw persistent flag values before resolution.
type GlobalFlags struct {
	ConfigPath string
	APIKey     string
	BaseURL    string
	JSON       bool
	Plain      bool
	Timeout    string
}

// Settings is the resolved configuration: defaults, then config file,
// then PAY2RUN_* environment variables, then flags.
type Settings struct {
	APIKey          string
	BaseURL         string
	OutputMode      string
	Timeout         time.Duration
	PollInterval    time.Duration
	MaxPollAttempts int
	FailureLimit    int
}

type fileConfig struct {
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
	Output    string `yaml:"output"`
	Timeout   string `yaml:"timeout"`
	Poll      struct {
		Interval     string `yaml:"interval"`
		MaxAttempts  *int   `yaml:"max_attempts"`
		FailureLimit *int   `yaml:"failure_limit"`
	} `yaml:"poll"`
}

// Load resolves Settings from defaults, the config file, the
// environment and the given flags, in that order.
func Load(flags GlobalFlags) (Settings, error) {
	settings := defaultSettings()

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.BaseURL == "" {
		settings.BaseURL = pay2run.DefaultBaseURL
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = runner.DefaultPollInterval
	}
	if settings.MaxPollAttempts <= 0 {
		settings.MaxPollAttempts = runner.DefaultMaxPollAttempts
	}
	if settings.FailureLimit < 0 {
		settings.FailureLimit = runner.DefaultFailureLimit
	}

	return settings, nil
}

func defaultSettings() Settings {
	return Settings{
		BaseURL:         pay2run.DefaultBaseURL,
		OutputMode:      "json",
		Timeout:         30 * time.Second,
		PollInterval:    runner.DefaultPollInterval,
		MaxPollAttempts: runner.DefaultMaxPollAttempts,
		FailureLimit:    runner.DefaultFailureLimit,
	}
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "pay2run", "config.yaml"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.APIKey != "" {
		settings.APIKey = cfg.APIKey
	}
	if cfg.APIKeyEnv != "" {
		settings.APIKey = os.Getenv(cfg.APIKeyEnv)
	}
	if cfg.BaseURL != "" {
		settings.BaseURL = cfg.BaseURL
	}
	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Poll.Interval != "" {
		d, err := time.ParseDuration(cfg.Poll.Interval)
		if err != nil {
			return fmt.Errorf("config poll.interval: %w", err)
		}
		settings.PollInterval = d
	}
	if cfg.Poll.MaxAttempts != nil {
		settings.MaxPollAttempts = *cfg.Poll.MaxAttempts
	}
	if cfg.Poll.FailureLimit != nil {
		settings.FailureLimit = *cfg.Poll.FailureLimit
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("PAY2RUN_API_KEY"); v != "" {
		settings.APIKey = v
	}
	if v := os.Getenv("PAY2RUN_BASE_URL"); v != "" {
		settings.BaseURL = v
	}
	if v := os.Getenv("PAY2RUN_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("PAY2RUN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("PAY2RUN_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.PollInterval = d
		}
	}
	if v := os.Getenv("PAY2RUN_MAX_POLL_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.MaxPollAttempts = n
		}
	}
	if v := os.Getenv("PAY2RUN_FAILURE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.FailureLimit = n
		}
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if flags.APIKey != "" {
		settings.APIKey = flags.APIKey
	}
	if flags.BaseURL != "" {
		settings.BaseURL = flags.BaseURL
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}
