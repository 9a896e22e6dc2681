package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pay2run/pay2run"
)

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	content := "api_key: sk_file\nbase_url: https://file.example.com\noutput: json\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("PAY2RUN_API_KEY", "sk_env")
	t.Setenv("PAY2RUN_OUTPUT", "json")
	t.Setenv("PAY2RUN_BASE_URL", "")

	flags := GlobalFlags{ConfigPath: configPath, APIKey: "sk_flag", Plain: true}
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.APIKey != "sk_flag" {
		t.Errorf("APIKey = %q; want flag value sk_flag", settings.APIKey)
	}
	if settings.OutputMode != "plain" {
		t.Errorf("OutputMode = %q; want plain from flag", settings.OutputMode)
	}
	if settings.BaseURL != "https://file.example.com" {
		t.Errorf("BaseURL = %q; want file value", settings.BaseURL)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(configPath, []byte("api_key: sk_file\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PAY2RUN_API_KEY", "sk_env")

	settings, err := Load(GlobalFlags{ConfigPath: configPath})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.APIKey != "sk_env" {
		t.Errorf("APIKey = %q; want env value sk_env", settings.APIKey)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PAY2RUN_API_KEY", "")
	t.Setenv("PAY2RUN_BASE_URL", "")
	t.Setenv("PAY2RUN_OUTPUT", "")
	t.Setenv("PAY2RUN_TIMEOUT", "")

	settings, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.BaseURL != pay2run.DefaultBaseURL {
		t.Errorf("BaseURL = %q; want %q", settings.BaseURL, pay2run.DefaultBaseURL)
	}
	if settings.OutputMode != "json" {
		t.Errorf("OutputMode = %q; want json", settings.OutputMode)
	}
	if settings.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v; want 30s", settings.Timeout)
	}
	if settings.PollInterval != time.Second {
		t.Errorf("PollInterval = %v; want 1s", settings.PollInterval)
	}
	if settings.MaxPollAttempts != 120 {
		t.Errorf("MaxPollAttempts = %d; want 120", settings.MaxPollAttempts)
	}
	if settings.FailureLimit != 15 {
		t.Errorf("FailureLimit = %d; want 15", settings.FailureLimit)
	}
}

func TestLoadPollSettingsFromFile(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	content := "poll:\n  interval: 100ms\n  max_attempts: 7\n  failure_limit: 0\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PAY2RUN_POLL_INTERVAL", "")
	t.Setenv("PAY2RUN_MAX_POLL_ATTEMPTS", "")
	t.Setenv("PAY2RUN_FAILURE_LIMIT", "")

	settings, err := Load(GlobalFlags{ConfigPath: configPath})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.PollInterval != 100*time.Millisecond {
		t.Errorf("PollInterval = %v; want 100ms", settings.PollInterval)
	}
	if settings.MaxPollAttempts != 7 {
		t.Errorf("MaxPollAttempts = %d; want 7", settings.MaxPollAttempts)
	}
	// Zero disables the cutoff and must survive resolution.
	if settings.FailureLimit != 0 {
		t.Errorf("FailureLimit = %d; want 0", settings.FailureLimit)
	}
}

func TestLoadAPIKeyEnvIndirection(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(configPath, []byte("api_key_env: PAY2RUN_TEST_KEY\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PAY2RUN_TEST_KEY", "sk_indirect")
	t.Setenv("PAY2RUN_API_KEY", "")

	settings, err := Load(GlobalFlags{ConfigPath: configPath})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.APIKey != "sk_indirect" {
		t.Errorf("APIKey = %q; want sk_indirect", settings.APIKey)
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	_, err := Load(GlobalFlags{JSON: true, Plain: true})
	if err == nil {
		t.Fatal("expected error with --json and --plain")
	}
}

func TestLoadRejectsUnknownOutput(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(configPath, []byte("output: xml\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PAY2RUN_OUTPUT", "")

	if _, err := Load(GlobalFlags{ConfigPath: configPath}); err == nil {
		t.Fatal("expected error for unknown output mode")
	}
}
