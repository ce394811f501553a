package config

import (
	"reflect"
	"testing"
)

func validConfig() *Config {
	return &Config{
		CLIProxyAPIKey:        "inference-key",
		CLIProxyManagementKey: "management-key",
		CodexModel:            "gpt-5.3-codex",
	}
}

func TestValidateRequiresUpstreamKeys(t *testing.T) {
	cfg := validConfig()
	cfg.CLIProxyAPIKey = ""
	cfg.CLIProxyManagementKey = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing upstream keys")
	}
}

func TestValidateRejectsShortSecret(t *testing.T) {
	cfg := validConfig()
	cfg.AppAPIKey = "tooshort"

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for secret below minimum length")
	}
}

func TestValidateRejectsBothAuthModes(t *testing.T) {
	cfg := validConfig()
	cfg.AppAPIKey = "long-enough-secret-value"
	cfg.AuthBaseURL = "http://auth.local"

	if err := cfg.Validate(); err == nil {
		t.Error("expected error when both auth modes are configured")
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthMode(t *testing.T) {
	cfg := validConfig()
	if got := cfg.AuthMode(); got != AuthModeOpen {
		t.Errorf("AuthMode = %v, want open", got)
	}

	cfg.AppAPIKey = "long-enough-secret-value"
	if got := cfg.AuthMode(); got != AuthModeSharedSecret {
		t.Errorf("AuthMode = %v, want shared-secret", got)
	}

	cfg.AppAPIKey = ""
	cfg.AuthBaseURL = "http://auth.local"
	if got := cfg.AuthMode(); got != AuthModeDelegated {
		t.Errorf("AuthMode = %v, want delegated", got)
	}
}

func TestCORSOrigins(t *testing.T) {
	cfg := validConfig()

	cfg.CORSOrigin = "*"
	if got := cfg.CORSOrigins(); !reflect.DeepEqual(got, []string{"*"}) {
		t.Errorf("CORSOrigins = %v, want [*]", got)
	}

	cfg.CORSOrigin = "https://a.example, https://b.example"
	want := []string{"https://a.example", "https://b.example"}
	if got := cfg.CORSOrigins(); !reflect.DeepEqual(got, want) {
		t.Errorf("CORSOrigins = %v, want %v", got, want)
	}
}

func TestNormalizeBaseURLs(t *testing.T) {
	cfg := validConfig()
	cfg.CLIProxyBaseURL = "http://127.0.0.1:8317/"
	cfg.AuthBaseURL = "http://auth.local//"

	cfg.NormalizeBaseURLs()

	if cfg.CLIProxyBaseURL != "http://127.0.0.1:8317" {
		t.Errorf("CLIProxyBaseURL = %q", cfg.CLIProxyBaseURL)
	}
	if cfg.AuthBaseURL != "http://auth.local" {
		t.Errorf("AuthBaseURL = %q", cfg.AuthBaseURL)
	}
}
