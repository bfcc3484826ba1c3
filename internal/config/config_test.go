package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Remote.URL != "http://grid.example.com:4444/wd/hub" {
		t.Errorf("Remote.URL = %q", cfg.Remote.URL)
	}
	if cfg.Remote.Level != "w3c" {
		t.Errorf("Remote.Level = %q, want w3c", cfg.Remote.Level)
	}
	if len(cfg.Remote.Extensions) != 2 {
		t.Fatalf("Remote.Extensions = %d entries, want 2", len(cfg.Remote.Extensions))
	}
	if cfg.Remote.Extensions[1].Method != "POST" {
		t.Errorf("Extensions[1].Method = %q, want POST", cfg.Remote.Extensions[1].Method)
	}
	if cfg.Transport.Timeout != 30*time.Second {
		t.Errorf("Transport.Timeout = %v, want 30s", cfg.Transport.Timeout)
	}
	if cfg.Transport.MaxRedirects != 10 {
		t.Errorf("Transport.MaxRedirects = %d, want 10", cfg.Transport.MaxRedirects)
	}
	if cfg.Transport.Retry.AddrNotAvailBackoff != 500*time.Millisecond {
		t.Errorf("Retry.AddrNotAvailBackoff = %v, want 500ms", cfg.Transport.Retry.AddrNotAvailBackoff)
	}
	if cfg.Proxy.HTTP != "proxy.example.com:3128" {
		t.Errorf("Proxy.HTTP = %q", cfg.Proxy.HTTP)
	}
	if len(cfg.Proxy.NoProxy) != 2 {
		t.Errorf("Proxy.NoProxy = %v, want 2 entries", cfg.Proxy.NoProxy)
	}
	if !cfg.Proxy.FromEnvironment {
		t.Error("Proxy.FromEnvironment should keep its default of true")
	}
	if cfg.Headers.Extra["X-Team"] != "qa" {
		t.Errorf("Headers.Extra = %v", cfg.Headers.Extra)
	}
	if cfg.Auth.JWT.TTL != 2*time.Minute {
		t.Errorf("Auth.JWT.TTL = %v, want 2m", cfg.Auth.JWT.TTL)
	}
	if cfg.BiDi.CommandTimeout != 30*time.Second {
		t.Errorf("BiDi.CommandTimeout = %v, want default 30s", cfg.BiDi.CommandTimeout)
	}
	if cfg.Session.Driver != "redis" {
		t.Errorf("Session.Driver = %q, want redis", cfg.Session.Driver)
	}
	if cfg.Observability.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default /metrics", cfg.Observability.Metrics.Path)
	}
}

func TestLoad_emptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Remote.URL != Defaults().Remote.URL {
		t.Errorf("Remote.URL = %q, want default", cfg.Remote.URL)
	}
}

func TestLoad_missing_file(t *testing.T) {
	if _, err := Load("testdata/nonexistent.yaml"); err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_malformed(t *testing.T) {
	_, err := Load("testdata/malformed.yaml")
	if err == nil || !strings.Contains(err.Error(), "parsing") {
		t.Fatalf("Load() error = %v, want parsing error", err)
	}
}

func TestLoad_invalid_level(t *testing.T) {
	_, err := Load("testdata/invalid_level.yaml")
	if err == nil || !strings.Contains(err.Error(), "remote.level") {
		t.Fatalf("Load() error = %v, want remote.level error", err)
	}
}

func TestLoad_bad_extension(t *testing.T) {
	_, err := Load("testdata/bad_extension.yaml")
	if err == nil || !strings.Contains(err.Error(), "PATCH") {
		t.Fatalf("Load() error = %v, want unsupported method error", err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Transport.MaxRedirects != 20 {
		t.Errorf("default MaxRedirects = %d, want 20", cfg.Transport.MaxRedirects)
	}
	if cfg.Transport.Retry.MaxRetries != 3 {
		t.Errorf("default MaxRetries = %d, want 3", cfg.Transport.Retry.MaxRetries)
	}
	if cfg.Transport.Retry.AddrNotAvailBackoff != 2*time.Second {
		t.Errorf("default AddrNotAvailBackoff = %v, want 2s", cfg.Transport.Retry.AddrNotAvailBackoff)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults().Validate() error = %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WIREDRIVER_REMOTE_URL", "https://cloud.example.com/wd/hub")
	t.Setenv("WIREDRIVER_REMOTE_LEVEL", "legacy")
	t.Setenv("WIREDRIVER_TRANSPORT_TIMEOUT", "90s")
	t.Setenv("WIREDRIVER_USER_AGENT", "env-agent/1.0")
	t.Setenv("WIREDRIVER_OBSERVABILITY_LOG_LEVEL", "error")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Remote.URL != "https://cloud.example.com/wd/hub" {
		t.Errorf("Remote.URL = %q, want env override", cfg.Remote.URL)
	}
	if cfg.Remote.Level != "legacy" {
		t.Errorf("Remote.Level = %q, want legacy", cfg.Remote.Level)
	}
	if cfg.Transport.Timeout != 90*time.Second {
		t.Errorf("Transport.Timeout = %v, want 90s", cfg.Transport.Timeout)
	}
	if cfg.Headers.UserAgent != "env-agent/1.0" {
		t.Errorf("Headers.UserAgent = %q, want env override", cfg.Headers.UserAgent)
	}
	if cfg.Observability.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error (env override)", cfg.Observability.LogLevel)
	}
}

func TestEnvOverrides_websocketEnablesBiDi(t *testing.T) {
	t.Setenv("WIREDRIVER_BIDI_WEBSOCKET_URL", "ws://127.0.0.1:9222/session")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.BiDi.Enabled {
		t.Error("BiDi.Enabled = false, want true")
	}
}

func TestEnvOverrides_badDuration(t *testing.T) {
	t.Setenv("WIREDRIVER_TRANSPORT_TIMEOUT", "soon")
	if _, err := Load(""); err == nil {
		t.Fatal("Load() with an unparseable duration should fail")
	}
}

func TestValidate_collectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Remote.URL = "ftp://example.com"
	cfg.Auth.Strategy = "kerberos"
	cfg.Session.Driver = "etcd"
	cfg.Transport.MaxRedirects = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() should return error")
	}
	for _, want := range []string{"remote.url", "auth.strategy", "session.driver", "max_redirects"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q missing %q", err, want)
		}
	}
}

func TestValidate_authRequirements(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		wantErr  bool
	}{
		{"none", "none", false},
		{"basic", "basic", false},
		{"bearer without token env", "bearer", true},
		{"jwt without key env", "jwt", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Auth.Strategy = tt.strategy
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_websocketScheme(t *testing.T) {
	cfg := Defaults()
	cfg.BiDi.Enabled = true
	cfg.BiDi.WebSocketURL = "http://127.0.0.1:9222"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() should reject non-ws websocket URL")
	}
}
