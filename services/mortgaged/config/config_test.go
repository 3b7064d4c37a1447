package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const secret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mortgaged.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
data_dir: ./data
genesis: ./genesis.toml
journal_dsn: file:journal.db
tls:
  allow_insecure: true
auth:
  hmac_secret: `+secret+`
  issuer: lendchain
rate_limit:
  requests_per_minute: 120
logging:
  level: DEBUG
  file: mortgaged.log
telemetry:
  traces: true
  sample_ratio: 0.5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != defaultListen {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.StateBackend != BackendLevelDB {
		t.Fatalf("unexpected state backend %q", cfg.StateBackend)
	}
	if cfg.Auth.ClockSkew != 2*time.Minute {
		t.Fatalf("unexpected clock skew %v", cfg.Auth.ClockSkew)
	}
	if cfg.RateLimit.Burst != 1 || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected normalisation: %+v %+v", cfg.RateLimit, cfg.Logging)
	}
	if !cfg.Telemetry.Traces || cfg.Telemetry.SampleRatio != 0.5 {
		t.Fatalf("unexpected telemetry: %+v", cfg.Telemetry)
	}
}

func TestLoadSecretFromEnv(t *testing.T) {
	t.Setenv("MORTGAGED_SECRET", secret)
	path := writeConfig(t, `
data_dir: ./data
genesis: ./genesis.toml
tls: {allow_insecure: true}
auth:
  hmac_secret_env: MORTGAGED_SECRET
  clock_skew: 30s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.HMACSecret != secret || cfg.Auth.ClockSkew != 30*time.Second {
		t.Fatalf("unexpected auth config: %+v", cfg.Auth)
	}
}

func TestLoadValidation(t *testing.T) {
	base := "data_dir: ./data\ngenesis: ./g.toml\n"
	cases := map[string]struct {
		body string
		want string
	}{
		"missing data dir": {body: "genesis: ./g.toml\n", want: "data_dir"},
		"tls required":     {body: base + "auth: {hmac_secret: " + secret + "}\n", want: "tls"},
		"half tls":         {body: base + "tls: {cert: a.pem}\nauth: {hmac_secret: " + secret + "}\n", want: "both"},
		"short secret":     {body: base + "tls: {allow_insecure: true}\nauth: {hmac_secret: short}\n", want: "32 bytes"},
		"bad level":        {body: base + "tls: {allow_insecure: true}\nauth: {hmac_secret: " + secret + "}\nlogging: {level: loud}\n", want: "unknown level"},
		"bad ratio":        {body: base + "tls: {allow_insecure: true}\nauth: {hmac_secret: " + secret + "}\ntelemetry: {sample_ratio: 3}\n", want: "sample_ratio"},
		"bad backend":      {body: base + "state_backend: rocks\ntls: {allow_insecure: true}\nauth: {hmac_secret: " + secret + "}\n", want: "state_backend"},
		"unknown key":      {body: base + "tls: {allow_insecure: true}\nauth: {hmac_secret: " + secret + "}\nbogus: 1\n", want: "decode"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
	if _, err := Load(""); err == nil {
		t.Fatalf("expected path error")
	}
}
