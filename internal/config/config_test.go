package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("MOYASAR_SECRET_KEY", "sk_test_moyasar")
	t.Setenv("STRIPE_SECRET_KEY", "")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HTTP.Port != defaultHTTPPort {
		t.Errorf("HTTP.Port = %d, want %d", cfg.HTTP.Port, defaultHTTPPort)
	}
	if cfg.HTTP.ShutdownGrace != defaultShutdownGrace {
		t.Errorf("HTTP.ShutdownGrace = %v, want %v", cfg.HTTP.ShutdownGrace, defaultShutdownGrace)
	}
	if len(cfg.HTTP.DeepLinkSchemes) != 1 || cfg.HTTP.DeepLinkSchemes[0] != "nooks" {
		t.Errorf("HTTP.DeepLinkSchemes = %v, want [nooks]", cfg.HTTP.DeepLinkSchemes)
	}
	if cfg.Payment.MinChargeMinor != defaultMinChargeMinor {
		t.Errorf("Payment.MinChargeMinor = %d, want %d", cfg.Payment.MinChargeMinor, defaultMinChargeMinor)
	}
	if cfg.Commission.Rate.String() != "0.01" {
		t.Errorf("Commission.Rate = %s, want 0.01", cfg.Commission.Rate)
	}
	if cfg.Checkout.ClaimBackend != ClaimBackendPostgres {
		t.Errorf("Checkout.ClaimBackend = %q, want %q", cfg.Checkout.ClaimBackend, ClaimBackendPostgres)
	}
	if cfg.Kafka.Enabled() {
		t.Error("Kafka.Enabled() = true without brokers")
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("API_HTTP_PORT", "9090")
	t.Setenv("API_SHUTDOWN_GRACE", "30")
	t.Setenv("API_REQUEST_TIMEOUT", "5s")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("COMMISSION_RATE", "0.025")
	t.Setenv("CHECKOUT_CLAIM_BACKEND", "Redis")
	t.Setenv("DEEP_LINK_SCHEMES", "nooks,nooks-staging")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/nooks")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HTTP.Port != 9090 {
		t.Errorf("HTTP.Port = %d, want 9090", cfg.HTTP.Port)
	}
	if cfg.HTTP.ShutdownGrace != 30*time.Second {
		t.Errorf("HTTP.ShutdownGrace = %v, want 30s", cfg.HTTP.ShutdownGrace)
	}
	if cfg.HTTP.RequestTimeout != 5*time.Second {
		t.Errorf("HTTP.RequestTimeout = %v, want 5s", cfg.HTTP.RequestTimeout)
	}
	if got := cfg.Kafka.Brokers; len(got) != 2 || got[1] != "kafka-2:9092" {
		t.Errorf("Kafka.Brokers = %v", got)
	}
	if cfg.Commission.Rate.String() != "0.025" {
		t.Errorf("Commission.Rate = %s, want 0.025", cfg.Commission.Rate)
	}
	if cfg.Checkout.ClaimBackend != ClaimBackendRedis {
		t.Errorf("Checkout.ClaimBackend = %q, want redis", cfg.Checkout.ClaimBackend)
	}
	if len(cfg.HTTP.DeepLinkSchemes) != 2 {
		t.Errorf("HTTP.DeepLinkSchemes = %v", cfg.HTTP.DeepLinkSchemes)
	}
	if cfg.Database.URL != "postgres://u:p@db:5432/nooks" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "port", key: "API_HTTP_PORT", val: "eighty"},
		{name: "sample rate", key: "OTEL_SAMPLE_RATE", val: "high"},
		{name: "commission rate above one", key: "COMMISSION_RATE", val: "1.5"},
		{name: "negative commission rate", key: "COMMISSION_RATE", val: "-0.01"},
		{name: "commission rate too precise", key: "COMMISSION_RATE", val: "0.0123456"},
		{name: "claim backend", key: "CHECKOUT_CLAIM_BACKEND", val: "etcd"},
		{name: "timeout", key: "POS_TIMEOUT", val: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.val)

			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q succeeded, want error", tt.key, tt.val)
			}
		})
	}
}

func TestLoadRequiresExactlyOnePaymentProvider(t *testing.T) {
	tests := []struct {
		name    string
		moyasar string
		stripe  string
		wantErr bool
	}{
		{name: "none", wantErr: true},
		{name: "both", moyasar: "sk_m", stripe: "sk_s", wantErr: true},
		{name: "moyasar", moyasar: "sk_m"},
		{name: "stripe", stripe: "sk_s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MOYASAR_SECRET_KEY", tt.moyasar)
			t.Setenv("STRIPE_SECRET_KEY", tt.stripe)

			_, err := Load()
			if tt.wantErr {
				if !errors.Is(err, ErrPaymentProvider) {
					t.Fatalf("Load() error = %v, want ErrPaymentProvider", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("NOOKS_DOTENV_FRESH=from-file\nNOOKS_DOTENV_KEPT=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("NOOKS_DOTENV_KEPT", "from-env")
	// t.Setenv restores on cleanup; the test key must be unset before loading.
	t.Setenv("NOOKS_DOTENV_FRESH", "")
	if err := os.Unsetenv("NOOKS_DOTENV_FRESH"); err != nil {
		t.Fatalf("unset: %v", err)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}

	if got := os.Getenv("NOOKS_DOTENV_FRESH"); got != "from-file" {
		t.Errorf("NOOKS_DOTENV_FRESH = %q, want from-file", got)
	}
	if got := os.Getenv("NOOKS_DOTENV_KEPT"); got != "from-env" {
		t.Errorf("NOOKS_DOTENV_KEPT = %q, want from-env", got)
	}
}

func TestGetDurationEnv(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{value: "", want: time.Minute},
		{value: "45", want: 45 * time.Second},
		{value: "1500ms", want: 1500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("NOOKS_TEST_DURATION", tt.value)
			got, err := getDurationEnv("NOOKS_TEST_DURATION", time.Minute)
			if err != nil {
				t.Fatalf("getDurationEnv() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("getDurationEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}
