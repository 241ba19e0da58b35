package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	cfg, err := Load(nil, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"port", cfg.Port, 8080},
		{"store driver", cfg.Store.Driver, "memory"},
		{"record ttl", cfg.Records.TTL, 24 * time.Hour},
		{"acquire timeout", cfg.Live.AcquireTimeout, 4 * time.Second},
		{"connect timeout", cfg.Live.ConnectTimeout, 15 * time.Second},
		{"poll interval", cfg.Live.PollInterval, 1500 * time.Millisecond},
		{"simulate interval", cfg.Live.SimulateInterval, 3 * time.Second},
		{"collision retries", cfg.Live.CollisionRetries, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, tt.got)
			}
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	t.Setenv("TASTESHIFT_LIVE_CONNECT_TIMEOUT", "3s")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("port", 0, "")
	if err := fs.Parse([]string{"--port=9090"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(fs, map[string]string{"port": "port"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("flag should win, got port %d", cfg.Port)
	}
	if cfg.Live.ConnectTimeout != 3*time.Second {
		t.Fatalf("env should override default, got %v", cfg.Live.ConnectTimeout)
	}
}

func TestLoadUnknownFlag(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if _, err := Load(fs, map[string]string{"nope": "port"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}
