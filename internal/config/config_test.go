package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apex.yaml")
	cfg := Default()
	cfg.Storage.DBPath = "/tmp/test.db"
	cfg.Remote.Driver = "postgres"
	cfg.Remote.DSN = "postgres://localhost/apex"

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Storage.DBPath != "/tmp/test.db" {
		t.Errorf("dbPath = %q", got.Storage.DBPath)
	}
	if got.Remote.Driver != "postgres" || got.Remote.DSN != "postgres://localhost/apex" {
		t.Errorf("remote = %+v", got.Remote)
	}
	if got.Miner.IntervalSeconds != 300 {
		t.Errorf("interval = %d", got.Miner.IntervalSeconds)
	}
}

func TestCooldownPenalty(t *testing.T) {
	cfg := Default()
	if got := cfg.CooldownPenalty(); got != 12*time.Hour {
		t.Errorf("penalty = %v, want 12h", got)
	}
	cfg.Miner.CooldownHours = 0
	if got := cfg.CooldownPenalty(); got != 12*time.Hour {
		t.Errorf("zero config penalty = %v, want 12h default", got)
	}
	cfg.Miner.CooldownHours = 1
	if got := cfg.CooldownPenalty(); got != time.Hour {
		t.Errorf("penalty = %v, want 1h", got)
	}
}

func TestResolveEnv(t *testing.T) {
	t.Setenv("APEX_REMOTE_DSN", "postgres://env/apex")
	t.Setenv("APEX_REST_URL", "https://env.supabase.co")
	cfg := Default()
	cfg.ResolveEnv()
	if cfg.Remote.DSN != "postgres://env/apex" {
		t.Errorf("dsn = %q", cfg.Remote.DSN)
	}
	if cfg.Remote.RestURL != "https://env.supabase.co" {
		t.Errorf("restUrl = %q", cfg.Remote.RestURL)
	}

	cfg.Remote.DSN = "explicit"
	cfg.ResolveEnv()
	if cfg.Remote.DSN != "explicit" {
		t.Error("env overrode explicit value")
	}
}
