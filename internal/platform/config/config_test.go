package config

import (
	"strings"
	"testing"
)

type envTestConfig struct {
	Interval int `env:"EMBERLEAF_TEST_INTERVAL" envDefault:"300"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Interval != 300 {
		t.Fatalf("expected default interval 300, got %d", cfg.Interval)
	}
}

func TestParseEnvOverride(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("EMBERLEAF_TEST_INTERVAL", "60")

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Interval != 60 {
		t.Fatalf("expected interval 60, got %d", cfg.Interval)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("EMBERLEAF_TEST_INTERVAL", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
