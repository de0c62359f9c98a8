package config

import "testing"

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestPipeline_RejectsMaxBelowCore(t *testing.T) {
	p := DefaultPipeline("threaded", 8080)
	p.MaxPoolSize = p.CorePoolSize - 1
	if err := p.Validate(); err == nil {
		t.Fatal("expected validation error when max < core")
	}
}

func TestPipeline_RejectsBadPort(t *testing.T) {
	p := DefaultPipeline("threaded", 0)
	if err := p.Validate(); err == nil {
		t.Fatal("expected validation error for port 0")
	}
}

func TestLoad_DefaultsWithoutConfigFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Threaded.Port != 8080 {
		t.Fatalf("expected default threaded port 8080, got %d", cfg.Threaded.Port)
	}
}

func TestLoad_FlagOverridesWin(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml", map[string]any{
		"threaded.port": 9090,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Threaded.Port != 9090 {
		t.Fatalf("expected flag override to win, got %d", cfg.Threaded.Port)
	}
}
