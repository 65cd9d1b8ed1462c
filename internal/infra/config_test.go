package infra

import "testing"

func TestLoadConfigRequiresGeminiKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing GEMINI_API_KEY")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.ImageBackend != "imagen" {
		t.Fatalf("ImageBackend = %q, want imagen", cfg.ImageBackend)
	}
	if cfg.VariantCount != 3 {
		t.Fatalf("VariantCount = %d, want 3", cfg.VariantCount)
	}
	if cfg.ImageCount != 2 {
		t.Fatalf("ImageCount = %d, want 2", cfg.ImageCount)
	}
	if cfg.EvalEnabled {
		t.Fatal("EvalEnabled must default to false")
	}
	if cfg.TargetScore != 8.5 {
		t.Fatalf("TargetScore = %v, want 8.5", cfg.TargetScore)
	}
	if cfg.MaxIterations != 3 {
		t.Fatalf("MaxIterations = %d, want 3", cfg.MaxIterations)
	}
	if !cfg.NoImprovementStop {
		t.Fatal("NoImprovementStop must default to true")
	}
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("IMAGE_BACKEND", "dalle")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unknown IMAGE_BACKEND")
	}
}

func TestLoadConfigEvalRequiresOpenAIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("EVAL_ENABLED", "true")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for EVAL_ENABLED without OPENAI_API_KEY")
	}
}

func TestLoadConfigRejectsZeroVariantCount(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("VARIANT_COUNT", "0")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for VARIANT_COUNT below 1")
	}
}
