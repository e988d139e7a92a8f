package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTipsFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tipjar.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write tips file: %v", err)
	}
	return path
}

func TestLoadTipJarConfig(t *testing.T) {
	path := writeTipsFile(t, `
creator: "Max Eve Music & Art"
tagline: "Send Max a tip for a great show"
allow_custom: true
options:
  - amount_usd: "10"
    emoji: "🧡"
    message: "Super"
  - amount_usd: "20"
    emoji: "🎉"
    message: "Amazing"
  - amount_usd: "50"
    emoji: "🔥"
    message: "Incredible"
`)

	cfg, err := LoadTipJarConfig(path)
	if err != nil {
		t.Fatalf("LoadTipJarConfig: %v", err)
	}

	if cfg.Creator != "Max Eve Music & Art" {
		t.Errorf("creator = %q", cfg.Creator)
	}
	if !cfg.AllowCustom {
		t.Error("expected custom amounts to be allowed")
	}
	if len(cfg.Options) != 3 {
		t.Fatalf("options = %d, want 3", len(cfg.Options))
	}
	if got := cfg.Options[1].AmountUsd.String(); got != "20" {
		t.Errorf("second option amount = %s", got)
	}
	if cfg.Options[2].Message != "Incredible" {
		t.Errorf("third option message = %q", cfg.Options[2].Message)
	}
}

func TestLoadTipJarConfig_MissingCreator(t *testing.T) {
	path := writeTipsFile(t, `
options:
  - amount_usd: "10"
`)
	if _, err := LoadTipJarConfig(path); err == nil || !strings.Contains(err.Error(), "missing creator") {
		t.Errorf("err = %v, want missing creator", err)
	}
}

func TestLoadTipJarConfig_RejectsBadAmounts(t *testing.T) {
	cases := []struct {
		name   string
		amount string
	}{
		{"NotANumber", "ten dollars"},
		{"Zero", "0"},
		{"Negative", "-5"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTipsFile(t, `
creator: "Max"
options:
  - amount_usd: "`+tc.amount+`"
`)
			if _, err := LoadTipJarConfig(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadTipJarConfig_MissingFile(t *testing.T) {
	if _, err := LoadTipJarConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
