package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Default()
	if cfg.Thresholds != want.Thresholds {
		t.Errorf("Thresholds = %+v, want %+v", cfg.Thresholds, want.Thresholds)
	}
	if cfg.GroupCap != want.GroupCap {
		t.Errorf("GroupCap = %d, want %d", cfg.GroupCap, want.GroupCap)
	}
	if cfg.UseLibpostal != want.UseLibpostal {
		t.Errorf("UseLibpostal = %v, want %v", cfg.UseLibpostal, want.UseLibpostal)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DEDUPLICATOR_THRESHOLDS_D_MAX_METRES", "250")
	t.Setenv("DEDUPLICATOR_USE_LIBPOSTAL", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Thresholds.DMaxMetres != 250 {
		t.Errorf("DMaxMetres = %v, want 250 (env override)", cfg.Thresholds.DMaxMetres)
	}
	if cfg.UseLibpostal {
		t.Errorf("UseLibpostal = true, want false (env override)")
	}
}

func TestLoadFileOverlaysEnvBaseline(t *testing.T) {
	t.Setenv("DEDUPLICATOR_GROUP_CAP", "77")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("thresholds:\n  d_max_metres: 42\n"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Thresholds.DMaxMetres != 42 {
		t.Errorf("DMaxMetres = %v, want 42 (file overrides env baseline)", cfg.Thresholds.DMaxMetres)
	}
	if cfg.GroupCap != 77 {
		t.Errorf("GroupCap = %d, want 77 (env baseline preserved for a field absent from the file)", cfg.GroupCap)
	}
}
