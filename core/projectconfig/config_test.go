package projectconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAllowMissing(t *testing.T) {
	workDir := t.TempDir()
	path := filepath.Join(workDir, "missing.yaml")

	configuration, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load allow missing: %v", err)
	}
	if configuration.Logs.Timezone != "" {
		t.Fatalf("expected empty configuration, got timezone %q", configuration.Logs.Timezone)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	workDir := t.TempDir()
	path := filepath.Join(workDir, "missing.yaml")

	if _, err := Load(path, false); err == nil {
		t.Fatal("expected missing required config error")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load("  ", true); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	workDir := t.TempDir()
	path := filepath.Join(workDir, "config.yaml")
	content := []byte(`
logs:
  timezone: " Europe/Berlin "
  error_handling: " WARN "
  num_samples: 5
  sample_prefix: " S "
  sample_start_id: 0
  extract_folder: true
  overwrite_unzipped: true
study:
  error_handling: " Raise "
  duplicates: " keep-last "
  concurrency: 4
export:
  format: " XLSX "
  split: " Day "
  include_evening: false
  wide: true
logging:
  level: " DEBUG "
  format: " JSON "
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	configuration, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load parse: %v", err)
	}
	if configuration.Logs.Timezone != "Europe/Berlin" {
		t.Fatalf("unexpected timezone %q", configuration.Logs.Timezone)
	}
	if configuration.Logs.ErrorHandling != "warn" {
		t.Fatalf("unexpected error_handling %q", configuration.Logs.ErrorHandling)
	}
	if configuration.Logs.NumSamples != 5 || configuration.Logs.SamplePrefix != "S" {
		t.Fatalf("unexpected sample settings: %#v", configuration.Logs)
	}
	if configuration.Logs.SampleStartID == nil || *configuration.Logs.SampleStartID != 0 {
		t.Fatalf("expected explicit sample_start_id 0, got %v", configuration.Logs.SampleStartID)
	}
	if !configuration.Logs.ExtractFolder || !configuration.Logs.OverwriteUnzipped {
		t.Fatalf("expected extract flags set: %#v", configuration.Logs)
	}
	if configuration.Study.ErrorHandling != "raise" || configuration.Study.Duplicates != "keep-last" || configuration.Study.Concurrency != 4 {
		t.Fatalf("unexpected study defaults: %#v", configuration.Study)
	}
	if configuration.Export.Format != "xlsx" || configuration.Export.Split != "day" || !configuration.Export.Wide {
		t.Fatalf("unexpected export defaults: %#v", configuration.Export)
	}
	if configuration.Export.IncludeEvening == nil || *configuration.Export.IncludeEvening {
		t.Fatalf("expected include_evening=false, got %v", configuration.Export.IncludeEvening)
	}
	if configuration.Logging.Level != "debug" || configuration.Logging.Format != "json" {
		t.Fatalf("unexpected logging defaults: %#v", configuration.Logging)
	}
}

func TestLoadRejectsNegativeValues(t *testing.T) {
	workDir := t.TempDir()
	path := filepath.Join(workDir, "config.yaml")
	if err := os.WriteFile(path, []byte("logs:\n  num_samples: -1\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path, false); err == nil {
		t.Fatal("expected validation error for negative num_samples")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	workDir := t.TempDir()
	path := filepath.Join(workDir, "config.yaml")
	if err := os.WriteFile(path, []byte("logs: [\n"), 0o600); err != nil {
		t.Fatalf("write invalid config: %v", err)
	}

	if _, err := Load(path, false); err == nil {
		t.Fatal("expected parse error for invalid yaml")
	}
}
