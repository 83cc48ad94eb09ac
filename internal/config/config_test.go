package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Capture.SampleInterval.Std() != 90*time.Millisecond {
		t.Fatalf("sample interval = %s, want 90ms", cfg.Capture.SampleInterval.Std())
	}
	if cfg.Capture.TransitionDelay.Std() != 2*time.Second || cfg.Capture.SaveDelay.Std() != 3*time.Second {
		t.Fatalf("delays = %s / %s", cfg.Capture.TransitionDelay.Std(), cfg.Capture.SaveDelay.Std())
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("server port = %q", cfg.ServerPort)
	}
}

func TestLoadJSONWithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{
  // local backend
  "services": {"verify_url": "http://verify.test/api/", "timeout": "2s"},
  "capture": {"sample_interval": "120ms"}
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Services.VerifyURL != "http://verify.test/api/" {
		t.Fatalf("verify url = %q", cfg.Services.VerifyURL)
	}
	if cfg.Services.Timeout.Std() != 2*time.Second || cfg.Capture.SampleInterval.Std() != 120*time.Millisecond {
		t.Fatalf("durations = %s / %s", cfg.Services.Timeout.Std(), cfg.Capture.SampleInterval.Std())
	}
	if cfg.Services.SaveURL == "" {
		t.Fatal("default save url lost when the file omits it")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
camera:
  device_id: "2"
  stream_config:
    resolution: 1280x720
capture:
  save_delay: 5s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CameraConfig.DeviceID != "2" || cfg.Capture.SaveDelay.Std() != 5*time.Second {
		t.Fatalf("cfg = %+v", cfg)
	}
	w, h, err := cfg.CameraConfig.StreamConfig.Dimensions()
	if err != nil || w != 1280 || h != 720 {
		t.Fatalf("dimensions = %dx%d, %v", w, h, err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"services": {"save_url": "http://file.test/save/"}}`)
	t.Setenv("POSEFRAME_SAVE_URL", "http://env.test/save/")
	t.Setenv("POSEFRAME_TRANSITION_DELAY", "500ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Services.SaveURL != "http://env.test/save/" {
		t.Fatalf("save url = %q", cfg.Services.SaveURL)
	}
	if cfg.Capture.TransitionDelay.Std() != 500*time.Millisecond {
		t.Fatalf("transition delay = %s", cfg.Capture.TransitionDelay.Std())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"zero interval", `{"capture": {"sample_interval": "0s"}}`, "capture.sample_interval"},
		{"empty verify url", `{"services": {"verify_url": ""}}`, "verify_url"},
		{"bad quality", `{"capture": {"jpeg_quality": 0}}`, "jpeg_quality"},
		{"bad resolution", `{"camera": {"stream_config": {"resolution": "large"}}}`, "resolution"},
		{"bad duration", `{"capture": {"save_delay": "soon"}}`, "unmarshalling"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			writeFile(t, path, tt.content)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Default()
	cfg.Capture.SampleInterval = Duration(150 * time.Millisecond)
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Capture.SampleInterval != cfg.Capture.SampleInterval {
		t.Fatalf("sample interval = %s", loaded.Capture.SampleInterval.Std())
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
