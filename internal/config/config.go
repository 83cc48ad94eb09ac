package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as a Go duration string ("90ms")
// in config files and environment variables.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type StreamConfig struct {
	Resolution string `json:"resolution" yaml:"resolution" env:"POSEFRAME_CAMERA_RESOLUTION"`
	FPS        int    `json:"fps" yaml:"fps" env:"POSEFRAME_CAMERA_FPS"`
}

// Dimensions parses Resolution ("640x480").
func (s StreamConfig) Dimensions() (width, height int, err error) {
	w, h, ok := strings.Cut(strings.ToLower(s.Resolution), "x")
	if !ok {
		return 0, 0, fmt.Errorf("resolution %q is not WIDTHxHEIGHT", s.Resolution)
	}
	width, err = strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return 0, 0, fmt.Errorf("resolution %q: %w", s.Resolution, err)
	}
	height, err = strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return 0, 0, fmt.Errorf("resolution %q: %w", s.Resolution, err)
	}
	return width, height, nil
}

type CameraConfig struct {
	DeviceName string `json:"device_name" yaml:"device_name"`
	DeviceID   string `json:"device_id" yaml:"device_id" env:"POSEFRAME_CAMERA_DEVICE"`
	// FramesDir replays still images instead of opening a device.
	FramesDir    string       `json:"frames_dir,omitempty" yaml:"frames_dir,omitempty" env:"POSEFRAME_FRAMES_DIR"`
	StreamConfig StreamConfig `json:"stream_config" yaml:"stream_config"`
}

type ServiceConfig struct {
	VerifyURL string   `json:"verify_url" yaml:"verify_url" env:"POSEFRAME_VERIFY_URL"`
	SaveURL   string   `json:"save_url" yaml:"save_url" env:"POSEFRAME_SAVE_URL"`
	Timeout   Duration `json:"timeout" yaml:"timeout" env:"POSEFRAME_HTTP_TIMEOUT"`
}

type CaptureConfig struct {
	SampleInterval  Duration `json:"sample_interval" yaml:"sample_interval" env:"POSEFRAME_SAMPLE_INTERVAL"`
	TransitionDelay Duration `json:"transition_delay" yaml:"transition_delay" env:"POSEFRAME_TRANSITION_DELAY"`
	SaveDelay       Duration `json:"save_delay" yaml:"save_delay" env:"POSEFRAME_SAVE_DELAY"`
	JPEGQuality     int      `json:"jpeg_quality" yaml:"jpeg_quality" env:"POSEFRAME_JPEG_QUALITY"`
}

type LogConfig struct {
	File  string `json:"file" yaml:"file" env:"POSEFRAME_LOG_FILE"`
	Level string `json:"level" yaml:"level" env:"POSEFRAME_LOG_LEVEL"`
}

type AppConfig struct {
	ServerPort   string        `json:"server_port" yaml:"server_port" env:"POSEFRAME_SERVER_PORT"`
	ServerIP     string        `json:"server_ip" yaml:"server_ip" env:"POSEFRAME_SERVER_IP"`
	OTLPEndpoint string        `json:"otlp_endpoint,omitempty" yaml:"otlp_endpoint,omitempty" env:"POSEFRAME_OTLP_ENDPOINT"`
	CameraConfig CameraConfig  `json:"camera" yaml:"camera"`
	Services     ServiceConfig `json:"services" yaml:"services"`
	Capture      CaptureConfig `json:"capture" yaml:"capture"`
	Log          LogConfig     `json:"log" yaml:"log"`
}

// Default config
func Default() *AppConfig {
	return &AppConfig{
		CameraConfig: CameraConfig{
			DeviceName: "Built-in Camera",
			DeviceID:   "0",
			StreamConfig: StreamConfig{
				Resolution: "640x480",
				FPS:        30,
			}},
		Services: ServiceConfig{
			VerifyURL: "http://localhost:8010/api/face_processing/",
			SaveURL:   "http://localhost:8010/api/save_user/",
			Timeout:   Duration(10 * time.Second),
		},
		Capture: CaptureConfig{
			SampleInterval:  Duration(90 * time.Millisecond),
			TransitionDelay: Duration(2 * time.Second),
			SaveDelay:       Duration(3 * time.Second),
			JPEGQuality:     92,
		},
		Log: LogConfig{
			File:  "poseframe.log",
			Level: "info",
		},
		ServerIP:   "localhost",
		ServerPort: "8080",
	}
}

// DefaultPath returns the config file location under the user config
// directory, creating the directory if needed.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("unable to determine user config directory: %w", err)
	}

	dir := filepath.Join(configDir, "poseframe")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating config directory: %w", err)
	}

	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config file at path over the defaults, applies POSEFRAME_*
// environment overrides and validates the result. A missing file is not an
// error. JSON files may contain comments; .yaml and .yml files are YAML.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("error reading config file: %w", err)
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *AppConfig) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("error unmarshalling config file: %w", err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return fmt.Errorf("error unmarshalling config file: %w", err)
		}
	}
	return nil
}

// Validate rejects configs the capture flow cannot run with.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Services.VerifyURL == "" {
		errs = append(errs, errors.New("services.verify_url is required"))
	}
	if c.Services.SaveURL == "" {
		errs = append(errs, errors.New("services.save_url is required"))
	}
	for name, d := range map[string]Duration{
		"services.timeout":         c.Services.Timeout,
		"capture.sample_interval":  c.Capture.SampleInterval,
		"capture.transition_delay": c.Capture.TransitionDelay,
		"capture.save_delay":       c.Capture.SaveDelay,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d.Std()))
		}
	}
	if q := c.Capture.JPEGQuality; q < 1 || q > 100 {
		errs = append(errs, fmt.Errorf("capture.jpeg_quality must be 1-100, got %d", q))
	}
	if _, _, err := c.CameraConfig.StreamConfig.Dimensions(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Save writes the config as JSON to path.
func Save(config *AppConfig, path string) error {
	configBytes, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshalling config: %w", err)
	}

	if err := os.WriteFile(path, configBytes, 0o644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}
