package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	// Create a real configs/ directory so filepath.Abs resolves correctly.
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_Rejected(t *testing.T) {
	cases := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"traversal", "../../etc/passwd"},
		{"traversal_inside_configs", "configs/../../../etc/shadow.yaml"},
		{"json_extension", "configs/default.json"},
		{"yml_extension", "configs/default.yml"},
		{"no_extension", "configs/default"},
		{"other_dir", "other/default.yaml"},
		{"bare_file", "default.yaml"},
		{"tmp", "/tmp/default.yaml"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateConfigPath(tc.path); err == nil {
				t.Errorf("expected error for %q, got nil", tc.path)
			}
		})
	}
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	// Should not panic; error or success is OS-dependent, but must not crash.
	_ = ValidateConfigPath(long)
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
camera:
  type: "v4l2"
  device_index: 1
  preview_size:
    width: 1280
    height: 720
  capture_size_policy: "first"
  rotation_degrees: 90
storage:
  dir: "/var/lib/snapgo/DCIM"
  format: "webp"
  quality: 90
gpio:
  mock: false
  capture_button_pin: 17
  preview_led_pin: 22
  button_led_pin: 23
  photo_led_pin: 24
  poll_ms: 10
  debounce_ms: 300
gesture:
  touch_slop_px: 12
  min_fling_velocity_px_s: 120
web:
  port: 8080
  mdns: true
  instance: "kitchen-cam"
defaults:
  debug_level: 2
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Camera.Type != "v4l2" {
		t.Errorf("camera.type = %q, want %q", cfg.Camera.Type, "v4l2")
	}
	if cfg.Camera.DeviceIndex != 1 {
		t.Errorf("camera.device_index = %d, want 1", cfg.Camera.DeviceIndex)
	}
	if cfg.Camera.PreviewSize != (SizeConfig{1280, 720}) {
		t.Errorf("camera.preview_size = %+v, want 1280x720", cfg.Camera.PreviewSize)
	}
	if cfg.Rotation() != 90 {
		t.Errorf("rotation = %d, want 90", cfg.Rotation())
	}
	if cfg.Storage.Format != "webp" || cfg.SaveExtension() != ".webp" {
		t.Errorf("storage.format = %q ext %q, want webp/.webp", cfg.Storage.Format, cfg.SaveExtension())
	}
	if cfg.Storage.Quality != 90 {
		t.Errorf("storage.quality = %d, want 90", cfg.Storage.Quality)
	}
	if cfg.GPIO.Mock {
		t.Error("gpio.mock = true, want false")
	}
	if cfg.GPIO.CaptureButtonPin != 17 || cfg.GPIO.PhotoLEDPin != 24 {
		t.Errorf("gpio pins = %+v", cfg.GPIO)
	}
	if cfg.Gesture.MinFlingVelocityPxS != 120 {
		t.Errorf("min_fling_velocity_px_s = %v, want 120", cfg.Gesture.MinFlingVelocityPxS)
	}
	if !cfg.Web.MDNS || cfg.Web.Instance != "kitchen-cam" {
		t.Errorf("web = %+v", cfg.Web)
	}
	if cfg.Defaults.DebugLevel != 2 {
		t.Errorf("debug_level = %d, want 2", cfg.Defaults.DebugLevel)
	}
	if got := cfg.DevicePathFor(cfg.Camera.DeviceIndex); got != "/dev/video1" {
		t.Errorf("DevicePathFor = %q, want /dev/video1", got)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	path := writeConfig(t, "camera:\n  type: sim\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Camera.CaptureSizePolicy != PolicyFirst {
		t.Errorf("capture_size_policy default = %q, want %q", cfg.Camera.CaptureSizePolicy, PolicyFirst)
	}
	if cfg.Rotation() != 270 {
		t.Errorf("rotation default = %d, want 270", cfg.Rotation())
	}
	if cfg.DisplayOrientation() != 90 {
		t.Errorf("display orientation default = %d, want 90", cfg.DisplayOrientation())
	}
	if cfg.Storage.Dir != "photos" || cfg.Storage.Format != "jpeg" || cfg.Storage.Quality != 100 {
		t.Errorf("storage defaults = %+v", cfg.Storage)
	}
	if cfg.SaveExtension() != ".jpg" {
		t.Errorf("SaveExtension = %q, want .jpg", cfg.SaveExtension())
	}
	if len(cfg.Camera.SimCaptureSizes) == 0 || cfg.Camera.SimCaptureSizes[0] != (SizeConfig{1280, 720}) {
		t.Errorf("sim capture sizes default = %+v", cfg.Camera.SimCaptureSizes)
	}
	if cfg.PollInterval() != 20*time.Millisecond {
		t.Errorf("PollInterval = %v, want 20ms", cfg.PollInterval())
	}
	if cfg.Debounce() != 250*time.Millisecond {
		t.Errorf("Debounce = %v, want 250ms", cfg.Debounce())
	}
	if cfg.PreviewInterval() != 100*time.Millisecond {
		t.Errorf("PreviewInterval = %v, want 100ms", cfg.PreviewInterval())
	}
}

func TestLoad_ZeroRotationIsKept(t *testing.T) {
	path := writeConfig(t, "camera:\n  rotation_degrees: 0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Rotation() != 0 {
		t.Errorf("rotation = %d, want 0", cfg.Rotation())
	}
}

func TestLoad_DisplayOrientation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want int
	}{
		{"zero_is_kept", "camera:\n  display_orientation: 0\n", 0},
		{"explicit", "camera:\n  display_orientation: 180\n", 180},
		{"independent_of_rotation", "camera:\n  rotation_degrees: 90\n", 90},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tc.yaml))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.DisplayOrientation() != tc.want {
				t.Errorf("display orientation = %d, want %d", cfg.DisplayOrientation(), tc.want)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"camera_type", "camera:\n  type: nikon\n"},
		{"rotation", "camera:\n  rotation_degrees: 45\n"},
		{"display_orientation", "camera:\n  display_orientation: 45\n"},
		{"policy", "camera:\n  capture_size_policy: best\n"},
		{"explicit_without_size", "camera:\n  capture_size_policy: explicit\n"},
		{"negative_index", "camera:\n  capture_size_policy: index\n  capture_index: -1\n"},
		{"format", "storage:\n  format: png\n"},
		{"quality", "storage:\n  quality: 101\n"},
		{"port", "web:\n  port: 70000\n"},
		{"debug_level", "defaults:\n  debug_level: 9\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	data := strings.Repeat("#", MaxConfigFileBytes+1)
	_, err := Load(writeConfig(t, data))
	if err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "{{{{invalid yaml!!!!"))
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("empty config should load with defaults, got: %v", err)
	}
	if cfg.Camera.Type != "sim" {
		t.Errorf("camera.type default = %q, want sim", cfg.Camera.Type)
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	yaml := `
camera:
  type: "sim"
unknown_section:
  foo: bar
`
	if _, err := Load(writeConfig(t, yaml)); err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "configs", "nonexistent.yaml")
	if _, err := Load(path); err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
	if !cfg.GPIO.Mock {
		t.Error("Default() should use mock GPIO")
	}
}
