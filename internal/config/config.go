package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Capture size selection policies.
const (
	PolicyFirst    = "first"    // first size in the device-reported list
	PolicyIndex    = "index"    // capture_index into the device-reported list
	PolicyExplicit = "explicit" // capture_width x capture_height, must be supported
)

// Storage formats.
const (
	FormatJPEG = "jpeg"
	FormatWebP = "webp"
)

// defaultRotation matches the rear sensor mounting of the reference board.
const defaultRotation = 270

// defaultDisplayOrientation turns the landscape sensor feed upright on a
// portrait display.
const defaultDisplayOrientation = 90

// SizeConfig is a width/height pair in pixels.
type SizeConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// CameraConfig describes which camera backend to open and how to configure it.
type CameraConfig struct {
	Type               string     `yaml:"type"`                // "v4l2" or "sim"
	DeviceIndex        int        `yaml:"device_index"`        // hardware index passed to Open
	DevicePath         string     `yaml:"device_path"`         // printf pattern, e.g. "/dev/video%d"
	PreviewSize        SizeConfig `yaml:"preview_size"`        // preferred preview size; 0 = device preferred
	CaptureSizePolicy  string     `yaml:"capture_size_policy"` // first | index | explicit
	CaptureIndex       int        `yaml:"capture_index"`       // used by policy "index"
	CaptureSize        SizeConfig `yaml:"capture_size"`        // used by policy "explicit"
	RotationDegrees    *int       `yaml:"rotation_degrees"`    // output rotation matching sensor mounting; nil = 270
	DisplayOrientation *int       `yaml:"display_orientation"` // clockwise rotation the viewer applies to preview frames; nil = 90
	SoftwareRotation   bool       `yaml:"software_rotation"`   // rotate decoded photos when the hardware does not
	PreviewFPS         int        `yaml:"preview_fps"`         // sim backend frame rate

	// Sizes reported by the simulated device.
	SimPreviewSizes []SizeConfig `yaml:"sim_preview_sizes,omitempty"`
	SimCaptureSizes []SizeConfig `yaml:"sim_capture_sizes,omitempty"`
}

// StorageConfig describes where captured photos are written.
type StorageConfig struct {
	Dir     string `yaml:"dir"`     // fixed save directory
	Format  string `yaml:"format"`  // "jpeg" or "webp"
	Quality int    `yaml:"quality"` // 1-100
}

// GPIOConfig holds the pins of the physical panel. Pin 0 = not used.
type GPIOConfig struct {
	Mock             bool `yaml:"mock"`               // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	CaptureButtonPin int  `yaml:"capture_button_pin"` // active LOW push button (internal pull-up)
	PreviewLEDPin    int  `yaml:"preview_led_pin"`
	ButtonLEDPin     int  `yaml:"button_led_pin"`
	PhotoLEDPin      int  `yaml:"photo_led_pin"`
	PollMs           int  `yaml:"poll_ms"`     // button sampling interval
	DebounceMs       int  `yaml:"debounce_ms"` // minimum time between two accepted presses
}

// GestureConfig holds the gesture detector thresholds.
type GestureConfig struct {
	TouchSlopPx         float64 `yaml:"touch_slop_px"`
	MinFlingVelocityPxS float64 `yaml:"min_fling_velocity_px_s"`
}

// WebConfig configures the viewer (display surface provider).
type WebConfig struct {
	Port     int    `yaml:"port"`
	MDNS     bool   `yaml:"mdns"`
	Instance string `yaml:"instance"` // mDNS instance name
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
}

// Config aggregates all application configuration.
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Storage  StorageConfig  `yaml:"storage"`
	GPIO     GPIOConfig     `yaml:"gpio"`
	Gesture  GestureConfig  `yaml:"gesture"`
	Web      WebConfig      `yaml:"web"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath rejects config paths outside a configs/ directory,
// with traversal components, or without a .yaml extension.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if strings.Contains(filepath.ToSlash(path), "..") {
		return fmt.Errorf("config path must not contain '..': %s", path)
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config file must have .yaml extension: %s", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file must live in a configs/ directory: %s", path)
	}
	return nil
}

// MaxConfigFileBytes bounds the size of a config file accepted by Load.
const MaxConfigFileBytes = 1 << 20

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration suitable for a development machine
// (simulated camera, mock GPIO).
func Default() *Config {
	cfg := &Config{
		Camera: CameraConfig{Type: "sim"},
		GPIO:   GPIOConfig{Mock: true},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Camera.Type == "" {
		c.Camera.Type = "sim"
	}
	if c.Camera.DevicePath == "" {
		c.Camera.DevicePath = "/dev/video%d"
	}
	if c.Camera.CaptureSizePolicy == "" {
		c.Camera.CaptureSizePolicy = PolicyFirst
	}
	if c.Camera.RotationDegrees == nil {
		rot := defaultRotation
		c.Camera.RotationDegrees = &rot
	}
	if c.Camera.DisplayOrientation == nil {
		o := defaultDisplayOrientation
		c.Camera.DisplayOrientation = &o
	}
	if c.Camera.PreviewFPS <= 0 {
		c.Camera.PreviewFPS = 10
	}
	if len(c.Camera.SimPreviewSizes) == 0 {
		c.Camera.SimPreviewSizes = []SizeConfig{{640, 480}, {1280, 720}}
	}
	if len(c.Camera.SimCaptureSizes) == 0 {
		c.Camera.SimCaptureSizes = []SizeConfig{{1280, 720}, {1920, 1080}}
	}

	if c.Storage.Dir == "" {
		c.Storage.Dir = "photos"
	}
	if c.Storage.Format == "" {
		c.Storage.Format = FormatJPEG
	}
	if c.Storage.Quality <= 0 {
		c.Storage.Quality = 100
	}

	if c.GPIO.PollMs <= 0 {
		c.GPIO.PollMs = 20
	}
	if c.GPIO.DebounceMs <= 0 {
		c.GPIO.DebounceMs = 250
	}

	if c.Gesture.TouchSlopPx <= 0 {
		c.Gesture.TouchSlopPx = 8
	}
	if c.Gesture.MinFlingVelocityPxS <= 0 {
		c.Gesture.MinFlingVelocityPxS = 50
	}

	if c.Web.Instance == "" {
		c.Web.Instance = "SnapGo"
	}
}

// Validate checks value ranges. Defaults must already be applied.
func (c *Config) Validate() error {
	switch c.Camera.Type {
	case "v4l2", "sim":
	default:
		return fmt.Errorf("unsupported camera.type: %s", c.Camera.Type)
	}
	if c.Camera.DeviceIndex < 0 {
		return fmt.Errorf("camera.device_index must be >= 0, got %d", c.Camera.DeviceIndex)
	}
	switch c.Rotation() {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("camera.rotation_degrees must be 0, 90, 180 or 270, got %d", c.Rotation())
	}
	switch c.DisplayOrientation() {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("camera.display_orientation must be 0, 90, 180 or 270, got %d", c.DisplayOrientation())
	}
	switch c.Camera.CaptureSizePolicy {
	case PolicyFirst:
	case PolicyIndex:
		if c.Camera.CaptureIndex < 0 {
			return fmt.Errorf("camera.capture_index must be >= 0, got %d", c.Camera.CaptureIndex)
		}
	case PolicyExplicit:
		if c.Camera.CaptureSize.Width <= 0 || c.Camera.CaptureSize.Height <= 0 {
			return fmt.Errorf("camera.capture_size is required with policy %q", PolicyExplicit)
		}
	default:
		return fmt.Errorf("unsupported camera.capture_size_policy: %s", c.Camera.CaptureSizePolicy)
	}
	switch c.Storage.Format {
	case FormatJPEG, FormatWebP:
	default:
		return fmt.Errorf("unsupported storage.format: %s", c.Storage.Format)
	}
	if c.Storage.Quality > 100 {
		return fmt.Errorf("storage.quality must be between 1 and 100, got %d", c.Storage.Quality)
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port must be 0-65535, got %d", c.Web.Port)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// Rotation returns the configured output rotation in degrees.
func (c *Config) Rotation() int {
	if c.Camera.RotationDegrees == nil {
		return defaultRotation
	}
	return *c.Camera.RotationDegrees
}

// DisplayOrientation returns the clockwise rotation applied to preview
// frames by the viewer.
func (c *Config) DisplayOrientation() int {
	if c.Camera.DisplayOrientation == nil {
		return defaultDisplayOrientation
	}
	return *c.Camera.DisplayOrientation
}

// DevicePathFor returns the device node for the configured index.
func (c *Config) DevicePathFor(index int) string {
	return fmt.Sprintf(c.Camera.DevicePath, index)
}

// PollInterval returns the capture button sampling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.GPIO.PollMs) * time.Millisecond
}

// Debounce returns the minimum time between two accepted button presses.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.GPIO.DebounceMs) * time.Millisecond
}

// PreviewInterval returns the time between two simulated preview frames.
func (c *Config) PreviewInterval() time.Duration {
	return time.Second / time.Duration(c.Camera.PreviewFPS)
}

// SaveExtension returns the file extension for the configured save format.
func (c *Config) SaveExtension() string {
	return Extension(c.Storage.Format)
}

// Extension returns the file extension for a storage format.
func Extension(format string) string {
	if format == FormatWebP {
		return ".webp"
	}
	return ".jpg"
}
