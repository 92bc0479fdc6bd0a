package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/SnapGo/internal/app"
	"github.com/cjeanneret/SnapGo/internal/config"
	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/discovery"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/hw/gpio"
	"github.com/cjeanneret/SnapGo/internal/hw/panel"
	"github.com/cjeanneret/SnapGo/internal/logic/capture"
	"github.com/cjeanneret/SnapGo/internal/logic/gesture"
	"github.com/cjeanneret/SnapGo/internal/logic/permission"
	"github.com/cjeanneret/SnapGo/internal/logic/session"
	"github.com/cjeanneret/SnapGo/internal/logic/view"
	"github.com/cjeanneret/SnapGo/internal/loop"
	"github.com/cjeanneret/SnapGo/internal/web"
)

// cliOverrides holds flag values that replace config values. Negative
// device and debug values mean "use config".
type cliOverrides struct {
	Port   int
	Device int
	Debug  int
	Mock   bool
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "serve the viewer on port; -web= for default 8080, -web 8980 for custom port (default: config web.port)")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	device := flag.Int("device", -1, "override camera device index")
	debugLevel := flag.Int("debug", -1, "override debug level (0-4)")
	mock := flag.Bool("mock", false, "use the simulated camera and mock GPIO")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	overrides := cliOverrides{Port: webPort.port(), Device: *device, Debug: *debugLevel, Mock: *mock}
	if err := validateCLIOverrides(overrides); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, overrides)

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("snapgo: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	debug.Value("Mock GPIO", cfg.GPIO.Mock)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.GPIO.Mock)
	if err != nil {
		return fmt.Errorf("init GPIO: %w", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	debug.Step(2, "Initializing camera subsystem")
	opener, devicePath, err := newCameraFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init camera: %w", err)
	}
	debug.Value("Camera type", cfg.Camera.Type)
	debug.Value("Camera index", cfg.Camera.DeviceIndex)
	debug.PrintStruct("Storage config", cfg.Storage)

	g, gctx := errgroup.WithContext(ctx)
	events := loop.New(64)

	debug.Step(3, "Wiring application")
	gate := permission.NewGate(&permission.OSProvider{
		DevicePath: devicePath,
		SaveDir:    cfg.Storage.Dir,
		Dispatcher: events,
	})
	ctrl := app.New(gctx, app.Deps{
		Gate:     gate,
		Session:  session.New(opener, gate, events, session.OptionsFromConfig(cfg)),
		Pipeline: capture.NewPipeline(capture.OptionsFromConfig(cfg), capture.FileStore{}),
		View:     view.NewController(),
		Detector: gesture.NewDetector(cfg.Gesture.TouchSlopPx, cfg.Gesture.MinFlingVelocityPxS),
	})

	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	hub := web.NewHub(cfg.DisplayOrientation())
	// The loop is not running yet: presenters can be attached directly.
	ctrl.AddPresenter(hub)
	ctrl.ShutterHook = hub.Shutter

	leds, err := panel.NewLEDs(gpioDriver, cfg.GPIO.PreviewLEDPin, cfg.GPIO.ButtonLEDPin, cfg.GPIO.PhotoLEDPin)
	if err != nil {
		return err
	}
	ctrl.AddPresenter(leds)
	defer leds.Off()

	events.Post(ctrl.Start)
	g.Go(func() error { return events.Run(gctx) })

	if pin := cfg.GPIO.CaptureButtonPin; pin > 0 {
		button := panel.NewButton(gpioDriver, pin, cfg.PollInterval(), cfg.Debounce(), func() {
			events.Post(func() { _ = ctrl.Capture() })
		})
		g.Go(func() error { return button.Run(gctx) })
	}

	debug.Step(4, "Starting viewer")
	srv, err := web.NewServer(fmt.Sprintf(":%d", cfg.Web.Port), broadcaster, ctrl, events, hub)
	if err != nil {
		return err
	}
	g.Go(func() error {
		return srv.Run(gctx, func(port int) {
			debug.Summary(fmt.Sprintf("SnapGo viewer ready on port %d", port))
			if !cfg.Web.MDNS {
				return
			}
			g.Go(func() error {
				return discovery.Advertise(gctx, cfg.Web.Instance, port, map[string]string{
					"path":   "/",
					"camera": cfg.Camera.Type,
				})
			})
		})
	})

	err = g.Wait()

	// The loop has stopped: release the camera from this goroutine.
	ctrl.SurfaceDestroyed()
	debug.Section("Shutdown complete")
	return err
}

// validateCLIOverrides checks that set CLI overrides are within valid ranges.
func validateCLIOverrides(o cliOverrides) error {
	if o.Port < 0 || o.Port > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", o.Port)
	}
	if o.Device < -1 {
		return fmt.Errorf("device index must be >= 0, got %d", o.Device)
	}
	if o.Debug < -1 || o.Debug > 4 {
		return fmt.Errorf("debug level must be between 0 and 4, got %d", o.Debug)
	}
	return nil
}

// applyOverrides mutates cfg with the set overrides.
func applyOverrides(cfg *config.Config, o cliOverrides) {
	if o.Port > 0 {
		cfg.Web.Port = o.Port
	}
	if o.Device >= 0 {
		cfg.Camera.DeviceIndex = o.Device
	}
	if o.Debug >= 0 {
		cfg.Defaults.DebugLevel = o.Debug
	}
	if o.Mock {
		cfg.Camera.Type = "sim"
		cfg.GPIO.Mock = true
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
}

// webPortFlag implements flag.Value for -web: unset = config port, -web= → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

// newCameraFromConfig selects a camera implementation based on configuration.
// It also returns the device node checked for camera permission ("" for
// the simulated camera).
func newCameraFromConfig(cfg *config.Config) (camera.Opener, string, error) {
	switch cfg.Camera.Type {
	case "sim":
		return camera.NewSim(camera.SimConfig{
			Devices:       cfg.Camera.DeviceIndex + 1,
			PreviewSizes:  sizes(cfg.Camera.SimPreviewSizes),
			CaptureSizes:  sizes(cfg.Camera.SimCaptureSizes),
			FrameInterval: cfg.PreviewInterval(),
			ShutterDelay:  150 * time.Millisecond,
			EncodeDelay:   100 * time.Millisecond,
		}), "", nil
	case "v4l2":
		return camera.NewV4L2(cfg.Camera.DevicePath), cfg.DevicePathFor(cfg.Camera.DeviceIndex), nil
	default:
		return nil, "", fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}

func sizes(in []config.SizeConfig) []camera.Size {
	out := make([]camera.Size, 0, len(in))
	for _, s := range in {
		out = append(out, camera.Size{Width: s.Width, Height: s.Height})
	}
	return out
}
