package camera

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"sync"
	"testing"
	"time"
)

// recordingDisplay records rendered frames for verification.
type recordingDisplay struct {
	mu     sync.Mutex
	frames [][]byte
}

func (d *recordingDisplay) Render(frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, frame)
	return nil
}

func (d *recordingDisplay) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames)
}

func fastSim() *Sim {
	return NewSim(SimConfig{
		PreviewSizes:  []Size{{64, 48}, {128, 96}},
		CaptureSizes:  []Size{{1280, 720}, {320, 240}},
		FrameInterval: time.Millisecond,
	})
}

func TestSim_ExclusiveOpen(t *testing.T) {
	sim := fastSim()
	dev, err := sim.Open(0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := sim.Open(0); !errors.Is(err, ErrBusy) {
		t.Errorf("second Open = %v, want ErrBusy", err)
	}
	if err := dev.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if sim.Held() {
		t.Error("device still held after Release")
	}
	dev2, err := sim.Open(0)
	if err != nil {
		t.Fatalf("Open after Release: %v", err)
	}
	dev2.Release()
}

func TestSim_OpenUnknownIndex(t *testing.T) {
	if _, err := fastSim().Open(3); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(3) = %v, want ErrNotFound", err)
	}
}

func TestSim_ReleaseIdempotent(t *testing.T) {
	sim := fastSim()
	dev, _ := sim.Open(0)
	dev.Release()
	dev.Release()
	if sim.Held() {
		t.Error("device held after double Release")
	}
}

func TestSim_PreviewRendersFrames(t *testing.T) {
	sim := fastSim()
	dev, _ := sim.Open(0)
	defer dev.Release()

	disp := &recordingDisplay{}
	if err := dev.SetParameters(Parameters{PreviewSize: Size{64, 48}, CaptureSize: Size{320, 240}, Encoding: EncodingJPEG}); err != nil {
		t.Fatalf("SetParameters: %v", err)
	}
	dev.BindDisplay(disp)
	if err := dev.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for disp.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	dev.Stop()
	if disp.count() < 3 {
		t.Fatalf("rendered %d frames, want >= 3", disp.count())
	}

	disp.mu.Lock()
	frame := disp.frames[0]
	disp.mu.Unlock()
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("preview frame is not JPEG: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 48 {
		t.Errorf("preview frame = %dx%d, want 64x48", cfg.Width, cfg.Height)
	}
}

func TestSim_CaptureStill(t *testing.T) {
	sim := fastSim()
	dev, _ := sim.Open(0)
	defer dev.Release()
	dev.SetParameters(Parameters{PreviewSize: Size{64, 48}, CaptureSize: Size{320, 240}, Encoding: EncodingJPEG})

	shutter := make(chan struct{}, 2)
	images := make(chan []byte, 2)
	err := dev.CaptureStill(
		func() { shutter <- struct{}{} },
		func(data []byte) { images <- data },
		func(err error) { t.Errorf("capture failed: %v", err) },
	)
	if err != nil {
		t.Fatalf("CaptureStill: %v", err)
	}

	select {
	case <-shutter:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for shutter")
	}
	select {
	case data := <-images:
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("still is not JPEG: %v", err)
		}
		if cfg.Width != 320 || cfg.Height != 240 {
			t.Errorf("still = %dx%d, want 320x240", cfg.Width, cfg.Height)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for image")
	}
}

func TestSim_SetParametersRejectsUnknownEncoding(t *testing.T) {
	dev, _ := fastSim().Open(0)
	defer dev.Release()
	if err := dev.SetParameters(Parameters{Encoding: "raw"}); err == nil {
		t.Error("expected error for raw encoding")
	}
}
