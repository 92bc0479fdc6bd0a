// Package capture turns the raw bytes of a still into a decoded photo
// and persists it.
package capture

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"strconv"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/cjeanneret/SnapGo/internal/config"
	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/domain"
)

// Image is one captured photo, superseded by the next capture.
type Image struct {
	Raw    []byte
	Bitmap image.Image
	Path   string
	Taken  time.Time
}

// Options configures the pipeline.
type Options struct {
	Dir     string
	Format  string // config.FormatJPEG or config.FormatWebP
	Ext     string // file extension; derived from Format when empty
	Quality int
	// Rotation is applied clockwise to the decoded bitmap; 0 when the
	// hardware already rotates.
	Rotation int
}

// OptionsFromConfig maps the storage and camera config to pipeline options.
func OptionsFromConfig(cfg *config.Config) Options {
	o := Options{
		Dir:     cfg.Storage.Dir,
		Format:  cfg.Storage.Format,
		Ext:     cfg.SaveExtension(),
		Quality: cfg.Storage.Quality,
	}
	if cfg.Camera.SoftwareRotation {
		o.Rotation = cfg.Rotation()
	}
	return o
}

// Pipeline decodes, rotates, encodes and saves stills.
type Pipeline struct {
	opts    Options
	store   Store
	stamper *Stamper
}

// NewPipeline creates a pipeline writing through store.
func NewPipeline(opts Options, store Store) *Pipeline {
	if opts.Quality <= 0 {
		opts.Quality = 100
	}
	if opts.Ext == "" {
		opts.Ext = config.Extension(opts.Format)
	}
	return &Pipeline{opts: opts, store: store, stamper: NewStamper()}
}

// HandleImageReady decodes raw and saves it under <dir>/<millis><ext>.
// A decode failure returns ErrDecode and no image. A write failure
// returns ErrIO together with the decoded image.
func (p *Pipeline) HandleImageReady(raw []byte) (*Image, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, domain.Wrap("capture.HandleImageReady", domain.ErrDecode, err)
	}
	debug.Verbose("Decoded %s still %dx%d", format, img.Bounds().Dx(), img.Bounds().Dy())
	img = rotate(img, p.opts.Rotation)

	ms := p.stamper.Next()
	out := &Image{
		Raw:    raw,
		Bitmap: img,
		Path:   filepath.Join(p.opts.Dir, strconv.FormatInt(ms, 10)+p.opts.Ext),
		Taken:  time.UnixMilli(ms),
	}

	data, err := p.encode(img)
	if err != nil {
		return out, domain.Wrap("capture.HandleImageReady", domain.ErrIO, err)
	}
	if err := p.store.Write(out.Path, data); err != nil {
		return out, domain.Wrap("capture.HandleImageReady", domain.ErrIO, err)
	}
	debug.Saved(out.Path, len(data))
	return out, nil
}

func (p *Pipeline) encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	switch p.opts.Format {
	case config.FormatWebP:
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(p.opts.Quality)}); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
	default:
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.opts.Quality)); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// EncodeJPEG re-encodes a decoded photo for display.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// rotate turns img clockwise by degrees (imaging rotates counter-clockwise).
func rotate(img image.Image, degrees int) image.Image {
	switch degrees {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
