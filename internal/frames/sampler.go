package frames

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"sync/atomic"

	"golang.org/x/image/draw"

	"signcoach/internal/domain"
	"signcoach/internal/ports"
)

// ErrFrameNotReady means the source has not decoded a frame yet.
var ErrFrameNotReady = domain.ErrFrameNotReady

const defaultQuality = 80

// Options controls frame encoding.
type Options struct {
	// Quality is the JPEG quality in 1..100.
	Quality int
	// MaxWidth downscales wider frames, keeping aspect ratio. Zero disables scaling.
	MaxWidth int
}

// Factory builds samplers with shared options.
type Factory struct {
	opts Options
}

func NewFactory(opts Options) *Factory {
	return &Factory{opts: normalizeOptions(opts)}
}

func (f *Factory) NewSampler(source ports.FrameSource) ports.FrameSampler {
	return NewSampler(source, f.opts)
}

// Sampler turns the latest camera frame into a base64 JPEG payload.
type Sampler struct {
	source ports.FrameSource
	opts   Options
	seq    atomic.Uint64
}

func NewSampler(source ports.FrameSource, opts Options) *Sampler {
	return &Sampler{source: source, opts: normalizeOptions(opts)}
}

// Capture encodes the current frame. Each successful call yields a payload
// with a fresh sequence number.
func (s *Sampler) Capture() (domain.FramePayload, error) {
	if s.source == nil {
		return domain.FramePayload{}, ErrFrameNotReady
	}
	img, ok := s.source.LatestFrame()
	if !ok || img == nil || img.Bounds().Empty() {
		return domain.FramePayload{}, ErrFrameNotReady
	}

	encoded, err := EncodeJPEG(scaleToWidth(img, s.opts.MaxWidth), s.opts.Quality)
	if err != nil {
		return domain.FramePayload{}, err
	}
	return domain.FramePayload{Seq: s.seq.Add(1), Image: encoded}, nil
}

// EncodeJPEG returns the base64 encoding of img as JPEG, without a data URL prefix.
func EncodeJPEG(img image.Image, quality int) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("failed to encode frame: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func scaleToWidth(img image.Image, maxWidth int) image.Image {
	bounds := img.Bounds()
	if maxWidth <= 0 || bounds.Dx() <= maxWidth {
		return img
	}
	height := bounds.Dy() * maxWidth / bounds.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}

func normalizeOptions(opts Options) Options {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = defaultQuality
	}
	if opts.MaxWidth < 0 {
		opts.MaxWidth = 0
	}
	return opts
}
