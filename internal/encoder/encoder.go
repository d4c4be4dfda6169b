package encoder

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG for DirCamera frames
	"time"

	"golang.org/x/image/draw"

	"github.com/signstream/streamer/internal/capture"
	"github.com/signstream/streamer/internal/models"
)

// DataURLPrefix is prepended to every encoded frame.
const DataURLPrefix = "data:image/jpeg;base64,"

// Config sets the output geometry and JPEG quality.
type Config struct {
	Width   int
	Height  int
	Quality int
}

// DefaultConfig keeps frames small enough to sustain the capture interval on mobile links.
func DefaultConfig() Config {
	return Config{Width: 240, Height: 320, Quality: 40}
}

// Encoder turns raw camera frames into transport payloads.
type Encoder struct {
	cfg    Config
	scaler draw.Scaler
	now    func() time.Time
}

// New creates an encoder; non-positive fields fall back to DefaultConfig.
func New(cfg Config) *Encoder {
	def := DefaultConfig()
	if cfg.Width <= 0 {
		cfg.Width = def.Width
	}
	if cfg.Height <= 0 {
		cfg.Height = def.Height
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = def.Quality
	}
	return &Encoder{cfg: cfg, scaler: draw.ApproxBiLinear, now: time.Now}
}

// Encode downsamples and recompresses the frame. Failures are *capture.CaptureError.
func (e *Encoder) Encode(frame models.Frame) (models.Payload, error) {
	if len(frame.Data) == 0 {
		return models.Payload{}, &capture.CaptureError{Op: "decode", Err: errors.New("empty frame")}
	}
	src, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return models.Payload{}, &capture.CaptureError{Op: "decode", Err: err}
	}

	dst := image.NewRGBA(image.Rect(0, 0, e.cfg.Width, e.cfg.Height))
	e.scaler.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	buf.WriteString(DataURLPrefix)
	b64 := base64.NewEncoder(base64.StdEncoding, &buf)
	if err := jpeg.Encode(b64, dst, &jpeg.Options{Quality: e.cfg.Quality}); err != nil {
		return models.Payload{}, &capture.CaptureError{Op: "encode", Err: err}
	}
	if err := b64.Close(); err != nil {
		return models.Payload{}, &capture.CaptureError{Op: "encode", Err: fmt.Errorf("base64: %w", err)}
	}

	return models.Payload{
		Data:       buf.String(),
		CapturedAt: frame.CapturedAt,
		SentAt:     e.now(),
	}, nil
}

// Decode reverses the transport encoding, for diagnostics and tests.
func Decode(p models.Payload) (image.Image, error) {
	if len(p.Data) < len(DataURLPrefix) || p.Data[:len(DataURLPrefix)] != DataURLPrefix {
		return nil, errors.New("not a jpeg data url")
	}
	raw, err := base64.StdEncoding.DecodeString(p.Data[len(DataURLPrefix):])
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	return jpeg.Decode(bytes.NewReader(raw))
}
