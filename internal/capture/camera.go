package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Camera is an exclusively owned capture resource.
type Camera interface {
	Open(ctx context.Context) error
	Grab(ctx context.Context) ([]byte, error)
	Close() error
}

var frameExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// DirCamera replays the JPEG/PNG files of a directory in name order, looping forever.
type DirCamera struct {
	dir string

	mu    sync.Mutex
	files []string
	next  int
}

// NewDirCamera creates a camera reading frames from dir.
func NewDirCamera(dir string) *DirCamera {
	return &DirCamera{dir: dir}
}

// Open lists the frame files. A missing or unreadable directory is a permission failure.
func (c *DirCamera) Open(ctx context.Context) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return fmt.Errorf("read camera dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(c.dir, e.Name()))
	}
	if len(files) == 0 {
		return fmt.Errorf("no frames in %s", c.dir)
	}
	sort.Strings(files)

	c.mu.Lock()
	c.files = files
	c.next = 0
	c.mu.Unlock()
	return nil
}

// Grab returns the bytes of the next file.
func (c *DirCamera) Grab(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if len(c.files) == 0 {
		c.mu.Unlock()
		return nil, errors.New("camera not open")
	}
	path := c.files[c.next%len(c.files)]
	c.next++
	c.mu.Unlock()
	return os.ReadFile(path)
}

// Close releases the file list.
func (c *DirCamera) Close() error {
	c.mu.Lock()
	c.files = nil
	c.mu.Unlock()
	return nil
}

// SyntheticCamera renders a moving test pattern, for demos and load tests without a device.
type SyntheticCamera struct {
	width, height int

	mu    sync.Mutex
	open  bool
	frame int
}

// NewSyntheticCamera creates a generator producing width x height JPEG frames.
func NewSyntheticCamera(width, height int) *SyntheticCamera {
	if width <= 0 {
		width = 480
	}
	if height <= 0 {
		height = 640
	}
	return &SyntheticCamera{width: width, height: height}
}

func (c *SyntheticCamera) Open(ctx context.Context) error {
	c.mu.Lock()
	c.open = true
	c.frame = 0
	c.mu.Unlock()
	return nil
}

// Grab draws a disc orbiting the frame centre and encodes it as JPEG.
func (c *SyntheticCamera) Grab(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil, errors.New("camera not open")
	}
	n := c.frame
	c.frame++
	c.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	angle := float64(n) * math.Pi / 12
	cx := float64(c.width)/2 + math.Cos(angle)*float64(c.width)/4
	cy := float64(c.height)/2 + math.Sin(angle)*float64(c.height)/4
	r := float64(min(c.width, c.height)) / 8
	for y := 0; y < c.height; y++ {
		for x := 0; x < c.width; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			if dx*dx+dy*dy <= r*r {
				img.Set(x, y, color.RGBA{R: 230, G: 190, B: 160, A: 255})
				continue
			}
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / c.width), G: 40, B: uint8(y * 255 / c.height), A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *SyntheticCamera) Close() error {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	return nil
}
