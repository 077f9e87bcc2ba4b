package wxmatrix

// This file contains the capability the display uses to reach the physical
// strip along with an in memory implementation used when no hardware is
// attached and within tests

import (
	"image/color"

	"github.com/go-stack/stack"
	"github.com/karlmutch/errors"
)

// DisplayDriver is an exclusively owned handle onto a physical strip.  Pixels and
// brightness are staged and only reach the hardware on Flush.  Configure is
// called again whenever the matrix geometry or data pin changes, drivers are
// expected to reallocate whatever they hold for the strip when that happens.
type DisplayDriver interface {
	Configure(width, height, pin int) (err errors.Error)
	SetPixel(index int, c color.RGBA)
	SetBrightness(brightness uint8)
	Clear()
	Flush() (err errors.Error)
	Close() (err errors.Error)
}

// dim applies a strip brightness to a staged color, 255 leaves the color untouched
func dim(c color.RGBA, brightness uint8) color.RGBA {
	if brightness == 0xFF {
		return c
	}
	b := uint32(brightness)
	return color.RGBA{
		R: uint8(uint32(c.R) * b / 0xFF),
		G: uint8(uint32(c.G) * b / 0xFF),
		B: uint8(uint32(c.B) * b / 0xFF),
		A: 0xFF,
	}
}

// stagedFrame is the common staging buffer used by the concrete drivers
type stagedFrame struct {
	width, height, pin int
	pixels             []color.RGBA
	brightness         uint8
}

func (f *stagedFrame) configure(width, height, pin int) (err errors.Error) {
	if width <= 0 || height <= 0 {
		return errors.New("strip has no pixels").With("width", width).With("height", height).With("stack", stack.Trace().TrimRuntime())
	}
	f.width, f.height, f.pin = width, height, pin
	f.pixels = make([]color.RGBA, width*height)
	f.brightness = 0xFF
	return nil
}

func (f *stagedFrame) set(index int, c color.RGBA) {
	if index >= 0 && index < len(f.pixels) {
		f.pixels[index] = c
	}
}

func (f *stagedFrame) clear() {
	for i := range f.pixels {
		f.pixels[i] = black
	}
}

// output returns the staged frame with the brightness applied
func (f *stagedFrame) output() (out []color.RGBA) {
	out = make([]color.RGBA, len(f.pixels))
	for i, c := range f.pixels {
		out[i] = dim(c, f.brightness)
	}
	return out
}

// MemDriver keeps flushed frames in memory
type MemDriver struct {
	stagedFrame

	// Frames counts successful flushes
	Frames int
	// Last is the most recently flushed frame with brightness applied
	Last []color.RGBA
	// LastBrightness is the brightness in effect for Last
	LastBrightness uint8
	// Configured counts calls to Configure that succeeded
	Configured int

	// FailConfigure makes Configure fail, simulating a missing strip
	FailConfigure bool
}

// NewMemDriver creates an unconfigured in memory driver
func NewMemDriver() *MemDriver {
	return &MemDriver{}
}

func (d *MemDriver) Configure(width, height, pin int) (err errors.Error) {
	if d.FailConfigure {
		return errors.New("strip allocation failed").With("pin", pin).With("stack", stack.Trace().TrimRuntime())
	}
	if err = d.configure(width, height, pin); err != nil {
		return err
	}
	d.Configured++
	return nil
}

func (d *MemDriver) SetPixel(index int, c color.RGBA) {
	d.set(index, c)
}

func (d *MemDriver) SetBrightness(brightness uint8) {
	d.brightness = brightness
}

func (d *MemDriver) Clear() {
	d.clear()
}

func (d *MemDriver) Flush() (err errors.Error) {
	d.Last = d.output()
	d.LastBrightness = d.brightness
	d.Frames++
	return nil
}

func (d *MemDriver) Close() (err errors.Error) {
	return nil
}

// Geometry returns the values last passed to Configure
func (d *MemDriver) Geometry() (width, height, pin int) {
	return d.width, d.height, d.pin
}
