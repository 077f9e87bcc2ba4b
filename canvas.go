package wxmatrix

// Frame buffer for one rendered frame.  Scenes draw with logical coordinates,
// the canvas stores colors in physical strip order so the buffer can be handed
// to a driver as is.

import (
	"image"
	"image/color"

	"github.com/TeamNorCal/wxmatrix/model"
)

var black = color.RGBA{A: 0xFF}

// Canvas holds a frame in physical strip order
type Canvas struct {
	cfg model.MatrixConfig
	pix []color.RGBA
}

// NewCanvas creates a blank canvas sized for the configured matrix
func NewCanvas(cfg model.MatrixConfig) (c *Canvas) {
	c = &Canvas{}
	c.Reset(cfg)
	return c
}

// Reset adopts a new configuration, reallocating the buffer only when the
// pixel count changes, and blanks the frame
func (c *Canvas) Reset(cfg model.MatrixConfig) {
	c.cfg = cfg
	if n := cfg.PixelCount(); n != len(c.pix) {
		c.pix = make([]color.RGBA, n)
	}
	c.Clear()
}

// Config is the configuration the canvas was last reset with
func (c *Canvas) Config() model.MatrixConfig {
	return c.cfg
}

// Width is the logical width in pixels
func (c *Canvas) Width() int {
	return int(c.cfg.Width)
}

// Height is the logical height in pixels
func (c *Canvas) Height() int {
	return int(c.cfg.Height)
}

// Clear blanks every pixel
func (c *Canvas) Clear() {
	for i := range c.pix {
		c.pix[i] = black
	}
}

// Fill paints every pixel with the same color
func (c *Canvas) Fill(col color.RGBA) {
	for i := range c.pix {
		c.pix[i] = col
	}
}

// Set paints the logical pixel (x, y), coordinates that do not map onto the
// strip are ignored
func (c *Canvas) Set(x, y int, col color.RGBA) {
	if idx, ok := PixelIndex(c.cfg, x, y); ok && idx < len(c.pix) {
		c.pix[idx] = col
	}
}

// At returns the color of the logical pixel (x, y), black when it does not exist
func (c *Canvas) At(x, y int) color.RGBA {
	if idx, ok := PixelIndex(c.cfg, x, y); ok && idx < len(c.pix) {
		return c.pix[idx]
	}
	return black
}

// Pixels returns the frame in physical strip order.  The slice references the
// canvas buffer and is overwritten by the next frame.
func (c *Canvas) Pixels() []color.RGBA {
	return c.pix
}

// Image returns a copy of the frame laid out in logical coordinates
func (c *Canvas) Image() (img *image.RGBA) {
	img = image.NewRGBA(image.Rect(0, 0, c.Width(), c.Height()))
	for y := 0; y < c.Height(); y++ {
		for x := 0; x < c.Width(); x++ {
			img.SetRGBA(x, y, c.At(x, y))
		}
	}
	return img
}
