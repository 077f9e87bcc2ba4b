package model

// This module defines the runtime view of the matrix configuration along with
// the state payload that is broadcast whenever the configuration changes

import (
	"image/color"
)

// ColorMode selects how text pixels are colored
type ColorMode uint8

const (
	ColorSolid ColorMode = iota
	ColorGradient
	ColorCycle
)

// Valid is true for the three defined color modes
func (m ColorMode) Valid() bool {
	return m <= ColorCycle
}

// Orientation is the rotation applied to logical coordinates, stored as an index
// into {0, 90, 180, 270} degrees
type Orientation uint8

const (
	Deg0 Orientation = iota
	Deg90
	Deg180
	Deg270
)

// Degrees returns the rotation in degrees
func (o Orientation) Degrees() int {
	return int(o%4) * 90
}

// OrientationFromDegrees converts a multiple of 90 degrees, including negative
// values and values beyond a full turn, into an Orientation
func OrientationFromDegrees(deg int) (o Orientation, ok bool) {
	if deg%90 != 0 {
		return Deg0, false
	}
	idx := (deg / 90) % 4
	if idx < 0 {
		idx += 4
	}
	return Orientation(idx), true
}

// RGB is a palette entry
type RGB struct {
	R, G, B uint8
}

// RGBA converts the palette entry into an opaque color
func (c RGB) RGBA() color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xFF}
}

// Array returns the palette entry in the [r,g,b] wire form
func (c RGB) Array() [3]uint8 {
	return [3]uint8{c.R, c.G, c.B}
}

const (
	// DefaultNightStart is 23:00 expressed as minute of day
	DefaultNightStart = 23 * 60
	// DefaultNightEnd is 07:00 expressed as minute of day
	DefaultNightEnd = 7 * 60
	// MinutesPerDay bounds every minute-of-day value
	MinutesPerDay = 24 * 60
	// DefaultFPS is used whenever the configured frame rate is zero
	DefaultFPS = 30
)

// MatrixConfig is the single authoritative description of the matrix, its wiring
// and the user visible rendering options.  The multi-scene cycling fields that
// older releases persisted are absent, they only exist inside the
// persistence adapter.
type MatrixConfig struct {
	Enabled bool

	Pin    uint8
	Width  uint16
	Height uint16

	Serpentine  bool
	StartBottom bool
	FlipX       bool
	Orientation Orientation

	Brightness    uint8
	MaxBrightness uint8

	NightEnabled    bool
	NightStartMin   uint16
	NightEndMin     uint16
	NightBrightness uint8

	FPS uint16

	ClockUse12h      bool
	ClockShowSeconds bool
	ClockShowMillis  bool

	ColorMode ColorMode
	Color1    RGB
	Color2    RGB
}

// DefaultMatrixConfig returns the configuration used before anything has been persisted
func DefaultMatrixConfig() MatrixConfig {
	return MatrixConfig{
		Enabled:          false,
		Pin:              2,
		Width:            32,
		Height:           8,
		Serpentine:       true,
		StartBottom:      false,
		FlipX:            false,
		Orientation:      Deg0,
		Brightness:       48,
		MaxBrightness:    96,
		NightEnabled:     false,
		NightStartMin:    DefaultNightStart,
		NightEndMin:      DefaultNightEnd,
		NightBrightness:  16,
		FPS:              DefaultFPS,
		ClockUse12h:      false,
		ClockShowSeconds: true,
		ClockShowMillis:  false,
		ColorMode:        ColorSolid,
		Color1:           RGB{120, 210, 255},
		Color2:           RGB{180, 120, 255},
	}
}

// PixelCount is the length of the physical strip
func (cfg MatrixConfig) PixelCount() int {
	return int(cfg.Width) * int(cfg.Height)
}

// StatePayload is the document broadcast to remote observers after every
// command or save.  scene, dwell and transition are reported as constants as
// scene cycling is not available.
type StatePayload struct {
	Enabled             bool     `json:"enabled"`
	Brightness          uint8    `json:"brightness"`
	EffectiveBrightness uint8    `json:"effectiveBrightness"`
	MaxBrightness       uint8    `json:"maxBrightness"`
	Night               bool     `json:"night"`
	Scene               int      `json:"scene"`
	Width               uint16   `json:"width"`
	Height              uint16   `json:"height"`
	FPS                 uint16   `json:"fps"`
	Dwell               int      `json:"dwell"`
	Transition          int      `json:"transition"`
	ClockUse12h         bool     `json:"clockUse12h"`
	ClockShowSeconds    bool     `json:"clockShowSeconds"`
	ClockShowMillis     bool     `json:"clockShowMillis"`
	ColorMode           uint8    `json:"colorMode"`
	Color1              [3]uint8 `json:"color1"`
	Color2              [3]uint8 `json:"color2"`
}
