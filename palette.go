package wxmatrix

// Color resolution for text pixels plus the small set of color helpers shared
// by the scenes

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/TeamNorCal/wxmatrix/model"
)

const (
	cyclePeriodMs = 8000
	pulsePeriodMs = 1000
	pulseMin      = 0.35
	pulseMax      = 1.0
)

func clamp8(v float64) uint8 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}

func rgb(r, g, b uint8) color.RGBA {
	return color.RGBA{R: r, G: g, B: b, A: 0xFF}
}

func toColorful(c model.RGB) colorful.Color {
	return colorful.Color{R: float64(c.R) / 255.0, G: float64(c.G) / 255.0, B: float64(c.B) / 255.0}
}

// rainbow maps a phase in [0,1) through three sine waves offset by a third of a
// turn each
func rainbow(t float64) color.RGBA {
	wave := func(offset float64) uint8 {
		return clamp8(math.Sin((t+offset)*2*math.Pi)*127 + 128)
	}
	return rgb(wave(0), wave(1.0/3.0), wave(2.0/3.0))
}

// ColorAt resolves the color of text drawn at column x under the configured
// color mode.  millis is the animation clock used by the cycle mode.
//
// The cycle mode evaluates the sine waves per pixel per frame, fine for the
// small grids this drives, a per column table would be the next step for large
// grids.
func ColorAt(cfg model.MatrixConfig, x int, millis int64) color.RGBA {
	switch cfg.ColorMode {
	case model.ColorSolid:
		return cfg.Color1.RGBA()
	case model.ColorGradient:
		t := 0.0
		if cfg.Width > 1 {
			t = float64(x) / float64(cfg.Width-1)
		}
		r, g, b := toColorful(cfg.Color1).BlendRgb(toColorful(cfg.Color2), t).Clamped().RGB255()
		return rgb(r, g, b)
	default:
		t := float64(millis%cyclePeriodMs) / cyclePeriodMs
		if cfg.Width > 0 {
			t += float64(x) / float64(cfg.Width)
		}
		return rainbow(math.Mod(t, 1.0))
	}
}

// PulseFactor is the 1 Hz brightness multiplier applied to clock colons, a
// smooth sine between pulseMin and pulseMax
func PulseFactor(millis int64) float64 {
	phase := float64(millis%pulsePeriodMs) / pulsePeriodMs
	wave := 0.5 + 0.5*math.Sin(2*math.Pi*phase-math.Pi/2)
	return pulseMin + (pulseMax-pulseMin)*wave
}

func scale(col color.RGBA, factor float64) color.RGBA {
	return rgb(
		clamp8(float64(col.R)*factor),
		clamp8(float64(col.G)*factor),
		clamp8(float64(col.B)*factor),
	)
}
