package wxmatrix

import (
	"github.com/TeamNorCal/wxmatrix/model"
)

// InNightWindow tests whether minute lies inside [start, end).  A window whose
// start is after its end wraps past midnight, equal start and end disables the
// window.
func InNightWindow(start, end, minute uint16) bool {
	if start == end {
		return false
	}
	if start < end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}

// CappedBrightness is the configured brightness limited by the hard ceiling, a
// ceiling of zero means no ceiling
func CappedBrightness(cfg model.MatrixConfig) uint8 {
	if cfg.MaxBrightness != 0 && cfg.Brightness > cfg.MaxBrightness {
		return cfg.MaxBrightness
	}
	return cfg.Brightness
}

// EffectiveBrightness is the brightness actually applied to the strip once the
// ceiling and the night window have been taken into account
func EffectiveBrightness(cfg model.MatrixConfig, clock Clock) uint8 {
	base := CappedBrightness(cfg)
	if !cfg.NightEnabled || clock == nil || !clock.Synchronized() {
		return base
	}

	now := clock.Now()
	minute := uint16(now.Hour()*60 + now.Minute())
	if !InNightWindow(cfg.NightStartMin%model.MinutesPerDay, cfg.NightEndMin%model.MinutesPerDay, minute) {
		return base
	}
	if cfg.NightBrightness == 0 {
		return base
	}
	// The ceiling is a hardware limit and binds the night level as well
	if cfg.MaxBrightness != 0 && cfg.NightBrightness > cfg.MaxBrightness {
		return cfg.MaxBrightness
	}
	return cfg.NightBrightness
}
