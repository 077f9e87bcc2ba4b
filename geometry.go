package wxmatrix

// Mapping from the logical matrix grid onto the physically wired strip.  The
// transform is applied in a fixed order: orientation, horizontal flip, start
// corner and finally serpentine row reversal.

import (
	"github.com/TeamNorCal/wxmatrix/model"
)

// PixelIndex maps the logical coordinate (x, y) onto an index into the physical
// strip.  ok is false when the coordinate, or its transformed form, falls
// outside the grid, drawing code skips such pixels.
func PixelIndex(cfg model.MatrixConfig, x, y int) (idx int, ok bool) {
	w := int(cfg.Width)
	h := int(cfg.Height)
	if x < 0 || y < 0 || x >= w || y >= h {
		return -1, false
	}

	rx, ry := x, y

	switch cfg.Orientation % 4 {
	case model.Deg90:
		rx = y
		ry = w - 1 - x
	case model.Deg180:
		rx = w - 1 - x
		ry = h - 1 - y
	case model.Deg270:
		rx = h - 1 - y
		ry = x
	}

	if cfg.FlipX {
		rx = w - 1 - rx
	}
	if cfg.StartBottom {
		ry = h - 1 - ry
	}

	if ry < 0 || ry >= h {
		return -1, false
	}

	if cfg.Serpentine && ry%2 == 1 {
		rx = w - 1 - rx
	}

	if rx < 0 || rx >= w {
		return -1, false
	}

	return ry*w + rx, true
}
