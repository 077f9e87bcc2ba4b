package wxmatrix

// This file contains a display driver that draws the strip on a terminal using
// 24 bit background colors, useful when running away from the hardware

import (
	"bufio"
	"fmt"
	"image/color"
	"io"

	"github.com/go-stack/stack"
	"github.com/karlmutch/errors"

	termcolor "github.com/fatih/color"
)

// TermDriver writes each flushed frame as rows of colored blocks.  Pixels are
// drawn in strip order, width pixels to a row, so the wiring of the matrix can
// be checked without a strip attached.
type TermDriver struct {
	stagedFrame

	out   io.Writer
	drawn bool
}

// NewTermDriver creates a driver writing to out
func NewTermDriver(out io.Writer) *TermDriver {
	return &TermDriver{out: out}
}

func (d *TermDriver) Configure(width, height, pin int) (err errors.Error) {
	if err = d.configure(width, height, pin); err != nil {
		return err
	}
	d.drawn = false
	return nil
}

func (d *TermDriver) SetPixel(index int, c color.RGBA) {
	d.set(index, c)
}

func (d *TermDriver) SetBrightness(brightness uint8) {
	d.brightness = brightness
}

func (d *TermDriver) Clear() {
	d.clear()
}

func (d *TermDriver) Flush() (err errors.Error) {
	if d.width == 0 {
		return nil
	}
	w := bufio.NewWriter(d.out)

	// Overwrite the previous frame in place
	if d.drawn {
		fmt.Fprintf(w, "\x1b[%dA", d.height)
	}

	for i, c := range d.output() {
		block := termcolor.BgRGB(int(c.R), int(c.G), int(c.B))
		block.EnableColor()
		block.Fprint(w, "  ")
		if (i+1)%d.width == 0 {
			fmt.Fprintln(w)
		}
	}
	if errGo := w.Flush(); errGo != nil {
		return errors.Wrap(errGo).With("stack", stack.Trace().TrimRuntime())
	}
	d.drawn = true
	return nil
}

func (d *TermDriver) Close() (err errors.Error) {
	return nil
}
