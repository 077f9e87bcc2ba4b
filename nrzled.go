package wxmatrix

// This file contains a display driver for WS2812 style strips attached to a
// SPI port, for example the MOSI pin of a Raspberry Pi.  The NRZ bit stream is
// produced by the periph.io nrzled device.

import (
	"image/color"

	"github.com/go-stack/stack"
	"github.com/karlmutch/errors"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"
)

// NRZDriver drives a strip through periph.io.  The data pin is selected by the
// SPI port wiring, the configured pin is only used to detect that the strip was
// moved and must be reopened.
type NRZDriver struct {
	stagedFrame

	port string
	freq physic.Frequency

	bus spi.PortCloser
	dev *nrzled.Dev
}

// NewNRZDriver creates a driver for the named SPI port, an empty name selects
// the first port found
func NewNRZDriver(port string) *NRZDriver {
	return &NRZDriver{
		port: port,
		freq: 800 * physic.KiloHertz,
	}
}

func (d *NRZDriver) Configure(width, height, pin int) (err errors.Error) {
	if err = d.configure(width, height, pin); err != nil {
		return err
	}

	if d.bus == nil {
		if _, errGo := host.Init(); errGo != nil {
			return errors.Wrap(errGo).With("stack", stack.Trace().TrimRuntime())
		}
		bus, errGo := spireg.Open(d.port)
		if errGo != nil {
			return errors.Wrap(errGo).With("port", d.port).With("stack", stack.Trace().TrimRuntime())
		}
		d.bus = bus
	}

	if d.dev != nil {
		d.dev.Halt()
		d.dev = nil
	}

	opts := nrzled.DefaultOpts
	opts.NumPixels = width * height
	opts.Channels = 3
	opts.Freq = d.freq

	dev, errGo := nrzled.NewSPI(d.bus, &opts)
	if errGo != nil {
		return errors.Wrap(errGo).With("port", d.port).With("pixels", opts.NumPixels).With("stack", stack.Trace().TrimRuntime())
	}
	d.dev = dev
	logger.Info("nrz strip configured", "port", d.port, "pin", pin, "pixels", opts.NumPixels)
	return nil
}

func (d *NRZDriver) SetPixel(index int, c color.RGBA) {
	d.set(index, c)
}

func (d *NRZDriver) SetBrightness(brightness uint8) {
	d.brightness = brightness
}

func (d *NRZDriver) Clear() {
	d.clear()
}

func (d *NRZDriver) Flush() (err errors.Error) {
	if d.dev == nil {
		return errors.New("strip not configured").With("port", d.port).With("stack", stack.Trace().TrimRuntime())
	}
	frame := d.output()
	raw := make([]byte, 0, len(frame)*3)
	for _, c := range frame {
		raw = append(raw, c.R, c.G, c.B)
	}
	if _, errGo := d.dev.Write(raw); errGo != nil {
		return errors.Wrap(errGo).With("port", d.port).With("stack", stack.Trace().TrimRuntime())
	}
	return nil
}

func (d *NRZDriver) Close() (err errors.Error) {
	if d.dev != nil {
		d.dev.Halt()
		d.dev = nil
	}
	if d.bus != nil {
		if errGo := d.bus.Close(); errGo != nil {
			return errors.Wrap(errGo).With("port", d.port).With("stack", stack.Trace().TrimRuntime())
		}
		d.bus = nil
	}
	return nil
}
