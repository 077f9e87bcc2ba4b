package wxmatrix

// This file contains a display driver that forwards frames to one or more
// fadecandy boards through an Open Pixel Control server such as fcserver

import (
	"bytes"
	"image/color"

	"github.com/go-stack/stack"
	"github.com/karlmutch/errors"

	"github.com/cnf/structhash"

	"github.com/kellydunn/go-opc"
)

// OPCDriver streams frames to an OPC server, frames identical to the previous
// one are not resent
type OPCDriver struct {
	stagedFrame

	server  string
	channel uint8

	client    *opc.Client
	connected bool
	last      []byte
}

// opcFrame is the unit hashed to detect unchanged frames
type opcFrame struct {
	Pixels     []byte
	Brightness uint8
}

// NewOPCDriver creates a driver for the OPC server at the given host:port, the
// connection is made when the driver is configured
func NewOPCDriver(server string, channel uint8) *OPCDriver {
	return &OPCDriver{
		server:  server,
		channel: channel,
	}
}

func (d *OPCDriver) connect() (err errors.Error) {
	if d.connected {
		return nil
	}
	d.client = opc.NewClient()
	if errGo := d.client.Connect("tcp", d.server); errGo != nil {
		return errors.Wrap(errGo).With("url", d.server).With("stack", stack.Trace().TrimRuntime())
	}
	d.connected = true
	return nil
}

func (d *OPCDriver) Configure(width, height, pin int) (err errors.Error) {
	if err = d.configure(width, height, pin); err != nil {
		return err
	}
	d.last = nil
	if err = d.connect(); err != nil {
		return err
	}
	logger.Info("opc strip configured", "server", d.server, "pixels", width*height)
	return nil
}

func (d *OPCDriver) SetPixel(index int, c color.RGBA) {
	d.set(index, c)
}

func (d *OPCDriver) SetBrightness(brightness uint8) {
	d.brightness = brightness
}

func (d *OPCDriver) Clear() {
	d.clear()
}

func (d *OPCDriver) Flush() (err errors.Error) {
	if err = d.connect(); err != nil {
		return err
	}

	frame := d.output()
	raw := make([]byte, 0, len(frame)*3)
	for _, c := range frame {
		raw = append(raw, c.R, c.G, c.B)
	}

	hash := structhash.Md5(opcFrame{Pixels: raw, Brightness: d.brightness}, 1)
	if bytes.Equal(d.last, hash) {
		return nil
	}

	m := opc.NewMessage(d.channel)
	m.SetLength(uint16(len(raw)))
	for i, c := range frame {
		m.SetPixelColor(i, c.R, c.G, c.B)
	}

	if errGo := d.client.Send(m); errGo != nil {
		// Force a reconnection on the next frame
		d.connected = false
		d.last = nil
		return errors.Wrap(errGo).With("url", d.server).With("stack", stack.Trace().TrimRuntime())
	}
	d.last = hash
	return nil
}

func (d *OPCDriver) Close() (err errors.Error) {
	d.connected = false
	d.client = nil
	return nil
}
