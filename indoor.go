package wxmatrix

// This file contains the indoor sensor collaborators.  The display only ever
// asks for the latest sample, reading the hardware happens on a goroutine of
// its own.

import (
	"math"
	"sync"
	"time"

	"github.com/go-stack/stack"
	"github.com/karlmutch/errors"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"

	"github.com/TeamNorCal/wxmatrix/model"
)

// StandardSeaLevelHpa is used for altitude when no local reference is known
const StandardSeaLevelHpa = 1013.25

// IndoorSource hands out the most recent indoor sample without blocking
type IndoorSource interface {
	Latest() model.IndoorSample
}

// StaticIndoor always returns the same sample
type StaticIndoor struct {
	Sample model.IndoorSample
}

func (s StaticIndoor) Latest() model.IndoorSample {
	return s.Sample
}

// DewPoint uses the Magnus formula, NaN is returned for unusable inputs
func DewPoint(temperatureC float64, humidity float64) float64 {
	if !model.Valid(temperatureC) || !model.Valid(humidity) || humidity <= 0 || humidity > 100 {
		return model.NaN()
	}
	const (
		a = 17.62
		b = 243.12
	)
	gamma := math.Log(humidity/100.0) + (a*temperatureC)/(b+temperatureC)
	return (b * gamma) / (a - gamma)
}

// Altitude derives the height above sea level from the barometric formula
func Altitude(pressurePa float64, seaLevelHpa float64) float64 {
	if !model.Valid(pressurePa) || pressurePa <= 0 || seaLevelHpa <= 0 {
		return model.NaN()
	}
	return 44330.0 * (1.0 - math.Pow(pressurePa/(seaLevelHpa*100.0), 0.1903))
}

// BMESensor samples a Bosch BME280 or BMP280 on an I2C bus
type BMESensor struct {
	bus i2c.BusCloser
	dev *bmxx80.Dev

	seaLevelHpa float64

	latest model.IndoorSample
	sync.Mutex
}

// OpenBMESensor opens the named I2C bus, an empty name selects the first bus,
// and initializes the sensor at addr, normally 0x76 or 0x77
func OpenBMESensor(busName string, addr uint16, seaLevelHpa float64) (s *BMESensor, err errors.Error) {
	if _, errGo := host.Init(); errGo != nil {
		return nil, errors.Wrap(errGo).With("stack", stack.Trace().TrimRuntime())
	}
	bus, errGo := i2creg.Open(busName)
	if errGo != nil {
		return nil, errors.Wrap(errGo).With("bus", busName).With("stack", stack.Trace().TrimRuntime())
	}
	dev, errGo := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if errGo != nil {
		bus.Close()
		return nil, errors.Wrap(errGo).With("bus", busName).With("addr", addr).With("stack", stack.Trace().TrimRuntime())
	}
	if seaLevelHpa <= 0 {
		seaLevelHpa = StandardSeaLevelHpa
	}
	return &BMESensor{
		bus:         bus,
		dev:         dev,
		seaLevelHpa: seaLevelHpa,
		latest:      model.EmptyIndoor(),
	}, nil
}

// Sample reads the sensor once and replaces the latest sample
func (s *BMESensor) Sample(now time.Time) (err errors.Error) {
	env := physic.Env{}
	if errGo := s.dev.Sense(&env); errGo != nil {
		return errors.Wrap(errGo).With("stack", stack.Trace().TrimRuntime())
	}

	sample := model.EmptyIndoor()
	sample.CollectedAt = now
	sample.TemperatureC = float64(env.Temperature-physic.ZeroCelsius) / float64(physic.Celsius)
	sample.PressurePa = float64(env.Pressure) / float64(physic.Pascal)
	// The BMP280 has no humidity element and reports zero
	if env.Humidity != 0 {
		sample.Humidity = float64(env.Humidity) / float64(physic.PercentRH)
	}
	sample.DewPointC = DewPoint(sample.TemperatureC, sample.Humidity)
	sample.AltitudeM = Altitude(sample.PressurePa, s.seaLevelHpa)

	s.Lock()
	s.latest = sample
	s.Unlock()
	return nil
}

// SeaLevelHpa is the reference pressure used for the altitude readings
func (s *BMESensor) SeaLevelHpa() float64 {
	return s.seaLevelHpa
}

func (s *BMESensor) Latest() model.IndoorSample {
	s.Lock()
	defer s.Unlock()
	return s.latest
}

// Run samples the sensor on every interval until quitC is closed, failures are
// sent to errorC
func (s *BMESensor) Run(interval time.Duration, errorC chan<- errors.Error, quitC <-chan struct{}) {
	poll := time.NewTicker(interval)
	defer poll.Stop()

	for {
		if err := s.Sample(time.Now()); err != nil {
			select {
			case errorC <- err:
			case <-time.After(500 * time.Millisecond):
				logger.Warn("could not report sensor failure", "error", err.Error())
			}
		}
		select {
		case <-poll.C:
		case <-quitC:
			return
		}
	}
}

// Close halts the sensor and releases the bus
func (s *BMESensor) Close() (err errors.Error) {
	if errGo := s.dev.Halt(); errGo != nil {
		err = errors.Wrap(errGo).With("stack", stack.Trace().TrimRuntime())
	}
	if errGo := s.bus.Close(); errGo != nil && err == nil {
		err = errors.Wrap(errGo).With("stack", stack.Trace().TrimRuntime())
	}
	return err
}
