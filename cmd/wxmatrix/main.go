package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/go-stack/stack"
	"github.com/karlmutch/errors"

	"github.com/mgutz/logxi" // Using a forked copy of this package results in build issues

	"github.com/BurntSushi/toml"

	"github.com/TeamNorCal/wxmatrix"
	"github.com/TeamNorCal/wxmatrix/model"
	"github.com/TeamNorCal/wxmatrix/version"

	"github.com/karlmutch/envflag" // Forked copy of https://github.com/GoBike/envflag
)

var (
	logger = logxi.New("wxmatrix")

	verbose     = flag.Bool("v", false, "When enabled will print internal logging for this tool")
	stationFile = flag.String("config", "", "Optional TOML file whose keys, named after these options, override them")

	storePath = flag.String("store", "./wxmatrix.yaml", "File holding the persisted matrix settings, empty keeps them in memory")
	driver    = flag.String("driver", "none", "Strip driver, one of none, opc, nrz or term")
	opcServer = flag.String("opc-server", "localhost:7890", "host:port of the OPC server used by the opc driver")
	opcChan   = flag.Uint("opc-channel", 0, "OPC channel used by the opc driver")
	spiPort   = flag.String("spi-port", "", "SPI port used by the nrz driver, empty selects the first port")

	sensor   = flag.Bool("sensor", false, "Read the indoor conditions from a BME280/BMP280")
	i2cBus   = flag.String("i2c-bus", "", "I2C bus of the indoor sensor, empty selects the first bus")
	bmeAddr  = flag.Uint("bme-addr", 0x76, "I2C address of the indoor sensor")
	seaLevel = flag.Float64("sea-level", wxmatrix.StandardSeaLevelHpa, "Local sea level pressure in hPa used for altitude")
	sample   = flag.Duration("sample", 5*time.Second, "Indoor sensor sampling interval")

	listen = flag.String("listen", ":8080", "Address the HTTP API binds to, empty disables it")

	broker   = flag.String("mqtt-broker", "", "MQTT broker, for example tcp://localhost:1883, empty disables MQTT")
	clientID = flag.String("mqtt-client", "wxmatrix", "MQTT client identifier")
	baseTop  = flag.String("mqtt-base", "wxstation", "Root of the MQTT topics")

	deviceID      = flag.String("device-id", defaultDeviceID(), "Identifier of the station in the discovery records")
	deviceName    = flag.String("device-name", "Weather Station", "Name of the station in the discovery records")
	city          = flag.String("city", "", "City reported in the telemetry")
	country       = flag.String("country", "", "Country reported in the telemetry")
	telemetryTick = flag.Duration("telemetry-interval", wxmatrix.DefaultTelemetryInterval, "Interval at which telemetry is published over MQTT")
	haDiscovery   = flag.Bool("ha-discovery", true, "Publish home automation discovery records for the telemetry")

	outdoorURL  = flag.String("outdoor-url", "", "Weather agent document to poll, empty waits for pushes to /api/outdoor/cache")
	outdoorPoll = flag.Duration("outdoor-poll", time.Minute, "Weather agent polling interval")

	tick = flag.Duration("tick", 5*time.Millisecond, "Interval at which the frame loop is driven")
)

func usage() {
	fmt.Fprintln(os.Stderr, path.Base(os.Args[0]))
	fmt.Fprintln(os.Stderr, "usage: ", os.Args[0], "[options]       weather station → LED matrix (wxmatrix)      ", version.GitHash, "    ", version.BuildTime)
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "wxmatrix renders the clock and weather of a station onto an addressable LED matrix")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Options:")
	fmt.Fprintln(os.Stderr, "")
	flag.PrintDefaults()
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Environment Variables:")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "options can also be extracted from environment variables by changing dashes '-' to underscores and using upper case.")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "log levels are handled by the LOGXI env variables, these are documented at https://github.com/mgutz/logxi")
}

func init() {
	flag.Usage = usage
}

// defaultDeviceID derives a topic safe identifier from the host name
func defaultDeviceID() string {
	host, errGo := os.Hostname()
	if errGo != nil || host == "" {
		return "wxmatrix"
	}
	return "wxmatrix_" + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r - 'A' + 'a'
		}
		return '_'
	}, host)
}

// loadStationFile applies the keys of a TOML station file as option values
func loadStationFile(fn string) (err errors.Error) {
	values := map[string]interface{}{}
	if _, errGo := toml.DecodeFile(fn, &values); errGo != nil {
		return errors.Wrap(errGo).With("file", fn).With("stack", stack.Trace().TrimRuntime())
	}
	for key, value := range values {
		if flag.Lookup(key) == nil {
			return errors.New("unknown option in station file").With("file", fn).With("key", key).With("stack", stack.Trace().TrimRuntime())
		}
		if errGo := flag.Set(key, fmt.Sprint(value)); errGo != nil {
			return errors.Wrap(errGo).With("file", fn).With("key", key).With("stack", stack.Trace().TrimRuntime())
		}
	}
	return nil
}

func openStore() (store wxmatrix.Store, err errors.Error) {
	if *storePath == "" {
		return wxmatrix.NewMemStore(), nil
	}
	return wxmatrix.OpenFileStore(*storePath)
}

func openDriver() (drv wxmatrix.DisplayDriver, err errors.Error) {
	switch *driver {
	case "none", "":
		return wxmatrix.NewMemDriver(), nil
	case "opc":
		return wxmatrix.NewOPCDriver(*opcServer, uint8(*opcChan)), nil
	case "nrz":
		return wxmatrix.NewNRZDriver(*spiPort), nil
	case "term":
		return wxmatrix.NewTermDriver(os.Stdout), nil
	}
	return nil, errors.New("unknown strip driver").With("driver", *driver).With("stack", stack.Trace().TrimRuntime())
}

func openIndoor(errorC chan<- errors.Error, quitC <-chan struct{}) (indoor wxmatrix.IndoorSource) {
	if !*sensor {
		return wxmatrix.StaticIndoor{Sample: model.EmptyIndoor()}
	}
	bme, err := wxmatrix.OpenBMESensor(*i2cBus, uint16(*bmeAddr), *seaLevel)
	if err != nil {
		logger.Warn("indoor sensor unavailable", "error", err.Error())
		return wxmatrix.StaticIndoor{Sample: model.EmptyIndoor()}
	}
	go func() {
		bme.Run(*sample, errorC, quitC)
		if err := bme.Close(); err != nil {
			logger.Warn("indoor sensor close failed", "error", err.Error())
		}
	}()
	return bme
}

func main() {

	// Parse the CLI flags
	if !flag.Parsed() {
		envflag.Parse()
	}

	if *stationFile != "" {
		if err := loadStationFile(*stationFile); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(-1)
		}
	}

	if *verbose {
		logger.SetLevel(logxi.LevelDebug)
		wxmatrix.SetVerbose(true)
	}

	logger.Debug(fmt.Sprintf("%s built at %s, against commit id %s\n", os.Args[0], version.BuildTime, version.GitHash))

	if err := run(); err != nil {
		logger.Error(err.Error())
		os.Exit(-1)
	}
}

func run() (err errors.Error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quitC := make(chan struct{})
	defer close(quitC)

	errorC := make(chan errors.Error, 8)
	go runErrorWatch(errorC, quitC)

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigC:
			logger.Info("stopping")
			cancel()
		case <-ctx.Done():
		}
	}()

	store, err := openStore()
	if err != nil {
		return err
	}
	drv, err := openDriver()
	if err != nil {
		return err
	}

	clock := wxmatrix.SystemClock{}
	display := wxmatrix.NewDisplay(store, drv, clock)

	fanout := wxmatrix.StartFanOut(quitC)
	display.SetPublisher(fanout)
	go runMonitoring(fanout, quitC)

	cache := wxmatrix.NewOutdoorCache()
	indoor := openIndoor(errorC, quitC)
	display.SetSources(indoor, cache)

	// Only a configured sensor is reported by the metrics and telemetry
	var sensorSource wxmatrix.IndoorSource
	if *sensor {
		sensorSource = indoor
	}
	display.LoadConfig()

	station := wxmatrix.NewStation(display)

	if *outdoorURL != "" {
		u, errGo := url.Parse(*outdoorURL)
		if errGo != nil {
			return errors.Wrap(errGo).With("url", *outdoorURL).With("stack", stack.Trace().TrimRuntime())
		}
		go wxmatrix.NewOutdoorPoller(*u, cache, *outdoorPoll, errorC).Run(quitC)
	}

	if *broker != "" {
		bridge := wxmatrix.NewMQTTBridge(*broker, *clientID, *baseTop, station)
		telemetry := wxmatrix.NewTelemetryPublisher(wxmatrix.TelemetryConfig{
			DeviceID:   *deviceID,
			DeviceName: *deviceName,
			City:       *city,
			Country:    *country,
			Interval:   *telemetryTick,
			Discovery:  *haDiscovery,
		}, *baseTop, bridge, sensorSource, cache, clock)
		bridge.OnConnect(telemetry.RequestDiscovery)
		bridge.Start(fanout, errorC, quitC)
		go telemetry.Run(errorC, quitC)
	}

	if *listen != "" {
		srv := &http.Server{
			Addr:    *listen,
			Handler: wxmatrix.NewAPI(station, cache, sensorSource, clock).Handler(),
		}
		go func() {
			if errGo := srv.ListenAndServe(); errGo != nil && errGo != http.ErrServerClosed {
				logger.Warn("http server stopped", "error", errGo.Error())
				cancel()
			}
		}()
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutCancel()
			srv.Shutdown(shutCtx)
		}()
	}

	// The station owns the display from here on
	station.Run(ctx, *tick)
	return nil
}
