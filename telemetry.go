package wxmatrix

// Periodic telemetry of the station and the home automation discovery records
// that describe it.  Discovery records are retained and re-sent on every
// connection, the telemetry document is published on a fixed interval.

import (
	"encoding/json"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-stack/stack"
	"github.com/karlmutch/errors"

	"github.com/TeamNorCal/wxmatrix/model"
)

const (
	// DiscoveryPrefix roots the discovery topics
	DiscoveryPrefix = "homeassistant"

	DiscoveryRefresh         = 5 * time.Minute
	DefaultTelemetryInterval = 30 * time.Second

	// IndoorStaleAfter is the age past which an indoor sample is no longer ok
	IndoorStaleAfter = 2 * time.Minute

	deviceModel        = "Weather Matrix Station"
	deviceManufacturer = "TeamNorCal"
)

// MessagePublisher sends raw messages to a broker
type MessagePublisher interface {
	Connected() bool
	PublishMessage(topic string, payload []byte, retained bool) (err errors.Error)
}

// TelemetryConfig names the device and controls what gets published
type TelemetryConfig struct {
	DeviceID   string
	DeviceName string
	City       string
	Country    string
	Interval   time.Duration
	Discovery  bool
}

func finite(v float64) *float64 {
	if !model.Valid(v) {
		return nil
	}
	return &v
}

func fahrenheit(c float64) float64 {
	return c*9.0/5.0 + 32.0
}

// SensorStatus reports whether a sensor exists and has usable data
type SensorStatus struct {
	Present bool `json:"present"`
	OK      bool `json:"ok"`
}

// IndoorMetrics is an indoor sample with its derived units, unavailable
// readings are omitted
type IndoorMetrics struct {
	TemperatureC *float64 `json:"temperatureC,omitempty"`
	TemperatureF *float64 `json:"temperatureF,omitempty"`
	Humidity     *float64 `json:"humidity,omitempty"`
	DewPointC    *float64 `json:"dewPointC,omitempty"`
	DewPointF    *float64 `json:"dewPointF,omitempty"`
	PressurePa   *float64 `json:"pressurePa,omitempty"`
	PressureHpa  *float64 `json:"pressureHpa,omitempty"`
	PressureMmHg *float64 `json:"pressureMmHg,omitempty"`
	AltitudeM    *float64 `json:"altitudeM,omitempty"`
	AltitudeFt   *float64 `json:"altitudeFt,omitempty"`
}

func NewIndoorMetrics(sample model.IndoorSample) (m IndoorMetrics) {
	return IndoorMetrics{
		TemperatureC: finite(sample.TemperatureC),
		TemperatureF: finite(fahrenheit(sample.TemperatureC)),
		Humidity:     finite(sample.Humidity),
		DewPointC:    finite(sample.DewPointC),
		DewPointF:    finite(fahrenheit(sample.DewPointC)),
		PressurePa:   finite(sample.PressurePa),
		PressureHpa:  finite(sample.PressurePa / 100.0),
		PressureMmHg: finite(sample.PressurePa / 100.0 / hpaPerMmHg),
		AltitudeM:    finite(sample.AltitudeM),
		AltitudeFt:   finite(sample.AltitudeM * 3.28084),
	}
}

func hasIndoorReading(sample model.IndoorSample) bool {
	return model.Valid(sample.TemperatureC) || model.Valid(sample.Humidity) || model.Valid(sample.PressurePa)
}

// IndoorFresh is true when the sample has a reading taken within IndoorStaleAfter
func IndoorFresh(sample model.IndoorSample, now time.Time) bool {
	if !hasIndoorReading(sample) || sample.CollectedAt.IsZero() {
		return false
	}
	return now.Sub(sample.CollectedAt) <= IndoorStaleAfter
}

type seaLevelSource interface {
	SeaLevelHpa() float64
}

func seaLevelOf(src IndoorSource) float64 {
	if s, ok := src.(seaLevelSource); ok && s.SeaLevelHpa() > 0 {
		return s.SeaLevelHpa()
	}
	return StandardSeaLevelHpa
}

func msOf(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano() / int64(time.Millisecond)
}

// MetricsReport is the indoor metrics document of the HTTP API
type MetricsReport struct {
	Status              string                  `json:"status"`
	CollectedAtMs       int64                   `json:"collectedAtMs"`
	SeaLevelPressureHpa float64                 `json:"seaLevelPressureHpa"`
	Sensors             map[string]SensorStatus `json:"sensors"`
	Metrics             IndoorMetrics           `json:"metrics"`
}

func NewMetricsReport(src IndoorSource, now time.Time) (report MetricsReport) {
	sample := src.Latest()
	fresh := IndoorFresh(sample, now)
	report = MetricsReport{
		Status:              "stale",
		CollectedAtMs:       msOf(sample.CollectedAt),
		SeaLevelPressureHpa: seaLevelOf(src),
		Sensors: map[string]SensorStatus{
			"indoor": {Present: true, OK: fresh},
		},
		Metrics: NewIndoorMetrics(sample),
	}
	if fresh {
		report.Status = "ok"
	}
	return report
}

// IndoorTelemetry adds the reference pressure and sample time to the metrics
type IndoorTelemetry struct {
	IndoorMetrics
	SeaLevelPressureHpa *float64 `json:"seaLevelPressureHpa,omitempty"`
	SampleMs            int64    `json:"sampleMs"`
}

type HeapTelemetry struct {
	Alloc   uint64  `json:"alloc"`
	Sys     uint64  `json:"sys"`
	UsedPct float64 `json:"usedPct"`
}

// SystemTelemetry describes the process running the station
type SystemTelemetry struct {
	UptimeMs   int64         `json:"uptimeMs"`
	Goroutines int           `json:"goroutines"`
	Heap       HeapTelemetry `json:"heap"`
}

// OutdoorTelemetry is the current outdoor snapshot with its freshness
type OutdoorTelemetry struct {
	TemperatureC *float64 `json:"temperatureC,omitempty"`
	Humidity     *float64 `json:"humidity,omitempty"`
	PressureHpa  *float64 `json:"pressureHpa,omitempty"`
	PressureMmHg *float64 `json:"pressureMmHg,omitempty"`
	AltitudeM    *float64 `json:"altitudeM,omitempty"`
	WindSpeed    *float64 `json:"windSpeed,omitempty"`
	LastFetchMs  int64    `json:"lastFetchMs"`
	Stale        bool     `json:"stale"`
}

// OutlookTelemetry is one forecast horizon, an empty object when unavailable
type OutlookTelemetry struct {
	TempC        *float64 `json:"tempC,omitempty"`
	Humidity     *float64 `json:"humidity,omitempty"`
	PressureHpa  *float64 `json:"pressureHpa,omitempty"`
	PressureMmHg *float64 `json:"pressureMmHg,omitempty"`
	WindSpeed    *float64 `json:"windSpeed,omitempty"`
}

// Telemetry is the document published on the telemetry topic
type Telemetry struct {
	City    string                      `json:"city,omitempty"`
	Country string                      `json:"country,omitempty"`
	Sensors map[string]SensorStatus     `json:"sensors"`
	Indoor  IndoorTelemetry             `json:"indoor"`
	System  SystemTelemetry             `json:"system"`
	Outdoor *OutdoorTelemetry           `json:"outdoor,omitempty"`
	Outlook map[string]OutlookTelemetry `json:"outlook,omitempty"`
}

// DiscoveryDevice groups the sensors of one station
type DiscoveryDevice struct {
	Identifiers  string `json:"identifiers"`
	Name         string `json:"name"`
	Model        string `json:"model"`
	Manufacturer string `json:"manufacturer"`
}

// DiscoveryRecord announces one sensor read out of the telemetry document
type DiscoveryRecord struct {
	Name          string          `json:"name"`
	StateTopic    string          `json:"state_topic"`
	UniqueID      string          `json:"unique_id"`
	ValueTemplate string          `json:"value_template"`
	Unit          string          `json:"unit_of_measurement,omitempty"`
	DeviceClass   string          `json:"device_class,omitempty"`
	Icon          string          `json:"icon,omitempty"`
	Device        DiscoveryDevice `json:"device"`
}

// DiscoveryMessage pairs a record with its topic
type DiscoveryMessage struct {
	Topic  string
	Record DiscoveryRecord
}

type sensorSpec struct {
	id    string
	name  string
	path  string
	unit  string
	class string
	icon  string
}

func telemetrySensors() (sensors []sensorSpec) {
	sensors = []sensorSpec{
		{"temp_c", "Temperature", "indoor.temperatureC", "°C", "temperature", ""},
		{"humidity", "Humidity", "indoor.humidity", "%", "humidity", ""},
		{"pressure", "Pressure", "indoor.pressureHpa", "hPa", "pressure", ""},
		{"dewpoint", "Dew Point", "indoor.dewPointC", "°C", "temperature", "mdi:water-percent"},
		{"altitude", "Altitude", "indoor.altitudeM", "m", "distance", ""},
		{"heap_alloc", "Heap Allocated", "system.heap.alloc", "B", "data_size", "mdi:memory"},
		{"heap_used_pct", "Heap Used", "system.heap.usedPct", "%", "", "mdi:memory"},
		{"uptime", "Uptime", "system.uptimeMs", "ms", "duration", "mdi:timer-outline"},
		{"location_city", "City", "city", "", "", "mdi:city"},
		{"location_country", "Country", "country", "", "", "mdi:flag"},
		{"out_temp_c", "Outdoor Temperature", "outdoor.temperatureC", "°C", "temperature", ""},
		{"out_humidity", "Outdoor Humidity", "outdoor.humidity", "%", "humidity", ""},
		{"out_pressure", "Outdoor Pressure", "outdoor.pressureHpa", "hPa", "pressure", ""},
		{"out_wind_ms", "Outdoor Wind", "outdoor.windSpeed", "m/s", "wind_speed", "mdi:weather-windy"},
	}
	for _, h := range model.Horizons {
		hours := strconv.Itoa(h)
		slot := "outlook.h" + hours
		sensors = append(sensors,
			sensorSpec{"fc_temp_" + hours + "h", "Forecast Temperature +" + hours + "h", slot + ".tempC", "°C", "temperature", ""},
			sensorSpec{"fc_hum_" + hours + "h", "Forecast Humidity +" + hours + "h", slot + ".humidity", "%", "humidity", ""},
			sensorSpec{"fc_press_" + hours + "h", "Forecast Pressure +" + hours + "h", slot + ".pressureHpa", "hPa", "pressure", ""},
		)
	}
	return sensors
}

// TelemetryPublisher sends the telemetry and discovery messages of a station.
// Its state is owned by the goroutine calling Run.
type TelemetryPublisher struct {
	cfg     TelemetryConfig
	base    string
	out     MessagePublisher
	indoor  IndoorSource
	outdoor OutdoorSource
	clock   Clock
	started time.Time

	discoveryC    chan struct{}
	lastDiscovery time.Time
}

// NewTelemetryPublisher prepares telemetry for topics rooted at base, indoor
// and outdoor may be nil when the station has no such source
func NewTelemetryPublisher(cfg TelemetryConfig, base string, out MessagePublisher, indoor IndoorSource, outdoor OutdoorSource, clock Clock) (t *TelemetryPublisher) {
	if clock == nil {
		clock = SystemClock{}
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = "wxmatrix"
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = "Weather Station"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTelemetryInterval
	}
	return &TelemetryPublisher{
		cfg:        cfg,
		base:       strings.TrimSuffix(base, "/"),
		out:        out,
		indoor:     indoor,
		outdoor:    outdoor,
		clock:      clock,
		started:    clock.Now(),
		discoveryC: make(chan struct{}, 1),
	}
}

func (t *TelemetryPublisher) TelemetryTopic() string {
	return t.base + "/telemetry"
}

func (t *TelemetryPublisher) DiscoveryTopic(sensorID string) string {
	return DiscoveryPrefix + "/sensor/" + t.cfg.DeviceID + "/" + sensorID + "/config"
}

// Discovery lists the records announcing every sensor of the telemetry document
func (t *TelemetryPublisher) Discovery() (msgs []DiscoveryMessage) {
	device := DiscoveryDevice{
		Identifiers:  t.cfg.DeviceID,
		Name:         t.cfg.DeviceName,
		Model:        deviceModel,
		Manufacturer: deviceManufacturer,
	}
	for _, sensor := range telemetrySensors() {
		msgs = append(msgs, DiscoveryMessage{
			Topic: t.DiscoveryTopic(sensor.id),
			Record: DiscoveryRecord{
				Name:          t.cfg.DeviceName + " " + sensor.name,
				StateTopic:    t.TelemetryTopic(),
				UniqueID:      t.cfg.DeviceID + "_" + sensor.id,
				ValueTemplate: "{{ value_json." + sensor.path + " }}",
				Unit:          sensor.unit,
				DeviceClass:   sensor.class,
				Icon:          sensor.icon,
				Device:        device,
			},
		})
	}
	return msgs
}

// PublishDiscovery sends every discovery record retained, nothing is sent
// while discovery is disabled or the broker is unreachable
func (t *TelemetryPublisher) PublishDiscovery(now time.Time) (err errors.Error) {
	if !t.cfg.Discovery || !t.out.Connected() {
		return nil
	}
	for _, msg := range t.Discovery() {
		body, errGo := json.Marshal(msg.Record)
		if errGo != nil {
			return errors.Wrap(errGo).With("topic", msg.Topic).With("stack", stack.Trace().TrimRuntime())
		}
		if err = t.out.PublishMessage(msg.Topic, body, true); err != nil {
			return err
		}
	}
	t.lastDiscovery = now
	logger.Debug("discovery published", "device", t.cfg.DeviceID)
	return nil
}

// Telemetry assembles the document for the current moment
func (t *TelemetryPublisher) Telemetry(now time.Time) (doc Telemetry) {
	doc = Telemetry{
		City:    t.cfg.City,
		Country: t.cfg.Country,
		Sensors: map[string]SensorStatus{},
	}

	if t.indoor != nil {
		sample := t.indoor.Latest()
		seaLevel := seaLevelOf(t.indoor)
		doc.Sensors["indoor"] = SensorStatus{Present: true, OK: IndoorFresh(sample, now)}
		doc.Indoor = IndoorTelemetry{
			IndoorMetrics:       NewIndoorMetrics(sample),
			SeaLevelPressureHpa: &seaLevel,
			SampleMs:            msOf(sample.CollectedAt),
		}
	} else {
		doc.Sensors["indoor"] = SensorStatus{}
	}

	mem := runtime.MemStats{}
	runtime.ReadMemStats(&mem)
	doc.System = SystemTelemetry{
		UptimeMs:   int64(now.Sub(t.started) / time.Millisecond),
		Goroutines: runtime.NumGoroutine(),
		Heap: HeapTelemetry{
			Alloc: mem.HeapAlloc,
			Sys:   mem.HeapSys,
		},
	}
	if mem.HeapSys > 0 {
		doc.System.Heap.UsedPct = float64(mem.HeapAlloc) * 100.0 / float64(mem.HeapSys)
	}

	if t.outdoor == nil {
		return doc
	}
	current := t.outdoor.Current()
	fetched := t.outdoor.LastFetch()
	doc.Outdoor = &OutdoorTelemetry{
		TemperatureC: finite(current.TemperatureC),
		Humidity:     finite(current.Humidity),
		PressureHpa:  finite(current.PressureHpa),
		PressureMmHg: finite(current.PressureMmHg),
		AltitudeM:    finite(current.AltitudeM),
		WindSpeed:    finite(current.WindSpeed),
		LastFetchMs:  msOf(fetched),
		Stale:        IsOutdoorStale(fetched, now),
	}
	doc.Outlook = make(map[string]OutlookTelemetry, len(model.Horizons))
	for _, h := range model.Horizons {
		snap := t.outdoor.ForecastFor(h)
		doc.Outlook["h"+strconv.Itoa(h)] = OutlookTelemetry{
			TempC:        finite(snap.TemperatureC),
			Humidity:     finite(snap.Humidity),
			PressureHpa:  finite(snap.PressureHpa),
			PressureMmHg: finite(snap.PressureMmHg),
			WindSpeed:    finite(snap.WindSpeed),
		}
	}
	return doc
}

// PublishTelemetry sends the telemetry document, not retained
func (t *TelemetryPublisher) PublishTelemetry(now time.Time) (err errors.Error) {
	if !t.out.Connected() {
		return nil
	}
	body, errGo := json.Marshal(t.Telemetry(now))
	if errGo != nil {
		return errors.Wrap(errGo).With("topic", t.TelemetryTopic()).With("stack", stack.Trace().TrimRuntime())
	}
	return t.out.PublishMessage(t.TelemetryTopic(), body, false)
}

func (t *TelemetryPublisher) discoveryDue(now time.Time) bool {
	return t.lastDiscovery.IsZero() || now.Sub(t.lastDiscovery) >= DiscoveryRefresh || now.Before(t.lastDiscovery)
}

// step publishes the discovery records when forced or due, then the telemetry
func (t *TelemetryPublisher) step(now time.Time, forceDiscovery bool) (err errors.Error) {
	if forceDiscovery || t.discoveryDue(now) {
		if err = t.PublishDiscovery(now); err != nil {
			return err
		}
	}
	return t.PublishTelemetry(now)
}

// RequestDiscovery asks Run to re-send the discovery records, it is meant for
// the broker connection hooks and never blocks
func (t *TelemetryPublisher) RequestDiscovery() {
	select {
	case t.discoveryC <- struct{}{}:
	default:
	}
}

// Run publishes until quitC is closed, failures are sent to errorC
func (t *TelemetryPublisher) Run(errorC chan<- errors.Error, quitC <-chan struct{}) {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		var err errors.Error
		select {
		case <-ticker.C:
			err = t.step(t.clock.Now(), false)
		case <-t.discoveryC:
			err = t.step(t.clock.Now(), true)
		case <-quitC:
			return
		}
		if err == nil {
			continue
		}
		select {
		case errorC <- err:
		case <-time.After(500 * time.Millisecond):
			logger.Warn("could not report telemetry failure", "error", err.Error())
		}
	}
}
