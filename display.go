package wxmatrix

// This module implements the frame loop of the matrix display.  A Display is
// driven by calling Tick repeatedly from a single goroutine, it never blocks
// and paces itself from timestamps rather than by sleeping.  Commands,
// configuration saves and actions are expected to arrive on that same
// goroutine, see Station.

import (
	"image"
	"image/color"
	"strings"
	"time"

	"github.com/karlmutch/errors"

	"github.com/TeamNorCal/wxmatrix/model"
)

const (
	// TestPatternDuration is how long the diagnostic sweep is shown for
	TestPatternDuration = 3 * time.Second
	// SampleRefresh limits how often the cached samples are re-read
	SampleRefresh = 3 * time.Second
	// ProvisionRetry limits how often a strip that failed to allocate is retried
	ProvisionRetry = 3 * time.Second
	// ScenePhasePeriod is the length of one cycle of scene local animation
	ScenePhasePeriod = 4 * time.Second
)

const (
	renderedNone = "none"
	renderedTest = "test"
)

// provisioning is the strip geometry the driver was last configured with
type provisioning struct {
	width, height uint16
	pin           uint8
}

// Display owns the configuration, the frame buffer and the driver of one matrix
type Display struct {
	cfg   model.MatrixConfig
	store Store
	clock Clock

	indoor    IndoorSource
	outdoor   OutdoorSource
	publisher StatePublisher

	driver DisplayDriver
	// ready is set while the driver holds a strip matching cfg
	ready        bool
	provisioned  provisioning
	flushFailing bool

	attempted     bool
	lastAttemptMs int64
	allocFailing  bool
	closed        bool

	canvas *Canvas

	start       time.Time
	hasFrame    bool
	lastFrameMs int64

	hasSample    bool
	lastSampleMs int64
	indoorSample model.IndoorSample
	outdoorSnap  model.OutdoorSnapshot
	outdoorStale bool

	testArmed bool
	testStart int64
	testUntil int64

	activeScene  int
	sceneStartMs int64
	rendered     string
}

// NewDisplay creates a display holding the default configuration, LoadConfig
// is expected to be called before the first Tick.  driver may be nil in which
// case nothing is ever drawn.
func NewDisplay(store Store, driver DisplayDriver, clock Clock) (d *Display) {
	if clock == nil {
		clock = SystemClock{}
	}
	cfg := model.DefaultMatrixConfig()
	d = &Display{
		cfg:          cfg,
		store:        store,
		clock:        clock,
		driver:       driver,
		canvas:       NewCanvas(cfg),
		start:        clock.Now(),
		indoorSample: model.EmptyIndoor(),
		outdoorSnap:  model.EmptyOutdoor(),
		outdoorStale: true,
		rendered:     renderedNone,
	}
	return d
}

// SetSources attaches the sample collaborators, either may be nil
func (d *Display) SetSources(indoor IndoorSource, outdoor OutdoorSource) {
	d.indoor = indoor
	d.outdoor = outdoor
	d.hasSample = false
}

// SetPublisher attaches the receiver of state broadcasts
func (d *Display) SetPublisher(publisher StatePublisher) {
	d.publisher = publisher
}

// Config returns the configuration currently in effect
func (d *Display) Config() model.MatrixConfig {
	return d.cfg
}

// Ready is true when a strip is allocated for the current configuration
func (d *Display) Ready() bool {
	return d.ready
}

// ActiveScene is the scene index selected by the last scene command
func (d *Display) ActiveScene() int {
	return d.activeScene
}

// Rendered names what the last frame showed, "test", a scene name or "none"
func (d *Display) Rendered() string {
	return d.rendered
}

// Frame returns the last rendered frame in logical coordinates
func (d *Display) Frame() *image.RGBA {
	return d.canvas.Image()
}

// millis is the animation clock, milliseconds since the display was created
func (d *Display) millis(now time.Time) int64 {
	return int64(now.Sub(d.start) / time.Millisecond)
}

func (d *Display) frameInterval() int64 {
	fps := int64(d.cfg.FPS)
	if fps == 0 {
		fps = model.DefaultFPS
	}
	return 1000 / fps
}

// Tick renders a frame when the display is enabled, has a strip and at least
// one frame interval has passed since the previous frame.  A strip that could
// not be allocated is retried every ProvisionRetry.
func (d *Display) Tick() {
	if !d.cfg.Enabled {
		return
	}

	now := d.clock.Now()
	ms := d.millis(now)

	if !d.ready {
		if !d.retryDue(ms) {
			return
		}
		d.provision(d.cfg)
		if !d.ready {
			return
		}
	}

	// A clock stepping backwards restarts the pacing rather than stalling it
	if d.hasFrame && ms >= d.lastFrameMs && ms-d.lastFrameMs < d.frameInterval() {
		return
	}
	d.hasFrame = true
	d.lastFrameMs = ms

	if !d.hasSample || ms < d.lastSampleMs || ms-d.lastSampleMs >= int64(SampleRefresh/time.Millisecond) {
		d.refreshSamples(now, ms)
	}

	in := d.sceneInput(now, ms)

	if d.testArmed {
		if ms < d.testUntil {
			in.Phase = float64(ms-d.testStart) / float64(d.testUntil-d.testStart)
			TestSweep.Render(d.canvas, in)
			d.present(renderedTest)
			return
		}
		d.testArmed = false
		logger.Debug("test pattern expired")
	}

	in.Phase = d.scenePhase(ms)
	SceneFor(d.activeScene).Render(d.canvas, in)
	d.present(SceneName(d.activeScene))
}

// retryDue is true when a failed allocation may be attempted again
func (d *Display) retryDue(ms int64) bool {
	if d.closed || d.driver == nil || d.cfg.PixelCount() == 0 {
		return false
	}
	if !d.attempted || ms < d.lastAttemptMs {
		return true
	}
	return ms-d.lastAttemptMs >= int64(ProvisionRetry/time.Millisecond)
}

// scenePhase is the position within ScenePhasePeriod measured from the moment
// the active scene was selected
func (d *Display) scenePhase(ms int64) float64 {
	elapsed := ms - d.sceneStartMs
	if elapsed < 0 {
		return 0
	}
	period := int64(ScenePhasePeriod / time.Millisecond)
	return float64(elapsed%period) / float64(period)
}

func (d *Display) refreshSamples(now time.Time, ms int64) {
	d.hasSample = true
	d.lastSampleMs = ms

	d.indoorSample = model.EmptyIndoor()
	if d.indoor != nil {
		d.indoorSample = d.indoor.Latest()
	}

	d.outdoorSnap = model.EmptyOutdoor()
	d.outdoorStale = true
	if d.outdoor != nil {
		d.outdoorSnap = d.outdoor.Current()
		d.outdoorStale = IsOutdoorStale(d.outdoor.LastFetch(), now)
	}
}

func (d *Display) sceneInput(now time.Time, ms int64) SceneInput {
	return SceneInput{
		Millis:       ms,
		Now:          now,
		Synchronized: d.clock.Synchronized(),
		Indoor:       d.indoorSample,
		Outdoor:      d.outdoorSnap,
		OutdoorStale: d.outdoorStale,
		Forecast:     d.outdoor,
	}
}

// present copies the canvas to the strip at the effective brightness
func (d *Display) present(what string) {
	d.rendered = what
	if !d.ready {
		return
	}
	for i, c := range d.canvas.Pixels() {
		d.driver.SetPixel(i, c)
	}
	d.driver.SetBrightness(EffectiveBrightness(d.cfg, d.clock))
	d.flush()
}

func (d *Display) flush() {
	if err := d.driver.Flush(); err != nil {
		if !d.flushFailing {
			logger.Warn("strip flush failed", "error", err.Error())
		}
		d.flushFailing = true
		return
	}
	if d.flushFailing {
		logger.Info("strip flush recovered")
	}
	d.flushFailing = false
}

// blank clears the frame buffer and the strip
func (d *Display) blank() {
	d.canvas.Clear()
	d.rendered = renderedNone
	if !d.ready {
		return
	}
	d.driver.Clear()
	d.flush()
}

// PerformAction runs a one shot action, "test" shows the diagnostic sweep for
// TestPatternDuration and "clear" cancels it and blanks the strip.  Other
// actions are ignored.
func (d *Display) PerformAction(action string) {
	ms := d.millis(d.clock.Now())

	switch strings.ToLower(strings.TrimSpace(action)) {
	case "test":
		d.testArmed = true
		d.testStart = ms
		d.testUntil = ms + int64(TestPatternDuration/time.Millisecond)
		// The sweep starts on the next tick regardless of the frame pacing
		d.hasFrame = false
		logger.Debug("test pattern armed", "until", d.testUntil)
	case "clear":
		d.testArmed = false
		d.blank()
		logger.Debug("display cleared")
	default:
		logger.Debug("action ignored", "action", action)
	}
}

// SetScene selects the scene shown in steady state, the index is taken modulo
// the number of scenes and is not persisted
func (d *Display) SetScene(index int) {
	if index < 0 {
		index = 0
	}
	d.activeScene = index % SceneCount
	d.sceneStartMs = d.millis(d.clock.Now())
	d.hasFrame = false
}

// ShowSolid fills the whole strip with one color until the next frame, used
// for instance to signal provisioning state before the clock is available
func (d *Display) ShowSolid(c color.RGBA) {
	d.canvas.Fill(c)
	d.present("solid")
}

// Shutdown blanks the strip and releases the driver
func (d *Display) Shutdown() (err errors.Error) {
	d.testArmed = false
	d.blank()
	if d.driver == nil {
		return nil
	}
	d.ready = false
	d.closed = true
	d.provisioned = provisioning{}
	return d.driver.Close()
}

// provision allocates the strip when the geometry or the data pin changed
func (d *Display) provision(prev model.MatrixConfig) {
	want := provisioning{width: d.cfg.Width, height: d.cfg.Height, pin: d.cfg.Pin}
	if d.ready && want == d.provisioned {
		return
	}

	d.ready = false
	d.provisioned = provisioning{}
	size := d.cfg.PixelCount()
	if d.driver == nil || size == 0 {
		logger.Debug("no strip allocated", "pixels", size)
		return
	}
	d.attempted = true
	d.lastAttemptMs = d.millis(d.clock.Now())
	if err := d.driver.Configure(int(want.width), int(want.height), int(want.pin)); err != nil {
		if !d.allocFailing {
			logger.Warn("strip allocation failed", "error", err.Error())
		} else {
			logger.Debug("strip allocation retry failed", "error", err.Error())
		}
		d.allocFailing = true
		return
	}
	d.allocFailing = false
	d.ready = true
	d.provisioned = want
	d.flushFailing = false
	logger.Info("strip provisioned", "width", want.width, "height", want.height, "pin", want.pin,
		"was", prev.PixelCount())
}

// adopt makes cfg the configuration in effect
func (d *Display) adopt(cfg model.MatrixConfig) {
	prev := d.cfg
	d.cfg = cfg
	d.canvas.Reset(cfg)
	d.provision(prev)
	d.hasFrame = false

	if prev.Enabled && !cfg.Enabled {
		d.blank()
	}
}

// LoadConfig replaces the configuration with the persisted one, missing keys
// take their defaults
func (d *Display) LoadConfig() {
	d.adopt(readConfig(d.store))
}

// SaveConfig sanitizes next, persists it, makes it the configuration in effect
// and broadcasts the resulting state.  The configuration is adopted even when
// the store fails to commit, in which case the error is returned.
func (d *Display) SaveConfig(next model.MatrixConfig) (err errors.Error) {
	next = Sanitize(next)

	if d.store != nil {
		if err = writeConfig(d.store, next); err != nil {
			logger.Warn("matrix configuration not persisted", "error", err.Error())
		}
	}

	d.adopt(next)
	logger.Info("matrix configuration saved", "enabled", next.Enabled, "width", next.Width, "height", next.Height)
	d.publishState()
	return err
}

// State is the document broadcast to remote observers
func (d *Display) State() model.StatePayload {
	return model.StatePayload{
		Enabled:             d.cfg.Enabled,
		Brightness:          d.cfg.Brightness,
		EffectiveBrightness: EffectiveBrightness(d.cfg, d.clock),
		MaxBrightness:       d.cfg.MaxBrightness,
		Night:               d.cfg.NightEnabled,
		Scene:               0,
		Width:               d.cfg.Width,
		Height:              d.cfg.Height,
		FPS:                 d.cfg.FPS,
		Dwell:               int(retiredScenes.DwellMs),
		Transition:          int(retiredScenes.TransitionMs),
		ClockUse12h:         d.cfg.ClockUse12h,
		ClockShowSeconds:    d.cfg.ClockShowSeconds,
		ClockShowMillis:     d.cfg.ClockShowMillis,
		ColorMode:           uint8(d.cfg.ColorMode),
		Color1:              d.cfg.Color1.Array(),
		Color2:              d.cfg.Color2.Array(),
	}
}

func (d *Display) publishState() {
	if d.publisher == nil {
		return
	}
	d.publisher.Publish(d.State())
}
