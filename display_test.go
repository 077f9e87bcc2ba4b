package wxmatrix

import (
	"image/color"
	"time"

	. "gopkg.in/check.v1"

	"github.com/TeamNorCal/wxmatrix/model"
)

type DisplaySuite struct{}

var _ = Suite(&DisplaySuite{})

func (s *DisplaySuite) TestTestPatternThenClock(c *C) {
	d, drv, _, clock, _ := newTestDisplay()

	d.PerformAction("test")
	d.Tick()
	c.Assert(d.Rendered(), Equals, "test")

	expected := NewCanvas(d.Config())
	TestSweep.Render(expected, SceneInput{})
	c.Check(d.canvas.Pixels(), DeepEquals, expected.Pixels())
	c.Check(drv.Frames, Equals, 1)

	clock.Advance(time.Second)
	d.Tick()
	c.Check(d.Rendered(), Equals, "test")

	clock.Advance(2001 * time.Millisecond)
	d.Tick()
	c.Check(d.Rendered(), Equals, "clock")
	c.Check(drv.Frames, Equals, 3)
}

func (s *DisplaySuite) TestActionsAreCaseInsensitive(c *C) {
	d, drv, _, _, _ := newTestDisplay()

	d.PerformAction(" TeSt ")
	d.Tick()
	c.Check(d.Rendered(), Equals, "test")

	d.PerformAction("CLEAR")
	c.Check(d.Rendered(), Equals, "none")
	for _, px := range drv.Last {
		c.Assert(px, Equals, black)
	}
	c.Check(d.testArmed, Equals, false)

	d.PerformAction("reboot")
	c.Check(d.testArmed, Equals, false)
}

func (s *DisplaySuite) TestFramePacing(c *C) {
	d, drv, _, clock, _ := newTestDisplay()

	d.Tick()
	c.Check(drv.Frames, Equals, 1)

	// 30 fps gives a 33ms frame interval
	clock.Advance(20 * time.Millisecond)
	d.Tick()
	c.Check(drv.Frames, Equals, 1)

	clock.Advance(13 * time.Millisecond)
	d.Tick()
	c.Check(drv.Frames, Equals, 2)

	// A zero frame rate behaves as the default
	cfg := d.Config()
	cfg.FPS = 0
	d.SaveConfig(cfg)
	d.Tick()
	c.Check(drv.Frames, Equals, 3)
	clock.Advance(10 * time.Millisecond)
	d.Tick()
	c.Check(drv.Frames, Equals, 3)
}

func (s *DisplaySuite) TestDisabled(c *C) {
	d, drv, _, _, _ := newTestDisplay()
	d.Tick()
	c.Assert(drv.Frames, Equals, 1)

	cfg := d.Config()
	cfg.Enabled = false
	d.SaveConfig(cfg)

	// Disabling blanks the strip once, ticks then do nothing
	frames := drv.Frames
	for _, px := range drv.Last {
		c.Assert(px, Equals, black)
	}
	d.PerformAction("test")
	d.Tick()
	c.Check(drv.Frames, Equals, frames)
}

func (s *DisplaySuite) TestBrightnessApplied(c *C) {
	d, drv, _, _, _ := newTestDisplay()
	d.ShowSolid(color.RGBA{R: 255, G: 255, B: 255, A: 255})

	c.Check(drv.LastBrightness, Equals, uint8(48))
	c.Check(drv.Last[0], Equals, color.RGBA{R: 48, G: 48, B: 48, A: 255})
}

func (s *DisplaySuite) TestMissingStrip(c *C) {
	store := NewMemStore()
	drv := NewMemDriver()
	drv.FailConfigure = true

	d := NewDisplay(store, drv, newFakeClock())
	cfg := model.DefaultMatrixConfig()
	cfg.Enabled = true
	d.SaveConfig(cfg)

	c.Check(d.Ready(), Equals, false)
	d.Tick()
	d.PerformAction("test")
	d.PerformAction("clear")
	d.ShowSolid(rgb(1, 2, 3))
	c.Check(drv.Frames, Equals, 0)

	// No driver at all is equally harmless
	bare := NewDisplay(store, nil, newFakeClock())
	bare.LoadConfig()
	bare.Tick()
	c.Check(bare.Shutdown(), IsNil)
}

func (s *DisplaySuite) TestAllocationRetried(c *C) {
	store := NewMemStore()
	drv := NewMemDriver()
	drv.FailConfigure = true
	clock := newFakeClock()

	d := NewDisplay(store, drv, clock)
	cfg := model.DefaultMatrixConfig()
	cfg.Enabled = true
	d.SaveConfig(cfg)
	c.Assert(d.Ready(), Equals, false)

	// The strip shows up later, for example an OPC server started after us
	drv.FailConfigure = false
	d.Tick()
	c.Check(d.Ready(), Equals, false)
	c.Check(drv.Configured, Equals, 0)

	clock.Advance(ProvisionRetry)
	d.Tick()
	c.Check(d.Ready(), Equals, true)
	c.Check(drv.Configured, Equals, 1)
	c.Check(drv.Frames > 0, Equals, true)
	c.Check(d.Rendered(), Equals, "clock")
}

func (s *DisplaySuite) TestAllocationNotRetriedWhileDisabled(c *C) {
	drv := NewMemDriver()
	drv.FailConfigure = true
	clock := newFakeClock()

	d := NewDisplay(NewMemStore(), drv, clock)
	d.LoadConfig()
	drv.FailConfigure = false

	clock.Advance(time.Minute)
	d.Tick()
	c.Check(drv.Configured, Equals, 0)
	c.Check(drv.Frames, Equals, 0)
}

func (s *DisplaySuite) TestZeroPixels(c *C) {
	d, drv, _, _, _ := newTestDisplay()
	configured := drv.Configured

	cfg := d.Config()
	cfg.Width = 0
	d.SaveConfig(cfg)
	c.Check(d.Ready(), Equals, false)
	c.Check(drv.Configured, Equals, configured)
}

func (s *DisplaySuite) TestReprovision(c *C) {
	d, drv, _, _, _ := newTestDisplay()
	configured := drv.Configured

	cfg := d.Config()
	cfg.Brightness = 10
	cfg.FlipX = true
	d.SaveConfig(cfg)
	c.Check(drv.Configured, Equals, configured)

	cfg.Width = 16
	cfg.Height = 16
	d.SaveConfig(cfg)
	c.Check(drv.Configured, Equals, configured+1)
	w, h, pin := drv.Geometry()
	c.Check([]int{w, h, pin}, DeepEquals, []int{16, 16, 2})

	cfg.Pin = 5
	d.SaveConfig(cfg)
	c.Check(drv.Configured, Equals, configured+2)
}

func (s *DisplaySuite) TestSceneSelection(c *C) {
	d, _, _, clock, _ := newTestDisplay()

	d.SetScene(5)
	c.Check(d.ActiveScene(), Equals, 1)
	d.Tick()
	c.Check(d.Rendered(), Equals, "weather")

	d.SetScene(-1)
	c.Check(d.ActiveScene(), Equals, 0)
	clock.Advance(time.Second)
	d.Tick()
	c.Check(d.Rendered(), Equals, "clock")
	c.Check(d.State().Scene, Equals, 0)
}

func (s *DisplaySuite) TestScenePhaseFollowsSelection(c *C) {
	d, _, _, clock, _ := newTestDisplay()

	d.SetScene(3)
	d.Tick()
	c.Check(d.Rendered(), Equals, "fallback")
	c.Check(d.Frame().RGBAAt(0, 0), Equals, rgb(0, 140, 40))

	clock.Advance(ScenePhasePeriod / 4)
	d.Tick()
	c.Check(d.Frame().RGBAAt(0, 0), Equals, rgb(45, 105, 40))

	// Selecting the scene again restarts its animation
	d.SetScene(3)
	d.Tick()
	c.Check(d.Frame().RGBAAt(0, 0), Equals, rgb(0, 140, 40))
}

func (s *DisplaySuite) TestSamples(c *C) {
	d, _, _, clock, _ := newTestDisplay()

	indoor := model.EmptyIndoor()
	indoor.TemperatureC = 19
	cache := NewOutdoorCache()
	current := model.EmptyOutdoor()
	current.TemperatureC = 4
	cache.Update(OutdoorPush{Current: current, FetchedAt: clock.Now()})

	d.SetSources(StaticIndoor{Sample: indoor}, cache)
	d.Tick()
	c.Check(d.indoorSample.TemperatureC, Equals, 19.0)
	c.Check(d.outdoorSnap.TemperatureC, Equals, 4.0)
	c.Check(d.outdoorStale, Equals, false)

	// Within the refresh period the cached samples are kept
	current.TemperatureC = 6
	cache.Update(OutdoorPush{Current: current, FetchedAt: clock.Now()})
	clock.Advance(time.Second)
	d.Tick()
	c.Check(d.outdoorSnap.TemperatureC, Equals, 4.0)

	clock.Advance(16 * time.Minute)
	d.Tick()
	c.Check(d.outdoorSnap.TemperatureC, Equals, 6.0)
	c.Check(d.outdoorStale, Equals, true)
}

func (s *DisplaySuite) TestState(c *C) {
	d, _, _, _, rec := newTestDisplay()

	cfg := d.Config()
	cfg.Brightness = 200
	cfg.ColorMode = model.ColorCycle
	d.SaveConfig(cfg)

	c.Assert(rec.states, HasLen, 1)
	state := rec.states[0]
	c.Check(state.Enabled, Equals, true)
	c.Check(state.Brightness, Equals, uint8(200))
	c.Check(state.EffectiveBrightness, Equals, uint8(96))
	c.Check(state.MaxBrightness, Equals, uint8(96))
	c.Check(state.Scene, Equals, 0)
	c.Check(state.Dwell, Equals, 0)
	c.Check(state.Transition, Equals, 0)
	c.Check(state.ColorMode, Equals, uint8(2))
	c.Check(state.Color1, Equals, [3]uint8{120, 210, 255})
}

func (s *DisplaySuite) TestShutdown(c *C) {
	d, drv, _, clock, _ := newTestDisplay()
	d.Tick()
	c.Check(d.Shutdown(), IsNil)
	c.Check(d.Ready(), Equals, false)
	for _, px := range drv.Last {
		c.Assert(px, Equals, black)
	}

	// A released strip is not allocated again
	configured, frames := drv.Configured, drv.Frames
	clock.Advance(time.Minute)
	d.Tick()
	c.Check(drv.Configured, Equals, configured)
	c.Check(drv.Frames, Equals, frames)
}
