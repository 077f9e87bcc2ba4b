package wxmatrix

import (
	. "gopkg.in/check.v1"

	"github.com/TeamNorCal/wxmatrix/model"
)

type CommandSuite struct{}

var _ = Suite(&CommandSuite{})

func (s *CommandSuite) TestBrightnessClamps(c *C) {
	d, _, store, _, rec := newTestDisplay()

	d.HandleCommand([]byte(`{"brightness": 500}`))
	c.Check(d.Config().Brightness, Equals, uint8(255))
	c.Check(store.Commits, Equals, 1)
	c.Check(rec.states, HasLen, 1)
	c.Check(store.GetUint8(storeNamespace, "bright", 0), Equals, uint8(255))
}

func (s *CommandSuite) TestMalformedIsDropped(c *C) {
	d, _, store, _, rec := newTestDisplay()
	d.SetScene(2)
	d.PerformAction("test")

	before := d.Config()
	for _, payload := range []string{`{"brightness": 12`, ``, `null`, `[1, 2]`, `"enabled"`, `{"enabled": tru}`} {
		d.HandleCommand([]byte(payload))
		c.Check(d.Config(), Equals, before, Commentf("%q", payload))
	}
	c.Check(d.ActiveScene(), Equals, 2)
	c.Check(d.testArmed, Equals, true)
	c.Check(store.Commits, Equals, 0)
	c.Check(rec.states, HasLen, 0)
}

func (s *CommandSuite) TestUnchangedStillBroadcasts(c *C) {
	d, _, store, _, rec := newTestDisplay()

	d.HandleCommand([]byte(`{}`))
	d.HandleCommand([]byte(`{"brightness": 48, "enabled": true}`))
	c.Check(store.Commits, Equals, 0)
	c.Check(rec.states, HasLen, 2)
}

func (s *CommandSuite) TestFieldsIndividuallyTyped(c *C) {
	d, _, _, _, _ := newTestDisplay()

	d.HandleCommand([]byte(`{"brightness": "high", "maxBrightness": -1, "nightBrightness": 1.5, "use12h": true, "showSeconds": 0}`))
	cfg := d.Config()
	c.Check(cfg.Brightness, Equals, uint8(48))
	c.Check(cfg.MaxBrightness, Equals, uint8(96))
	c.Check(cfg.NightBrightness, Equals, uint8(16))
	c.Check(cfg.ClockUse12h, Equals, true)
	c.Check(cfg.ClockShowSeconds, Equals, true)
}

func (s *CommandSuite) TestAllFields(c *C) {
	d, _, _, _, _ := newTestDisplay()

	d.HandleCommand([]byte(`{
		"enabled": true,
		"maxBrightness": 200,
		"night": true,
		"nightBrightness": 4,
		"brightness": 150,
		"use12h": true,
		"showSeconds": false,
		"showMillis": true,
		"colorMode": 1,
		"color1": [1, 2, 3],
		"color2": [300, -5, 10, 99]
	}`))

	cfg := d.Config()
	c.Check(cfg.MaxBrightness, Equals, uint8(200))
	c.Check(cfg.NightEnabled, Equals, true)
	c.Check(cfg.NightBrightness, Equals, uint8(4))
	c.Check(cfg.Brightness, Equals, uint8(150))
	c.Check(cfg.ClockUse12h, Equals, true)
	c.Check(cfg.ClockShowSeconds, Equals, false)
	c.Check(cfg.ClockShowMillis, Equals, true)
	c.Check(cfg.ColorMode, Equals, model.ColorGradient)
	c.Check(cfg.Color1, Equals, model.RGB{R: 1, G: 2, B: 3})
	c.Check(cfg.Color2, Equals, model.RGB{R: 255, G: 0, B: 10})
}

func (s *CommandSuite) TestRejectedValues(c *C) {
	d, _, _, _, _ := newTestDisplay()

	d.HandleCommand([]byte(`{"colorMode": 3, "color1": [1, 2], "color2": "red"}`))
	cfg := d.Config()
	c.Check(cfg.ColorMode, Equals, model.ColorSolid)
	c.Check(cfg.Color1, Equals, model.DefaultMatrixConfig().Color1)
	c.Check(cfg.Color2, Equals, model.DefaultMatrixConfig().Color2)

	d.HandleCommand([]byte(`{"colorMode": 258}`))
	c.Check(d.Config().ColorMode, Equals, model.ColorSolid)
}

// The night window is always reset to its default when saved
func (s *CommandSuite) TestNightWindowReset(c *C) {
	d, _, _, _, _ := newTestDisplay()

	d.HandleCommand([]byte(`{"nightStart": 2000, "nightEnd": 60}`))
	cfg := d.Config()
	c.Check(cfg.NightStartMin, Equals, uint16(model.DefaultNightStart))
	c.Check(cfg.NightEndMin, Equals, uint16(model.DefaultNightEnd))
}

func (s *CommandSuite) TestSceneIsEphemeral(c *C) {
	d, _, store, _, rec := newTestDisplay()

	d.HandleCommand([]byte(`{"scene": 6}`))
	c.Check(d.ActiveScene(), Equals, 2)
	c.Check(store.Commits, Equals, 0)
	c.Assert(rec.states, HasLen, 1)
	c.Check(rec.states[0].Scene, Equals, 0)

	d.HandleCommand([]byte(`{"scene": -7}`))
	c.Check(d.ActiveScene(), Equals, 0)
}

func (s *CommandSuite) TestAction(c *C) {
	d, _, _, _, _ := newTestDisplay()

	d.HandleCommand([]byte(`{"action": "test"}`))
	d.Tick()
	c.Check(d.Rendered(), Equals, "test")

	d.HandleCommand([]byte(`{"action": "clear"}`))
	c.Check(d.Rendered(), Equals, "none")
	c.Check(d.testArmed, Equals, false)
}

// armedAtBroadcast records whether the test pattern was armed each time a
// state went out
type armedAtBroadcast struct {
	d     *Display
	armed []bool
}

func (p *armedAtBroadcast) Publish(state model.StatePayload) {
	p.armed = append(p.armed, p.d.testArmed)
}

func (s *CommandSuite) TestActionPrecedesBroadcast(c *C) {
	d, _, store, _, _ := newTestDisplay()
	watcher := &armedAtBroadcast{d: d}
	d.SetPublisher(watcher)

	d.HandleCommand([]byte(`{"action": "test", "brightness": 20}`))
	c.Check(store.Commits, Equals, 1)
	c.Check(watcher.armed, DeepEquals, []bool{true})

	d.HandleCommand([]byte(`{"action": "clear"}`))
	c.Check(watcher.armed, DeepEquals, []bool{true, false})
}
