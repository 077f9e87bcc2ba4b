package wxmatrix

// Remote command ingestion.  A command is a JSON object where every field is
// optional, fields that are present and of the right type are applied and the
// rest are ignored individually.

import (
	"encoding/json"
	"math"

	"github.com/TeamNorCal/wxmatrix/model"
)

// command holds the raw fields of a command document
type command map[string]json.RawMessage

func (cmd command) boolean(key string) (v bool, ok bool) {
	raw, ok := cmd[key]
	if !ok {
		return false, false
	}
	if errGo := json.Unmarshal(raw, &v); errGo != nil {
		return false, false
	}
	return v, true
}

// integer accepts a JSON number without a fractional part
func (cmd command) integer(key string) (v int64, ok bool) {
	raw, ok := cmd[key]
	if !ok {
		return 0, false
	}
	f := 0.0
	if errGo := json.Unmarshal(raw, &f); errGo != nil {
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt32 {
		return math.MaxInt32, true
	}
	if f < math.MinInt32 {
		return math.MinInt32, true
	}
	return int64(f), true
}

// unsigned accepts a non negative integer and clamps it to max
func (cmd command) unsigned(key string, max int64) (v int64, ok bool) {
	if v, ok = cmd.integer(key); !ok || v < 0 {
		return 0, false
	}
	if v > max {
		v = max
	}
	return v, true
}

func (cmd command) text(key string) (v string, ok bool) {
	raw, ok := cmd[key]
	if !ok {
		return "", false
	}
	if errGo := json.Unmarshal(raw, &v); errGo != nil {
		return "", false
	}
	return v, true
}

// color accepts an array of at least three numbers, each clamped into 0..255
func (cmd command) color(key string) (v model.RGB, ok bool) {
	raw, ok := cmd[key]
	if !ok {
		return v, false
	}
	channels := []float64{}
	if errGo := json.Unmarshal(raw, &channels); errGo != nil || len(channels) < 3 {
		return v, false
	}
	return model.RGB{R: clamp8(channels[0]), G: clamp8(channels[1]), B: clamp8(channels[2])}, true
}

// HandleCommand applies a command document.  The scene and any action are
// applied first, then persisted settings that changed are saved, which
// broadcasts the new state, otherwise the unchanged state is broadcast.  A payload that is not a JSON object is dropped without any
// effect.
func (d *Display) HandleCommand(payload []byte) {
	cmd := command{}
	if errGo := json.Unmarshal(payload, &cmd); errGo != nil || cmd == nil {
		logger.Warn("malformed matrix command dropped", "payload", string(payload))
		return
	}

	next := d.cfg
	if v, ok := cmd.boolean("enabled"); ok {
		next.Enabled = v
	}
	if v, ok := cmd.unsigned("maxBrightness", math.MaxUint8); ok {
		next.MaxBrightness = uint8(v)
	}
	if v, ok := cmd.boolean("night"); ok {
		next.NightEnabled = v
	}
	if v, ok := cmd.unsigned("nightBrightness", math.MaxUint8); ok {
		next.NightBrightness = uint8(v)
	}
	if v, ok := cmd.unsigned("nightStart", model.MinutesPerDay); ok {
		next.NightStartMin = uint16(v)
	}
	if v, ok := cmd.unsigned("nightEnd", model.MinutesPerDay); ok {
		next.NightEndMin = uint16(v)
	}
	if v, ok := cmd.unsigned("brightness", math.MaxUint8); ok {
		next.Brightness = uint8(v)
	}
	if v, ok := cmd.boolean("use12h"); ok {
		next.ClockUse12h = v
	}
	if v, ok := cmd.boolean("showSeconds"); ok {
		next.ClockShowSeconds = v
	}
	if v, ok := cmd.boolean("showMillis"); ok {
		next.ClockShowMillis = v
	}
	if v, ok := cmd.integer("colorMode"); ok && v >= 0 && v <= int64(model.ColorCycle) {
		next.ColorMode = model.ColorMode(v)
	}
	if v, ok := cmd.color("color1"); ok {
		next.Color1 = v
	}
	if v, ok := cmd.color("color2"); ok {
		next.Color2 = v
	}

	if v, ok := cmd.integer("scene"); ok {
		d.SetScene(int(v))
	}

	// Actions take effect before the state goes out
	if v, ok := cmd.text("action"); ok {
		d.PerformAction(v)
	}

	if next != d.cfg {
		// SaveConfig broadcasts the state
		d.SaveConfig(next)
	} else {
		d.publishState()
	}
}
