package wxmatrix

// Scene implementations.  A scene paints one complete frame onto a canvas from
// the configuration held by the canvas and the latest cached samples, in the
// same way an animation generates a frame into a buffer for a given time.

import (
	"fmt"
	"math"
	"time"

	"github.com/TeamNorCal/wxmatrix/model"
)

// OutdoorStaleAfter is the age beyond which outdoor data is no longer shown
const OutdoorStaleAfter = 15 * time.Minute

// SceneCount is the number of selectable scenes, indexes are taken modulo this
const SceneCount = 4

const (
	SceneClock = iota
	SceneWeather
	SceneForecast
	SceneFallback
)

var (
	tempColor   = rgb(255, 170, 90)
	humColor    = rgb(120, 200, 255)
	windColor   = rgb(160, 255, 200)
	staleColor  = rgb(120, 120, 120)
	fcTempColor = rgb(255, 190, 110)
	fcHumColor  = rgb(140, 210, 255)
	fcBarColor  = rgb(60, 120, 200)
	noDataColor = rgb(255, 120, 120)
)

const (
	clockFallback  = "--:--"
	lineHeight     = glyphHeight
	indoorLabel    = "IN"
	outdoorLabel   = "OUT"
	noOutdoorLabel = "NO OUT"
	noForecastText = "NO FC"
)

// SceneInput carries everything a scene may read while rendering
type SceneInput struct {
	// Millis is the animation clock in milliseconds
	Millis int64
	// Now is the civil time, only meaningful when Synchronized is set
	Now          time.Time
	Synchronized bool

	Indoor       model.IndoorSample
	Outdoor      model.OutdoorSnapshot
	OutdoorStale bool
	// Forecast is nil when there is no outdoor collaborator at all
	Forecast OutdoorSource

	// Phase in [0,1) drives scene local animation
	Phase float64
}

// Scene renders one frame
type Scene interface {
	Render(c *Canvas, in SceneInput)
}

// SceneFunc adapts a function to the Scene interface
type SceneFunc func(c *Canvas, in SceneInput)

// Render calls f(c, in)
func (f SceneFunc) Render(c *Canvas, in SceneInput) {
	f(c, in)
}

var (
	ClockScene    Scene = SceneFunc(renderClock)
	WeatherScene  Scene = SceneFunc(renderWeather)
	ForecastScene Scene = SceneFunc(renderForecast)
	FallbackScene Scene = SceneFunc(renderFallback)
	// TestSweep is the diagnostic pattern shown while a test action is armed
	TestSweep Scene = SceneFunc(renderTestSweep)
)

// SceneName is the name of the scene selected by an index, used in logging
func SceneName(index int) string {
	if index < 0 {
		index = 0
	}
	return [SceneCount]string{"clock", "weather", "forecast", "fallback"}[index%SceneCount]
}

// SceneFor selects the scene for an index, taken modulo SceneCount
func SceneFor(index int) Scene {
	if index < 0 {
		index = 0
	}
	switch index % SceneCount {
	case SceneClock:
		return ClockScene
	case SceneWeather:
		return WeatherScene
	case SceneForecast:
		return ForecastScene
	default:
		return FallbackScene
	}
}

// IsOutdoorStale reports whether outdoor data fetched at fetchedAt should no
// longer be displayed at now, never fetched data is stale
func IsOutdoorStale(fetchedAt time.Time, now time.Time) bool {
	if fetchedAt.IsZero() {
		return true
	}
	return now.Sub(fetchedAt) > OutdoorStaleAfter
}

// ClockText formats the time for the clock scene
func ClockText(cfg model.MatrixConfig, now time.Time, synchronized bool) string {
	if !synchronized {
		return clockFallback
	}
	hour := now.Hour()
	if cfg.ClockUse12h {
		hour = hour % 12
		if hour == 0 {
			hour = 12
		}
	}
	if cfg.ClockShowSeconds {
		return fmt.Sprintf("%02d:%02d:%02d", hour, now.Minute(), now.Second())
	}
	return fmt.Sprintf("%02d:%02d", hour, now.Minute())
}

func renderClock(c *Canvas, in SceneInput) {
	c.Clear()
	cfg := c.Config()

	text := ClockText(cfg, in.Now, in.Synchronized)

	y := 0
	if c.Height() > 6 {
		y = 1
	}

	pulse := PulseFactor(in.Millis)
	cursor := centeredX(c.Width(), text)
	for _, ch := range text {
		col := ColorAt(cfg, cursor, in.Millis)
		if ch == ':' {
			col = scale(col, pulse)
		}
		cursor += c.DrawChar(cursor, y, ch, col)
	}
}

func renderWeather(c *Canvas, in SceneInput) {
	c.Clear()

	line1Y := 0
	line2Y := 0
	switch {
	case c.Height() > lineHeight+1:
		line2Y = lineHeight + 1
	case c.Height() > lineHeight:
		line2Y = 1
	}

	c.DrawText(0, line1Y, indoorLabel, tempColor)
	c.DrawFloat(2*glyphAdvance, line1Y, in.Indoor.TemperatureC, 0, tempColor)
	c.DrawText(5*glyphAdvance, line1Y, "C", tempColor)
	c.DrawText(7*glyphAdvance, line1Y, "H", humColor)
	c.DrawFloat(8*glyphAdvance, line1Y, in.Indoor.Humidity, 0, humColor)

	labelColor := tempColor
	outWindColor := windColor
	if in.OutdoorStale {
		labelColor = staleColor
		outWindColor = staleColor
	}

	c.DrawText(0, line2Y, outdoorLabel, labelColor)
	if !in.OutdoorStale && model.Valid(in.Outdoor.TemperatureC) {
		c.DrawFloat(3*glyphAdvance, line2Y, in.Outdoor.TemperatureC, 0, labelColor)
		c.DrawText(6*glyphAdvance, line2Y, "C", labelColor)
	} else {
		c.DrawText(3*glyphAdvance, line2Y, "--", labelColor)
	}
	c.DrawText(8*glyphAdvance, line2Y, "W", outWindColor)
	if !in.OutdoorStale && model.Valid(in.Outdoor.WindSpeed) {
		c.DrawFloat(9*glyphAdvance, line2Y, in.Outdoor.WindSpeed, 1, outWindColor)
	} else {
		c.DrawText(9*glyphAdvance, line2Y, "--", outWindColor)
	}
}

// PickForecast returns the first horizon, in ascending order, whose temperature
// is available.  Horizons that only carry humidity are skipped.
func PickForecast(src OutdoorSource) (hours int, snap model.OutdoorSnapshot, ok bool) {
	if src == nil {
		return 0, model.EmptyOutdoor(), false
	}
	for _, h := range model.Horizons {
		candidate := src.ForecastFor(h)
		if model.Valid(candidate.TemperatureC) {
			return h, candidate, true
		}
	}
	return 0, model.EmptyOutdoor(), false
}

func renderForecast(c *Canvas, in SceneInput) {
	c.Clear()

	if in.Forecast == nil || in.OutdoorStale {
		c.DrawTextCentered(1, noOutdoorLabel, noDataColor)
		return
	}

	hours, snap, ok := PickForecast(in.Forecast)
	if !ok {
		c.DrawTextCentered(1, noForecastText, noDataColor)
		return
	}

	label := fmt.Sprintf("F%dH", hours)
	temp := formatReading(snap.TemperatureC, 0)
	c.DrawText(0, 0, label, fcTempColor)
	cursor := TextWidth(label)
	c.DrawText(cursor, 0, temp, fcTempColor)
	cursor += TextWidth(temp)
	c.DrawText(cursor, 0, "C", fcTempColor)

	y2 := 5
	if c.Height() > 6 {
		y2 = 6
	}
	c.DrawText(0, y2, "H", fcHumColor)
	c.DrawFloat(glyphAdvance, y2, snap.Humidity, 0, fcHumColor)

	if w := c.Width(); w > 0 && c.Height() > 0 {
		x := int(in.Phase*float64(w)) % w
		c.Set(x, c.Height()-1, fcBarColor)
	}
}

func renderFallback(c *Canvas, in SceneInput) {
	c.Clear()
	w, h := c.Width(), c.Height()
	if w == 0 || h == 0 {
		return
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			t := math.Mod(float64(x)/float64(w)+in.Phase, 1.0)
			c.Set(x, y, rgb(clamp8(t*180), clamp8((1.0-t)*140), 40))
		}
	}
}

func renderTestSweep(c *Canvas, in SceneInput) {
	c.Clear()
	w, h := c.Width(), c.Height()
	if w+h == 0 {
		return
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			t := math.Mod(float64(x+y)/float64(w+h)+in.Phase, 1.0)
			c.Set(x, y, rainbow(t))
		}
	}
}
