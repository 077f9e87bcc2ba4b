package wxmatrix

// HTTP surface of the station.  Handlers never touch the display directly,
// their work is handed to the station goroutine.

import (
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io/ioutil"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-stack/stack"
	"github.com/karlmutch/errors"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw"

	"github.com/TeamNorCal/wxmatrix/model"
)

const (
	maxBodyBytes    = 64 * 1024
	handlerDeadline = 2 * time.Second
	previewScaleDef = 8
	previewScaleMax = 32
)

// ConfigDoc is the configuration record exchanged over HTTP.  The scene cycling
// fields are reported with their fixed values and accepted on update for
// compatibility with older clients, they have no effect.
type ConfigDoc struct {
	Enabled            bool     `json:"enabled"`
	Pin                uint8    `json:"pin"`
	Width              uint16   `json:"width"`
	Height             uint16   `json:"height"`
	Serpentine         bool     `json:"serpentine"`
	StartBottom        bool     `json:"startBottom"`
	FlipX              bool     `json:"flipX"`
	OrientationIndex   int      `json:"orientationIndex"`
	OrientationDegrees int      `json:"orientationDegrees"`
	Brightness         uint8    `json:"brightness"`
	MaxBrightness      uint8    `json:"maxBrightness"`
	NightEnabled       bool     `json:"nightEnabled"`
	NightStartMin      uint16   `json:"nightStartMin"`
	NightEndMin        uint16   `json:"nightEndMin"`
	NightBrightness    uint8    `json:"nightBrightness"`
	FPS                uint16   `json:"fps"`
	SceneDwellMs       int      `json:"sceneDwellMs"`
	TransitionMs       int      `json:"transitionMs"`
	SceneOrder         []int    `json:"sceneOrder"`
	SceneCount         int      `json:"sceneCount"`
	ClockUse12h        bool     `json:"clockUse12h"`
	ClockShowSeconds   bool     `json:"clockShowSeconds"`
	ClockShowMillis    bool     `json:"clockShowMillis"`
	ColorMode          uint8    `json:"colorMode"`
	Color1             [3]uint8 `json:"color1"`
	Color2             [3]uint8 `json:"color2"`
}

// NewConfigDoc renders a configuration as its HTTP record
func NewConfigDoc(cfg model.MatrixConfig) (doc ConfigDoc) {
	order := make([]int, retiredScenes.Count)
	for i := range order {
		order[i] = int(retiredScenes.Order[i])
	}
	return ConfigDoc{
		Enabled:            cfg.Enabled,
		Pin:                cfg.Pin,
		Width:              cfg.Width,
		Height:             cfg.Height,
		Serpentine:         cfg.Serpentine,
		StartBottom:        cfg.StartBottom,
		FlipX:              cfg.FlipX,
		OrientationIndex:   int(cfg.Orientation % 4),
		OrientationDegrees: cfg.Orientation.Degrees(),
		Brightness:         cfg.Brightness,
		MaxBrightness:      cfg.MaxBrightness,
		NightEnabled:       cfg.NightEnabled,
		NightStartMin:      cfg.NightStartMin,
		NightEndMin:        cfg.NightEndMin,
		NightBrightness:    cfg.NightBrightness,
		FPS:                cfg.FPS,
		SceneDwellMs:       int(retiredScenes.DwellMs),
		TransitionMs:       int(retiredScenes.TransitionMs),
		SceneOrder:         order,
		SceneCount:         int(retiredScenes.Count),
		ClockUse12h:        cfg.ClockUse12h,
		ClockShowSeconds:   cfg.ClockShowSeconds,
		ClockShowMillis:    cfg.ClockShowMillis,
		ColorMode:          uint8(cfg.ColorMode),
		Color1:             cfg.Color1.Array(),
		Color2:             cfg.Color2.Array(),
	}
}

// numeric accepts any JSON number, clamps it into [min, max] and truncates
// any fraction
func (cmd command) numeric(key string, min int64, max int64) (v int64, ok bool) {
	raw, ok := cmd[key]
	if !ok {
		return 0, false
	}
	f := 0.0
	if errGo := json.Unmarshal(raw, &f); errGo != nil || math.IsNaN(f) {
		return 0, false
	}
	switch {
	case f <= float64(min):
		return min, true
	case f >= float64(max):
		return max, true
	}
	return int64(f), true
}

// paletteColor accepts either an [r,g,b] array or a hex string such as "#78d2ff"
func (cmd command) paletteColor(key string) (v model.RGB, ok bool) {
	if v, ok = cmd.color(key); ok {
		return v, true
	}
	hex, ok := cmd.text(key)
	if !ok {
		return v, false
	}
	c, errGo := colorful.Hex(hex)
	if errGo != nil {
		return v, false
	}
	r, g, b := c.RGB255()
	return model.RGB{R: r, G: g, B: b}, true
}

// ApplyConfigDoc merges the fields present in an HTTP configuration update into
// cfg.  Numeric fields may be any JSON number and are clamped into range,
// fields of the wrong type are ignored.
func ApplyConfigDoc(cfg model.MatrixConfig, body []byte) (next model.MatrixConfig, err errors.Error) {
	cmd := command{}
	if errGo := json.Unmarshal(body, &cmd); errGo != nil {
		return cfg, errors.Wrap(errGo).With("stack", stack.Trace().TrimRuntime())
	}
	if cmd == nil {
		return cfg, errors.New("configuration is not an object").With("stack", stack.Trace().TrimRuntime())
	}

	next = cfg
	bools := []struct {
		key    string
		target *bool
	}{
		{"enabled", &next.Enabled},
		{"serpentine", &next.Serpentine},
		{"startBottom", &next.StartBottom},
		{"flipX", &next.FlipX},
		{"nightEnabled", &next.NightEnabled},
		{"clockUse12h", &next.ClockUse12h},
		{"clockShowSeconds", &next.ClockShowSeconds},
		{"clockShowMillis", &next.ClockShowMillis},
	}
	for _, field := range bools {
		if v, ok := cmd.boolean(field.key); ok {
			*field.target = v
		}
	}

	bytes := []struct {
		key    string
		target *uint8
	}{
		{"pin", &next.Pin},
		{"brightness", &next.Brightness},
		{"maxBrightness", &next.MaxBrightness},
		{"nightBrightness", &next.NightBrightness},
	}
	for _, field := range bytes {
		if v, ok := cmd.numeric(field.key, 0, math.MaxUint8); ok {
			*field.target = uint8(v)
		}
	}

	shorts := []struct {
		key      string
		min, max int64
		target   *uint16
	}{
		{"width", 1, 256, &next.Width},
		{"height", 1, 256, &next.Height},
		{"fps", 1, 200, &next.FPS},
		{"nightStartMin", 0, model.MinutesPerDay, &next.NightStartMin},
		{"nightEndMin", 0, model.MinutesPerDay, &next.NightEndMin},
	}
	for _, field := range shorts {
		if v, ok := cmd.numeric(field.key, field.min, field.max); ok {
			*field.target = uint16(v)
		}
	}

	if v, ok := cmd.numeric("orientationIndex", 0, math.MaxInt32); ok {
		next.Orientation = model.Orientation(v % 4)
	}
	if v, ok := cmd.integer("orientationDegrees"); ok {
		if o, valid := model.OrientationFromDegrees(int(v)); valid {
			next.Orientation = o
		}
	}

	if v, ok := cmd.numeric("colorMode", 0, math.MaxInt32); ok && v <= int64(model.ColorCycle) {
		next.ColorMode = model.ColorMode(v)
	}
	if v, ok := cmd.paletteColor("color1"); ok {
		next.Color1 = v
	}
	if v, ok := cmd.paletteColor("color2"); ok {
		next.Color2 = v
	}

	// sceneDwellMs, transitionMs, sceneOrder and sceneCount are still accepted
	// from older clients, they are normalized, logged and then discarded
	if v, ok := cmd.numeric("sceneDwellMs", 0, 60000); ok {
		logger.Debug("retired field ignored", "sceneDwellMs", v)
	}
	if v, ok := cmd.numeric("transitionMs", 0, 5000); ok {
		logger.Debug("retired field ignored", "transitionMs", v)
	}
	if order, ok := cmd.sceneOrder(); ok {
		logger.Debug("retired field ignored", "sceneOrder", order)
	}

	return next, nil
}

// sceneOrder decodes the retired sceneOrder and sceneCount pair.  Entries are
// taken modulo the number of scenes and the list is cut to sceneCount, which
// is clamped into 1..4.
func (cmd command) sceneOrder() (order []int, ok bool) {
	raw, isPresent := cmd["sceneOrder"]
	if !isPresent {
		return nil, false
	}
	entries := []float64{}
	if errGo := json.Unmarshal(raw, &entries); errGo != nil {
		return nil, false
	}

	count := int64(len(entries))
	if v, isNum := cmd.numeric("sceneCount", 1, SceneCount); isNum {
		count = v
	}
	if count > SceneCount {
		count = SceneCount
	}

	order = make([]int, 0, count)
	for _, v := range entries {
		if int64(len(order)) == count {
			break
		}
		idx := int(math.Mod(math.Trunc(v), SceneCount))
		if idx < 0 {
			idx += SceneCount
		}
		order = append(order, idx)
	}
	return order, true
}

// API serves the station over HTTP
type API struct {
	station *Station
	outdoor *OutdoorCache
	indoor  IndoorSource
	clock   Clock
}

// NewAPI creates the HTTP surface, outdoor and indoor may be nil when the
// station has no such source
func NewAPI(station *Station, outdoor *OutdoorCache, indoor IndoorSource, clock Clock) (api *API) {
	if clock == nil {
		clock = SystemClock{}
	}
	return &API{
		station: station,
		outdoor: outdoor,
		indoor:  indoor,
		clock:   clock,
	}
}

// Handler returns the routes of the API
func (api *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/matrix/config", api.matrixConfig)
	mux.HandleFunc("/api/matrix/action", api.matrixAction)
	mux.HandleFunc("/api/matrix/command", api.matrixCommand)
	mux.HandleFunc("/api/matrix/state", api.matrixState)
	mux.HandleFunc("/api/matrix/preview.png", api.matrixPreview)
	mux.HandleFunc("/api/outdoor/cache", api.outdoorCache)
	mux.HandleFunc("/api/outdoor/forecast", api.outdoorForecast)
	mux.HandleFunc("/api/weather/metrics", api.weatherMetrics)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if errGo := json.NewEncoder(w).Encode(v); errGo != nil {
		logger.Warn("response not sent", "error", errGo.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func readBody(w http.ResponseWriter, r *http.Request) (body []byte, err errors.Error) {
	body, errGo := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if errGo != nil {
		return nil, errors.Wrap(errGo).With("path", r.URL.Path).With("stack", stack.Trace().TrimRuntime())
	}
	return body, nil
}

// do runs fn on the station goroutine bounded by the request context
func (api *API) do(w http.ResponseWriter, r *http.Request, fn func(*Display)) bool {
	ctx, cancel := context.WithTimeout(r.Context(), handlerDeadline)
	defer cancel()

	if err := api.station.Do(ctx, fn); err != nil {
		logger.Warn("station did not respond", "path", r.URL.Path, "error", err.Error())
		writeError(w, http.StatusServiceUnavailable, "display busy")
		return false
	}
	return true
}

func (api *API) matrixConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		doc := ConfigDoc{}
		if api.do(w, r, func(d *Display) { doc = NewConfigDoc(d.Config()) }) {
			writeJSON(w, http.StatusOK, doc)
		}

	case http.MethodPost:
		body, err := readBody(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable body")
			return
		}

		var applyErr errors.Error
		doc := ConfigDoc{}
		ok := api.do(w, r, func(d *Display) {
			next, err := ApplyConfigDoc(d.Config(), body)
			if err != nil {
				applyErr = err
				return
			}
			if err = d.SaveConfig(next); err != nil {
				logger.Warn("configuration save incomplete", "error", err.Error())
			}
			doc = NewConfigDoc(d.Config())
		})
		if !ok {
			return
		}
		if applyErr != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		writeJSON(w, http.StatusOK, doc)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (api *API) matrixAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	req := struct {
		Action *string `json:"action"`
	}{}
	if errGo := json.Unmarshal(body, &req); errGo != nil || req.Action == nil {
		writeError(w, http.StatusBadRequest, "missing action")
		return
	}
	if api.do(w, r, func(d *Display) { d.PerformAction(*req.Action) }) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// matrixCommand accepts the same document as the MQTT command topic
func (api *API) matrixCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	state := model.StatePayload{}
	if api.do(w, r, func(d *Display) {
		d.HandleCommand(body)
		state = d.State()
	}) {
		writeJSON(w, http.StatusOK, state)
	}
}

func (api *API) matrixState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	state := model.StatePayload{}
	if api.do(w, r, func(d *Display) { state = d.State() }) {
		writeJSON(w, http.StatusOK, state)
	}
}

// PreviewImage enlarges a frame by an integer factor without smoothing
func PreviewImage(frame *image.RGBA, factor int) (preview *image.RGBA) {
	if factor < 1 {
		factor = 1
	}
	b := frame.Bounds()
	preview = image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.NearestNeighbor.Scale(preview, preview.Bounds(), frame, b, draw.Src, nil)
	return preview
}

func (api *API) matrixPreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	factor := previewScaleDef
	if s := r.URL.Query().Get("scale"); s != "" {
		n, errGo := strconv.Atoi(s)
		if errGo != nil || n < 1 || n > previewScaleMax {
			writeError(w, http.StatusBadRequest, "scale out of range")
			return
		}
		factor = n
	}

	var frame *image.RGBA
	if !api.do(w, r, func(d *Display) { frame = d.Frame() }) {
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if errGo := png.Encode(w, PreviewImage(frame, factor)); errGo != nil {
		logger.Warn("preview not sent", "error", errGo.Error())
	}
}

func (api *API) outdoorCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if api.outdoor == nil {
		writeError(w, http.StatusNotFound, "no outdoor cache")
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	push, err := ParseOutdoorPush(body, api.clock.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	api.outdoor.Update(push)
	logger.Debug("outdoor cache updated", "horizons", len(push.Outlook), "fetched", push.FetchedAt)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cached"})
}

func (api *API) outdoorForecast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if api.outdoor == nil {
		writeError(w, http.StatusNotFound, "no outdoor cache")
		return
	}
	writeJSON(w, http.StatusOK, api.outdoor.Report(api.clock.Now()))
}

func (api *API) weatherMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if api.indoor == nil {
		writeError(w, http.StatusNotFound, "no indoor sensor")
		return
	}
	writeJSON(w, http.StatusOK, NewMetricsReport(api.indoor, api.clock.Now()))
}
