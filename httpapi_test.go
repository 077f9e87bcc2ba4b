package wxmatrix

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "gopkg.in/check.v1"

	"github.com/TeamNorCal/wxmatrix/model"
)

type APISuite struct {
	server *httptest.Server
	cancel context.CancelFunc
	doneC  chan struct{}
}

var _ = Suite(&APISuite{})

func (s *APISuite) SetUpTest(c *C) {
	d, _, _, _, _ := newTestDisplay()
	station := NewStation(d)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.doneC = make(chan struct{})
	go func() {
		defer close(s.doneC)
		station.Run(ctx, 5*time.Millisecond)
	}()

	indoor := model.EmptyIndoor()
	indoor.TemperatureC = 20
	indoor.PressurePa = 101325
	indoor.CollectedAt = time.Now()
	s.server = httptest.NewServer(NewAPI(station, NewOutdoorCache(), StaticIndoor{Sample: indoor}, nil).Handler())
}

func (s *APISuite) TearDownTest(c *C) {
	s.server.Close()
	s.cancel()
	<-s.doneC
}

func (s *APISuite) send(c *C, method string, path string, body string) (status int, out []byte) {
	req, errGo := http.NewRequest(method, s.server.URL+path, strings.NewReader(body))
	c.Assert(errGo, IsNil)
	resp, errGo := http.DefaultClient.Do(req)
	c.Assert(errGo, IsNil)
	defer resp.Body.Close()
	out, errGo = ioutil.ReadAll(resp.Body)
	c.Assert(errGo, IsNil)
	return resp.StatusCode, out
}

func (s *APISuite) config(c *C, body string) (doc ConfigDoc) {
	status, out := s.send(c, http.MethodPost, "/api/matrix/config", body)
	c.Assert(status, Equals, http.StatusOK, Commentf("%s", out))
	c.Assert(json.Unmarshal(out, &doc), IsNil)
	return doc
}

func (s *APISuite) TestGetConfig(c *C) {
	status, out := s.send(c, http.MethodGet, "/api/matrix/config", "")
	c.Assert(status, Equals, http.StatusOK)

	doc := ConfigDoc{}
	c.Assert(json.Unmarshal(out, &doc), IsNil)
	c.Check(doc.Enabled, Equals, true)
	c.Check(doc.Width, Equals, uint16(32))
	c.Check(doc.Height, Equals, uint16(8))
	c.Check(doc.SceneCount, Equals, 1)
	c.Check(doc.SceneOrder, DeepEquals, []int{0})
	c.Check(doc.Color1, Equals, [3]uint8{120, 210, 255})
}

func (s *APISuite) TestConfigClamps(c *C) {
	doc := s.config(c, `{"width": 999, "height": 0, "fps": 500.7, "pin": 300, "brightness": -4, "orientationDegrees": 270, "sceneDwellMs": 9000}`)
	c.Check(doc.Width, Equals, uint16(256))
	c.Check(doc.Height, Equals, uint16(1))
	c.Check(doc.FPS, Equals, uint16(200))
	c.Check(doc.Pin, Equals, uint8(255))
	c.Check(doc.Brightness, Equals, uint8(0))
	c.Check(doc.OrientationIndex, Equals, 3)
	c.Check(doc.OrientationDegrees, Equals, 270)
	c.Check(doc.SceneDwellMs, Equals, 0)

	doc = s.config(c, `{"orientationDegrees": 45, "fps": 12.9}`)
	c.Check(doc.OrientationIndex, Equals, 3)
	c.Check(doc.FPS, Equals, uint16(12))

	doc = s.config(c, `{"orientationIndex": 5}`)
	c.Check(doc.OrientationIndex, Equals, 1)
}

func (s *APISuite) TestConfigColors(c *C) {
	doc := s.config(c, `{"color1": "#102030", "color2": [1, 2, 3], "colorMode": 2}`)
	c.Check(doc.Color1, Equals, [3]uint8{16, 32, 48})
	c.Check(doc.Color2, Equals, [3]uint8{1, 2, 3})
	c.Check(doc.ColorMode, Equals, uint8(model.ColorCycle))

	doc = s.config(c, `{"color1": "blue", "colorMode": 9}`)
	c.Check(doc.Color1, Equals, [3]uint8{16, 32, 48})
	c.Check(doc.ColorMode, Equals, uint8(model.ColorCycle))
}

func (s *APISuite) TestConfigInvalid(c *C) {
	for _, body := range []string{`{"width": `, `null`, `[1]`} {
		status, out := s.send(c, http.MethodPost, "/api/matrix/config", body)
		c.Check(status, Equals, http.StatusBadRequest, Commentf("%s", body))
		c.Check(string(out), Matches, `(?s).*invalid json.*`)
	}
	status, _ := s.send(c, http.MethodDelete, "/api/matrix/config", "")
	c.Check(status, Equals, http.StatusMethodNotAllowed)
}

func (s *APISuite) TestAction(c *C) {
	status, _ := s.send(c, http.MethodPost, "/api/matrix/action", `{"action": "TEST"}`)
	c.Check(status, Equals, http.StatusOK)

	status, _ = s.send(c, http.MethodPost, "/api/matrix/action", `{"verb": "test"}`)
	c.Check(status, Equals, http.StatusBadRequest)

	status, _ = s.send(c, http.MethodGet, "/api/matrix/action", "")
	c.Check(status, Equals, http.StatusMethodNotAllowed)
}

func (s *APISuite) TestCommandAndState(c *C) {
	status, out := s.send(c, http.MethodPost, "/api/matrix/command", `{"brightness": 500, "scene": 3}`)
	c.Assert(status, Equals, http.StatusOK)
	state := model.StatePayload{}
	c.Assert(json.Unmarshal(out, &state), IsNil)
	c.Check(state.Brightness, Equals, uint8(255))
	c.Check(state.Scene, Equals, 0)

	status, out = s.send(c, http.MethodGet, "/api/matrix/state", "")
	c.Assert(status, Equals, http.StatusOK)
	state = model.StatePayload{}
	c.Assert(json.Unmarshal(out, &state), IsNil)
	c.Check(state.Brightness, Equals, uint8(255))
	c.Check(state.Enabled, Equals, true)
	c.Check(state.Width, Equals, uint16(32))
}

func (s *APISuite) TestPreview(c *C) {
	status, out := s.send(c, http.MethodGet, "/api/matrix/preview.png?scale=2", "")
	c.Assert(status, Equals, http.StatusOK)
	img, errGo := png.Decode(bytes.NewReader(out))
	c.Assert(errGo, IsNil)
	c.Check(img.Bounds().Dx(), Equals, 64)
	c.Check(img.Bounds().Dy(), Equals, 16)

	for _, scale := range []string{"0", "33", "x"} {
		status, _ = s.send(c, http.MethodGet, "/api/matrix/preview.png?scale="+scale, "")
		c.Check(status, Equals, http.StatusBadRequest, Commentf("%s", scale))
	}
}

func (s *APISuite) TestOutdoor(c *C) {
	status, out := s.send(c, http.MethodPost, "/api/outdoor/cache", agentDocument)
	c.Assert(status, Equals, http.StatusOK)
	c.Check(string(out), Matches, `(?s).*"cached".*`)

	status, _ = s.send(c, http.MethodPost, "/api/outdoor/cache", `[1, 2]`)
	c.Check(status, Equals, http.StatusBadRequest)

	status, out = s.send(c, http.MethodGet, "/api/outdoor/forecast", "")
	c.Assert(status, Equals, http.StatusOK)
	report := struct {
		LastFetchMs int64                          `json:"lastFetchMs"`
		Outlook     map[string]map[string]*float64 `json:"outlook"`
	}{}
	c.Assert(json.Unmarshal(out, &report), IsNil)
	c.Check(report.LastFetchMs, Equals, int64(1710000000000))
	c.Check(report.Outlook, HasLen, 8)
	c.Assert(report.Outlook["h1"]["temperatureC"], NotNil)
	c.Check(*report.Outlook["h1"]["temperatureC"], Equals, 13.0)
	c.Check(report.Outlook["h6"]["temperatureC"], IsNil)
}

func (s *APISuite) TestPreviewImage(c *C) {
	d, _, _, _, _ := newTestDisplay()
	d.ShowSolid(rgb(255, 0, 0))
	img := PreviewImage(d.Frame(), 3)
	c.Check(img.Bounds().Dx(), Equals, 96)
	c.Check(img.RGBAAt(95, 23), Equals, rgb(255, 0, 0))
}

func (s *APISuite) TestRetiredSceneOrder(c *C) {
	cmd := command{}
	c.Assert(json.Unmarshal([]byte(`{"sceneOrder": [5, 2, -1, 7, 9], "sceneCount": 3}`), &cmd), IsNil)
	order, ok := cmd.sceneOrder()
	c.Check(ok, Equals, true)
	c.Check(order, DeepEquals, []int{1, 2, 3})

	cmd = command{}
	c.Assert(json.Unmarshal([]byte(`{"sceneOrder": [2, 6], "sceneCount": 40}`), &cmd), IsNil)
	order, ok = cmd.sceneOrder()
	c.Check(ok, Equals, true)
	c.Check(order, DeepEquals, []int{2, 2})

	cmd = command{}
	c.Assert(json.Unmarshal([]byte(`{"sceneOrder": "1,2", "sceneCount": 2}`), &cmd), IsNil)
	_, ok = cmd.sceneOrder()
	c.Check(ok, Equals, false)

	// The retired fields never change the configuration
	cfg := model.DefaultMatrixConfig()
	next, err := ApplyConfigDoc(cfg, []byte(`{"sceneOrder": [1, 2, 3], "sceneCount": 3, "sceneDwellMs": 4000, "transitionMs": 200}`))
	c.Assert(err, IsNil)
	c.Check(next, Equals, cfg)
}

func (s *APISuite) TestWeatherMetrics(c *C) {
	status, out := s.send(c, http.MethodGet, "/api/weather/metrics", "")
	c.Assert(status, Equals, http.StatusOK, Commentf("%s", out))

	report := map[string]interface{}{}
	c.Assert(json.Unmarshal(out, &report), IsNil)
	c.Check(report["status"], Equals, "ok")
	c.Check(report["seaLevelPressureHpa"], Equals, StandardSeaLevelHpa)
	c.Check(report["sensors"], DeepEquals, map[string]interface{}{
		"indoor": map[string]interface{}{"present": true, "ok": true},
	})

	metrics := report["metrics"].(map[string]interface{})
	c.Check(metrics["temperatureC"], Equals, 20.0)
	c.Check(metrics["temperatureF"], Equals, 68.0)
	c.Check(metrics["pressureHpa"], Equals, 1013.25)
	_, found := metrics["humidity"]
	c.Check(found, Equals, false)
	_, found = metrics["dewPointC"]
	c.Check(found, Equals, false)

	status, _ = s.send(c, http.MethodPost, "/api/weather/metrics", "")
	c.Check(status, Equals, http.StatusMethodNotAllowed)
}

func (s *APISuite) TestWeatherMetricsStale(c *C) {
	d, _, _, clock, _ := newTestDisplay()
	indoor := model.EmptyIndoor()
	indoor.Humidity = 40
	indoor.CollectedAt = clock.Now()
	handler := NewAPI(NewStation(d), nil, StaticIndoor{Sample: indoor}, clock).Handler()

	report := MetricsReport{}
	get := func() {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/weather/metrics", nil))
		c.Assert(w.Code, Equals, http.StatusOK)
		report = MetricsReport{}
		c.Assert(json.Unmarshal(w.Body.Bytes(), &report), IsNil)
	}

	get()
	c.Check(report.Status, Equals, "ok")
	c.Check(report.CollectedAtMs, Equals, clock.Now().UnixNano()/int64(time.Millisecond))

	clock.Advance(IndoorStaleAfter + time.Second)
	get()
	c.Check(report.Status, Equals, "stale")
	c.Check(report.Sensors["indoor"], Equals, SensorStatus{Present: true, OK: false})
	c.Assert(report.Metrics.Humidity, NotNil)
	c.Check(*report.Metrics.Humidity, Equals, 40.0)
}

func (s *APISuite) TestWeatherMetricsWithoutSensor(c *C) {
	d, _, _, _, _ := newTestDisplay()
	w := httptest.NewRecorder()
	NewAPI(NewStation(d), nil, nil, nil).Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/weather/metrics", nil))
	c.Check(w.Code, Equals, http.StatusNotFound)
}
