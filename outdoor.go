package wxmatrix

// This module holds the outdoor conditions and forecast pushed, or polled,
// from an external weather agent.  The agent format is parsed and converted
// into the canonical snapshots the display consumes.

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-stack/stack"
	"github.com/karlmutch/errors"

	"github.com/TeamNorCal/wxmatrix/model"
)

const hpaPerMmHg = 1.33322

// OutdoorSource hands out the cached outdoor data without blocking
type OutdoorSource interface {
	Current() model.OutdoorSnapshot
	ForecastFor(hours int) model.OutdoorSnapshot
	LastFetch() time.Time
}

// OutdoorPush is one complete update from the weather agent
type OutdoorPush struct {
	Current   model.OutdoorSnapshot
	Outlook   map[int]model.OutdoorSnapshot
	FetchedAt time.Time
}

// OutdoorCache is the latest outdoor data, safe for concurrent use
type OutdoorCache struct {
	current   model.OutdoorSnapshot
	outlook   map[int]model.OutdoorSnapshot
	fetchedAt time.Time
	sync.Mutex
}

// NewOutdoorCache creates a cache that has never been fetched
func NewOutdoorCache() *OutdoorCache {
	return &OutdoorCache{
		current: model.EmptyOutdoor(),
		outlook: map[int]model.OutdoorSnapshot{},
	}
}

// Update replaces the cache contents with a push
func (c *OutdoorCache) Update(push OutdoorPush) {
	outlook := make(map[int]model.OutdoorSnapshot, len(push.Outlook))
	for h, snap := range push.Outlook {
		outlook[h] = snap
	}

	c.Lock()
	defer c.Unlock()
	c.current = push.Current
	c.outlook = outlook
	c.fetchedAt = push.FetchedAt
}

func (c *OutdoorCache) Current() model.OutdoorSnapshot {
	c.Lock()
	defer c.Unlock()
	return c.current
}

// ForecastFor returns the forecast for a horizon, horizons never received are
// entirely unavailable
func (c *OutdoorCache) ForecastFor(hours int) model.OutdoorSnapshot {
	c.Lock()
	defer c.Unlock()
	if snap, ok := c.outlook[hours]; ok {
		return snap
	}
	return model.EmptyOutdoor()
}

func (c *OutdoorCache) LastFetch() time.Time {
	c.Lock()
	defer c.Unlock()
	return c.fetchedAt
}

// OutdoorReport is the document served to clients asking for the cache contents
type OutdoorReport struct {
	LastFetchMs int64                            `json:"lastFetchMs"`
	Stale       bool                             `json:"stale"`
	Current     model.OutdoorSnapshot            `json:"current"`
	Outlook     map[string]model.OutdoorSnapshot `json:"outlook"`
}

// Report summarizes the cache as of now
func (c *OutdoorCache) Report(now time.Time) (report OutdoorReport) {
	c.Lock()
	defer c.Unlock()

	report = OutdoorReport{
		Stale:   IsOutdoorStale(c.fetchedAt, now),
		Current: c.current,
		Outlook: map[string]model.OutdoorSnapshot{},
	}
	if !c.fetchedAt.IsZero() {
		report.LastFetchMs = c.fetchedAt.UnixNano() / int64(time.Millisecond)
	}
	for _, h := range model.Horizons {
		snap, ok := c.outlook[h]
		if !ok {
			snap = model.EmptyOutdoor()
		}
		report.Outlook["h"+strconv.Itoa(h)] = snap
	}
	return report
}

type jsonObject map[string]json.RawMessage

// numberField decodes key when it holds a JSON number
func (obj jsonObject) numberField(key string) (v float64, ok bool) {
	raw, ok := obj[key]
	if !ok {
		return 0, false
	}
	if errGo := json.Unmarshal(raw, &v); errGo != nil {
		return 0, false
	}
	return v, true
}

// objectField decodes key when it holds a JSON object
func (obj jsonObject) objectField(key string) (child jsonObject, ok bool) {
	raw, ok := obj[key]
	if !ok {
		return nil, false
	}
	if errGo := json.Unmarshal(raw, &child); errGo != nil || child == nil {
		return nil, false
	}
	return child, true
}

func parseOutdoorSnapshot(obj jsonObject) (snap model.OutdoorSnapshot) {
	snap = model.EmptyOutdoor()
	if obj == nil {
		return snap
	}
	set := func(target *float64, keys ...string) {
		for _, key := range keys {
			if v, ok := obj.numberField(key); ok {
				*target = v
			}
		}
	}
	set(&snap.TemperatureC, "temperatureC", "tempC")
	set(&snap.Humidity, "humidity")
	set(&snap.PressureHpa, "pressureHpa")
	set(&snap.PressureMmHg, "pressureMmHg")
	set(&snap.AltitudeM, "altitudeM")
	set(&snap.WindSpeed, "windSpeed")

	if !model.Valid(snap.PressureMmHg) && model.Valid(snap.PressureHpa) {
		snap.PressureMmHg = snap.PressureHpa / hpaPerMmHg
	}
	return snap
}

// ParseOutdoorPush decodes the weather agent document.  The current conditions
// live under "current", forecasts under "outlook" keyed by "h<hours>" or just
// "<hours>".  fetchedAtMs is the unix time in milliseconds at which the agent
// obtained the data, now is used when it is missing.
func ParseOutdoorPush(body []byte, now time.Time) (push OutdoorPush, err errors.Error) {
	obj := jsonObject{}
	if errGo := json.Unmarshal(body, &obj); errGo != nil {
		return push, errors.Wrap(errGo).With("body", string(body)).With("stack", stack.Trace().TrimRuntime())
	}
	if obj == nil {
		return push, errors.New("outdoor push is not an object").With("stack", stack.Trace().TrimRuntime())
	}

	current, _ := obj.objectField("current")
	push.Current = parseOutdoorSnapshot(current)
	push.Outlook = map[int]model.OutdoorSnapshot{}

	if outlook, ok := obj.objectField("outlook"); ok {
		for _, h := range model.Horizons {
			slot, ok := outlook.objectField("h" + strconv.Itoa(h))
			if !ok {
				slot, ok = outlook.objectField(strconv.Itoa(h))
			}
			if ok {
				push.Outlook[h] = parseOutdoorSnapshot(slot)
			}
		}
	}

	push.FetchedAt = now
	if ms, ok := obj.numberField("fetchedAtMs"); ok && ms > 0 && !math.IsInf(ms, 0) {
		push.FetchedAt = time.Unix(0, int64(ms)*int64(time.Millisecond))
	}
	return push, nil
}

// OutdoorPoller fetches the agent document from a URL on a fixed interval, for
// agents that cannot push to the station
type OutdoorPoller struct {
	url      url.URL
	cache    *OutdoorCache
	interval time.Duration
	errorC   chan<- errors.Error
}

// NewOutdoorPoller creates a poller that fills cache from the agent at u
func NewOutdoorPoller(u url.URL, cache *OutdoorCache, interval time.Duration, errorC chan<- errors.Error) (p *OutdoorPoller) {
	return &OutdoorPoller{
		url:      u,
		cache:    cache,
		interval: interval,
		errorC:   errorC,
	}
}

func (p *OutdoorPoller) fetch() (push OutdoorPush, err errors.Error) {
	body := []byte{}

	switch p.url.Scheme {
	case "http", "https":
		resp, errGo := http.Get(p.url.String())
		if errGo != nil {
			return push, errors.Wrap(errGo).With("url", p.url.String()).With("stack", stack.Trace().TrimRuntime())
		}

		body, errGo = ioutil.ReadAll(resp.Body)
		resp.Body.Close()
		if errGo != nil {
			return push, errors.Wrap(errGo).With("url", p.url.String()).With("stack", stack.Trace().TrimRuntime())
		}
		if resp.StatusCode != http.StatusOK {
			return push, errors.New("unexpected status from weather agent").With("url", p.url.String()).With("status", resp.StatusCode).With("stack", stack.Trace().TrimRuntime())
		}

	default:
		errGo := fmt.Errorf("unknown scheme %s for the weather agent URI", p.url.Scheme)
		return push, errors.Wrap(errGo).With("url", p.url.String()).With("stack", stack.Trace().TrimRuntime())
	}

	return ParseOutdoorPush(body, time.Now())
}

func (p *OutdoorPoller) poll() {
	push, err := p.fetch()
	if err != nil {
		go func(err errors.Error) {
			select {
			case p.errorC <- err:
			case <-time.After(500 * time.Millisecond):
				logger.Warn("could not send error for outdoor poll", "error", err.Error())
			}
		}(err)
		return
	}
	p.cache.Update(push)
	logger.Debug("outdoor data refreshed", "url", p.url.String(), "horizons", len(push.Outlook))
}

// Run polls the agent until quitC is closed
func (p *OutdoorPoller) Run(quitC <-chan struct{}) {
	p.poll()

	poll := time.NewTicker(p.interval)
	defer poll.Stop()

	for {
		select {
		case <-poll.C:
			p.poll()

		case <-quitC:
			return
		}
	}
}
