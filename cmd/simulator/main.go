package main

// The simulator stands in for the outdoor weather agent.  A scenario is a
// directory of numbered slot directories, the number being the second of the
// run at which the slot becomes active.  Each slot holds an outdoor.json
// document in the agent format.  The active document is served over HTTP,
// for stations configured to poll, and can also be pushed to a station's
// /api/outdoor/cache endpoint.

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-stack/stack"
	"github.com/karlmutch/errors"

	"github.com/mgutz/logxi"

	"github.com/karlmutch/envflag"
)

const slotDocument = "outdoor.json"

var (
	listen       = flag.String("listen", ":8081", "Address to bind to, empty disables serving")
	scenarioPath = flag.String("path", "./", "Scenario directory holding the numbered slot directories")
	remote       = flag.Bool("remote", false, "Enable remote selection of the scenario being run")
	scale        = flag.Int("scale", 1, "factor by which to accelerate the relative rate of the clock")
	pushURL      = flag.String("push", "", "Station outdoor cache endpoint, for example http://station:8080/api/outdoor/cache")
	pushEvery    = flag.Duration("push-interval", 30*time.Second, "Interval between pushes to the station")
	verbose      = flag.Bool("v", false, "When enabled will print internal logging for this tool")
)

type testSlot struct {
	secondSlot int    // The second at which the slot directory activates
	dir        string // The directory that activates
}

type testWindow struct {
	scenario  string
	startTime time.Time
	slots     []*testSlot
	sync.Mutex
}

var (
	logW = logxi.NewLogger(logxi.NewConcurrentWriter(os.Stdout), "wxmatrix-simulator")

	testSchedule = testWindow{
		startTime: time.Now().Round(time.Second),
		slots:     []*testSlot{},
	}

	// This channel carries a scenario directory to be loaded immediately
	forcedLoad = make(chan string, 1)
)

func main() {

	envflag.Parse()

	if *verbose {
		logW.SetLevel(logxi.LevelDebug)
	}

	if _, errGo := filepath.Abs(*scenarioPath); errGo != nil {
		logW.Fatal(errGo.Error())
	}

	if err := loadTest(*scenarioPath); err != nil {
		logW.Warn("scenario not loaded", "error", err.Error())
	}

	go auditWindow()

	if *pushURL != "" {
		go pushLoop(*pushURL, *pushEvery)
	}

	if *listen == "" {
		select {}
	}

	http.HandleFunc("/", serveHandler)
	if errGo := http.ListenAndServe(*listen, nil); errGo != nil {
		logW.Warn(errGo.Error())
	}
}

// loadTest examines the scenario directory for the slot directories and loads
// them into the testSchedule
func loadTest(scenario string) (err errors.Error) {
	testSchedule.Lock()
	defer testSchedule.Unlock()

	testSchedule.scenario = scenario
	testSchedule.startTime = time.Now().Round(time.Second)
	testSchedule.slots = []*testSlot{}

	entries, errGo := ioutil.ReadDir(scenario)
	if errGo != nil {
		return errors.Wrap(errGo).With("scenario", scenario).With("stack", stack.Trace().TrimRuntime())
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		slot, errGo := strconv.Atoi(entry.Name())
		if errGo != nil {
			continue
		}
		// Slots without a document are of no use
		doc := filepath.Join(scenario, entry.Name(), slotDocument)
		if info, errGo := os.Stat(doc); errGo != nil || info.Size() == 0 {
			continue
		}
		testSchedule.slots = append(testSchedule.slots, &testSlot{
			dir:        filepath.Join(scenario, entry.Name()),
			secondSlot: slot,
		})
	}

	sort.Slice(testSchedule.slots, func(i, j int) bool {
		return testSchedule.slots[i].secondSlot < testSchedule.slots[j].secondSlot
	})

	logW.Debug(fmt.Sprintf("loaded scenario %s with %d slots", scenario, len(testSchedule.slots)))
	return nil
}

// currentScenario is the scenario directory last loaded
func currentScenario() string {
	testSchedule.Lock()
	defer testSchedule.Unlock()
	return testSchedule.scenario
}

// getSlotDir returns the directory of the slot active at this moment of the run
func getSlotDir() (dir string, ok bool) {
	testSchedule.Lock()
	defer testSchedule.Unlock()

	if len(testSchedule.slots) == 0 {
		return "", false
	}

	second := int(time.Since(testSchedule.startTime).Seconds() * float64(*scale))
	slot := sort.Search(len(testSchedule.slots), func(i int) bool { return testSchedule.slots[i].secondSlot > second }) - 1
	if slot < 0 {
		slot = 0
	}
	return testSchedule.slots[slot].dir, true
}

// auditWindow restarts the scenario once a slot containing a finish marker is
// reached, and on request
func auditWindow() {
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case scenario := <-forcedLoad:
			logW.Debug(fmt.Sprintf("forced load of %s occurring", scenario))
			if err := loadTest(scenario); err != nil {
				logW.Warn("scenario not loaded", "error", err.Error())
			}

		case <-tick.C:
			dir, ok := getSlotDir()
			if !ok {
				continue
			}
			if _, errGo := os.Stat(filepath.Join(dir, "finish")); errGo == nil {
				loadTest(currentScenario())
			}
		}
	}
}

// slotDocumentNow reads the active document and stamps it as fetched now
func slotDocumentNow() (body []byte, err errors.Error) {
	dir, ok := getSlotDir()
	if !ok {
		return nil, errors.New("scenario has no slots").With("scenario", currentScenario()).With("stack", stack.Trace().TrimRuntime())
	}
	fn := filepath.Join(dir, slotDocument)
	raw, errGo := ioutil.ReadFile(fn)
	if errGo != nil {
		return nil, errors.Wrap(errGo).With("file", fn).With("stack", stack.Trace().TrimRuntime())
	}

	doc := map[string]interface{}{}
	if errGo = json.Unmarshal(raw, &doc); errGo != nil {
		return nil, errors.Wrap(errGo).With("file", fn).With("stack", stack.Trace().TrimRuntime())
	}
	doc["fetchedAtMs"] = time.Now().UnixNano() / int64(time.Millisecond)

	if body, errGo = json.Marshal(doc); errGo != nil {
		return nil, errors.Wrap(errGo).With("file", fn).With("stack", stack.Trace().TrimRuntime())
	}
	return body, nil
}

func push(target string) (err errors.Error) {
	body, err := slotDocumentNow()
	if err != nil {
		return err
	}
	resp, errGo := http.Post(target, "application/json", bytes.NewReader(body))
	if errGo != nil {
		return errors.Wrap(errGo).With("url", target).With("stack", stack.Trace().TrimRuntime())
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.New("push rejected").With("url", target).With("status", resp.StatusCode).With("stack", stack.Trace().TrimRuntime())
	}
	return nil
}

func pushLoop(target string, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		if err := push(target); err != nil {
			logW.Warn("push failed", "error", err.Error())
		} else {
			logW.Debug("pushed", "url", target)
		}
		<-tick.C
	}
}

func serveConfigure(w http.ResponseWriter, r *http.Request) {
	scenario := strings.TrimPrefix(r.URL.Path, "/configure")
	if !filepath.IsAbs(scenario) {
		http.Error(w, "configure paths must be absolute", http.StatusNotFound)
		return
	}

	select {
	case forcedLoad <- scenario:
	case <-time.After(3 * time.Second):
		http.Error(w, "configure path could not be applied, a load is already pending", http.StatusServiceUnavailable)
	}
}

func serveHandler(w http.ResponseWriter, r *http.Request) {

	if *remote && strings.HasPrefix(r.URL.Path, "/configure/") {
		serveConfigure(w, r)
		return
	}

	body, err := slotDocumentNow()
	if err != nil {
		logW.Warn("nothing to serve", "error", err.Error())
		http.Error(w, "no scenario data", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}
