package wxmatrix

import (
	"io/ioutil"
	"path/filepath"

	. "gopkg.in/check.v1"

	"github.com/TeamNorCal/wxmatrix/model"
)

type StoreSuite struct {
	path string
}

var _ = Suite(&StoreSuite{})

func (s *StoreSuite) SetUpTest(c *C) {
	s.path = filepath.Join(c.MkDir(), "matrix.yaml")
}

func (s *StoreSuite) open(c *C) *FileStore {
	store, err := OpenFileStore(s.path)
	c.Assert(err, IsNil)
	return store
}

func (s *StoreSuite) read(c *C) []byte {
	raw, errGo := ioutil.ReadFile(s.path)
	c.Assert(errGo, IsNil)
	return raw
}

func (s *StoreSuite) TestMissingFile(c *C) {
	store := s.open(c)
	c.Check(store.GetBool("matrix", "enabled", true), Equals, true)
	c.Check(store.GetUint16("matrix", "w", 32), Equals, uint16(32))

	d := NewDisplay(store, nil, newFakeClock())
	d.LoadConfig()
	c.Check(d.Config(), Equals, Sanitize(model.DefaultMatrixConfig()))
}

func (s *StoreSuite) TestRoundTripIsIdempotent(c *C) {
	cfg := model.DefaultMatrixConfig()
	cfg.Enabled = true
	cfg.Width = 16
	cfg.Height = 16
	cfg.Orientation = model.Deg270
	cfg.FlipX = true
	cfg.Brightness = 77
	cfg.ColorMode = model.ColorCycle
	cfg.Color2 = model.RGB{R: 1, G: 2, B: 3}

	first := NewDisplay(s.open(c), nil, newFakeClock())
	c.Assert(first.SaveConfig(cfg), IsNil)
	saved := s.read(c)

	second := NewDisplay(s.open(c), nil, newFakeClock())
	second.LoadConfig()
	c.Check(second.Config(), Equals, Sanitize(cfg))
	c.Assert(second.SaveConfig(second.Config()), IsNil)
	c.Check(string(s.read(c)), Equals, string(saved))

	third := NewDisplay(s.open(c), nil, newFakeClock())
	third.LoadConfig()
	c.Check(third.Config(), Equals, second.Config())
}

func (s *StoreSuite) TestLegacyKeysNormalized(c *C) {
	store := s.open(c)
	store.PutUint16("matrix", "dwell", 5000)
	store.PutUint16("matrix", "transition", 700)
	store.PutUint8("matrix", "scenes", 3)
	store.PutUint8("matrix", "s1", 2)
	store.PutUint16("matrix", "nstart", 60)
	store.PutUint8("matrix", "cMode", 5)
	store.PutUint8("matrix", "orient", 6)
	c.Assert(store.Commit(), IsNil)

	d := NewDisplay(s.open(c), nil, newFakeClock())
	d.LoadConfig()
	c.Check(d.Config().NightStartMin, Equals, uint16(model.DefaultNightStart))
	c.Check(d.Config().ColorMode, Equals, model.ColorCycle)
	c.Check(d.Config().Orientation, Equals, model.Deg180)

	c.Assert(d.SaveConfig(d.Config()), IsNil)
	reopened := s.open(c)
	c.Check(reopened.GetUint16("matrix", "dwell", 1), Equals, uint16(0))
	c.Check(reopened.GetUint16("matrix", "transition", 1), Equals, uint16(0))
	c.Check(reopened.GetUint8("matrix", "scenes", 0), Equals, uint8(1))
	c.Check(reopened.GetUint8("matrix", "s1", 9), Equals, uint8(0))
	c.Check(reopened.GetUint8("matrix", "schema", 0), Equals, uint8(schemaVersion))
}

func (s *StoreSuite) TestEveryKeyWritten(c *C) {
	store := NewMemStore()
	c.Assert(writeConfig(store, model.DefaultMatrixConfig()), IsNil)

	keys := []string{"enabled", "pin", "w", "h", "serp", "bottom", "flipx", "orient", "bright", "maxb",
		"night", "nstart", "nend", "nbright", "fps", "dwell", "transition", "scenes", "s0", "s1", "s2", "s3",
		"use12h", "showSec", "showMs", "cMode", "c1r", "c1g", "c1b", "c2r", "c2g", "c2b", "schema"}
	for _, key := range keys {
		_, ok := store.get("matrix", key)
		c.Check(ok, Equals, true, Commentf("%s", key))
	}
	c.Check(store.data["matrix"], HasLen, len(keys))
}

func (s *StoreSuite) TestWrongKinds(c *C) {
	store := NewMemStore()
	store.PutBool("matrix", "w", true)
	store.PutUint16("matrix", "enabled", 1)
	store.PutUint16("matrix", "pin", 400)

	c.Check(store.GetUint16("matrix", "w", 32), Equals, uint16(32))
	c.Check(store.GetBool("matrix", "enabled", false), Equals, false)
	c.Check(store.GetUint8("matrix", "pin", 2), Equals, uint8(2))
	c.Check(store.GetUint8("other", "pin", 3), Equals, uint8(3))
}

func (s *StoreSuite) TestCommitFailureStillAdopts(c *C) {
	store := NewMemStore()
	store.FailCommit = true
	rec := &recorder{}

	d := NewDisplay(store, NewMemDriver(), newFakeClock())
	d.SetPublisher(rec)

	cfg := model.DefaultMatrixConfig()
	cfg.Brightness = 5
	c.Check(d.SaveConfig(cfg), NotNil)
	c.Check(d.Config().Brightness, Equals, uint8(5))
	c.Check(rec.states, HasLen, 1)
}

func (s *StoreSuite) TestMemStoreBytes(c *C) {
	store := NewMemStore()
	store.PutUint8("matrix", "bright", 7)
	store.PutBool("matrix", "enabled", true)
	out, err := store.Bytes()
	c.Assert(err, IsNil)
	c.Check(string(out), Equals, "matrix:\n  bright: 7\n  enabled: true\n")
}
