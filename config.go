package wxmatrix

// Persistence of the matrix configuration.  The stored record is schema
// version 2, it still carries the keys of the retired multi scene cycling
// feature so that older readers find them, those keys only ever hold fixed
// values and never reach the runtime configuration.

import (
	"github.com/karlmutch/errors"

	"github.com/TeamNorCal/wxmatrix/model"
)

const (
	storeNamespace = "matrix"
	schemaVersion  = 2
)

// legacyScenes holds the retired scene cycling fields with the only values they
// may take
type legacyScenes struct {
	DwellMs      uint16
	TransitionMs uint16
	Count        uint8
	Order        [4]uint8
}

// retiredScenes is a single clock scene without dwell or transition
var retiredScenes = legacyScenes{
	DwellMs:      0,
	TransitionMs: 0,
	Count:        1,
	Order:        [4]uint8{0, 0, 0, 0},
}

// storedConfig is the persisted projection of the configuration
type storedConfig struct {
	model.MatrixConfig
	Legacy legacyScenes
}

// Sanitize applies the rules every configuration passes through before it is
// saved or adopted after a load.  An unknown color mode becomes Solid and the
// night window is put back to its compiled in default.
func Sanitize(cfg model.MatrixConfig) model.MatrixConfig {
	if !cfg.ColorMode.Valid() {
		cfg.ColorMode = model.ColorSolid
	}
	cfg.Orientation %= 4
	cfg.NightStartMin = model.DefaultNightStart
	cfg.NightEndMin = model.DefaultNightEnd
	return cfg
}

func readConfig(store Store) (cfg model.MatrixConfig) {
	def := model.DefaultMatrixConfig()
	ns := storeNamespace

	cfg.Enabled = store.GetBool(ns, "enabled", def.Enabled)
	cfg.Pin = store.GetUint8(ns, "pin", def.Pin)
	cfg.Width = store.GetUint16(ns, "w", def.Width)
	cfg.Height = store.GetUint16(ns, "h", def.Height)
	cfg.Serpentine = store.GetBool(ns, "serp", def.Serpentine)
	cfg.StartBottom = store.GetBool(ns, "bottom", def.StartBottom)
	cfg.FlipX = store.GetBool(ns, "flipx", def.FlipX)
	cfg.Orientation = model.Orientation(store.GetUint8(ns, "orient", uint8(def.Orientation)) % 4)
	cfg.Brightness = store.GetUint8(ns, "bright", def.Brightness)
	cfg.MaxBrightness = store.GetUint8(ns, "maxb", def.MaxBrightness)
	cfg.NightEnabled = store.GetBool(ns, "night", def.NightEnabled)
	cfg.NightStartMin = store.GetUint16(ns, "nstart", def.NightStartMin)
	cfg.NightEndMin = store.GetUint16(ns, "nend", def.NightEndMin)
	cfg.NightBrightness = store.GetUint8(ns, "nbright", def.NightBrightness)
	cfg.FPS = store.GetUint16(ns, "fps", def.FPS)
	cfg.ClockUse12h = store.GetBool(ns, "use12h", def.ClockUse12h)
	cfg.ClockShowSeconds = store.GetBool(ns, "showSec", def.ClockShowSeconds)
	cfg.ClockShowMillis = store.GetBool(ns, "showMs", def.ClockShowMillis)
	cfg.ColorMode = model.ColorMode(store.GetUint8(ns, "cMode", uint8(def.ColorMode)) % 3)
	cfg.Color1 = model.RGB{
		R: store.GetUint8(ns, "c1r", def.Color1.R),
		G: store.GetUint8(ns, "c1g", def.Color1.G),
		B: store.GetUint8(ns, "c1b", def.Color1.B),
	}
	cfg.Color2 = model.RGB{
		R: store.GetUint8(ns, "c2r", def.Color2.R),
		G: store.GetUint8(ns, "c2g", def.Color2.G),
		B: store.GetUint8(ns, "c2b", def.Color2.B),
	}

	// The legacy keys dwell, transition, scenes and s0..s3 are deliberately not
	// read, whatever an older schema left there is replaced on the next save

	if schema := store.GetUint8(ns, "schema", 0); schema != schemaVersion {
		logger.Debug("stored matrix schema differs", "found", schema, "current", schemaVersion)
	}
	return Sanitize(cfg)
}

func writeConfig(store Store, cfg model.MatrixConfig) (err errors.Error) {
	rec := storedConfig{MatrixConfig: cfg, Legacy: retiredScenes}
	ns := storeNamespace

	store.PutUint8(ns, "schema", schemaVersion)

	store.PutBool(ns, "enabled", rec.Enabled)
	store.PutUint8(ns, "pin", rec.Pin)
	store.PutUint16(ns, "w", rec.Width)
	store.PutUint16(ns, "h", rec.Height)
	store.PutBool(ns, "serp", rec.Serpentine)
	store.PutBool(ns, "bottom", rec.StartBottom)
	store.PutBool(ns, "flipx", rec.FlipX)
	store.PutUint8(ns, "orient", uint8(rec.Orientation))
	store.PutUint8(ns, "bright", rec.Brightness)
	store.PutUint8(ns, "maxb", rec.MaxBrightness)
	store.PutBool(ns, "night", rec.NightEnabled)
	store.PutUint16(ns, "nstart", rec.NightStartMin)
	store.PutUint16(ns, "nend", rec.NightEndMin)
	store.PutUint8(ns, "nbright", rec.NightBrightness)
	store.PutUint16(ns, "fps", rec.FPS)

	store.PutUint16(ns, "dwell", rec.Legacy.DwellMs)
	store.PutUint16(ns, "transition", rec.Legacy.TransitionMs)
	store.PutUint8(ns, "scenes", rec.Legacy.Count)
	store.PutUint8(ns, "s0", rec.Legacy.Order[0])
	store.PutUint8(ns, "s1", rec.Legacy.Order[1])
	store.PutUint8(ns, "s2", rec.Legacy.Order[2])
	store.PutUint8(ns, "s3", rec.Legacy.Order[3])

	store.PutBool(ns, "use12h", rec.ClockUse12h)
	store.PutBool(ns, "showSec", rec.ClockShowSeconds)
	store.PutBool(ns, "showMs", rec.ClockShowMillis)
	store.PutUint8(ns, "cMode", uint8(rec.ColorMode))
	store.PutUint8(ns, "c1r", rec.Color1.R)
	store.PutUint8(ns, "c1g", rec.Color1.G)
	store.PutUint8(ns, "c1b", rec.Color1.B)
	store.PutUint8(ns, "c2r", rec.Color2.R)
	store.PutUint8(ns, "c2g", rec.Color2.G)
	store.PutUint8(ns, "c2b", rec.Color2.B)

	return store.Commit()
}
