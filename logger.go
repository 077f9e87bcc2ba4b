package wxmatrix

import (
	"github.com/mgutz/logxi"
)

var (
	logger = logxi.New("wxmatrix")
)

// SetVerbose raises the package log level to debug
func SetVerbose(verbose bool) {
	if verbose {
		logger.SetLevel(logxi.LevelDebug)
	}
}
