package main

import (
	"fmt"
	"os"

	"github.com/karlmutch/errors"
)

var (
	errV = os.Stderr
)

// runErrorWatch reports failures raised by the background collaborators,
// none of them are fatal to the station
func runErrorWatch(errorC <-chan errors.Error, quitC <-chan struct{}) {
	for {
		select {
		case err := <-errorC:
			if err == nil {
				continue
			}
			logger.Warn(err.Error())
			if errV != nil && !logger.IsWarn() {
				fmt.Fprintln(errV, err.Error())
			}
		case <-quitC:
			return
		}
	}
}
