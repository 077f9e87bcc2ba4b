package main

import (
	"fmt"

	"github.com/TeamNorCal/wxmatrix"
	"github.com/TeamNorCal/wxmatrix/model"
)

// This file implements a monitor that subscribes to and logs the
// display state broadcasts

func runMonitoring(fanout *wxmatrix.Fanout, quitC <-chan struct{}) {

	statesC := make(chan model.StatePayload, 1)
	fanout.Subscribe(statesC)

	for {
		select {
		case state := <-statesC:
			logger.Debug(fmt.Sprintf("%+v", state))
		case <-quitC:
			return
		}
	}
}
