package sink

import (
	"github.com/divertsy/beacon-scanner/internal/log"
	"github.com/divertsy/beacon-scanner/pkg/frame"
	"github.com/divertsy/beacon-scanner/pkg/registry"
)

// Log writes readings and changes to the process log at LevelInfo.
type Log struct{}

func (Log) PublishWeight(reading frame.WeightReading) {
	log.Info("Weight from %s: %s", reading.Device, reading)
}

func (Log) OnClosestChanged(closest *registry.Device) {
	if closest == nil {
		log.Info("Closest location: none")
		return
	}
	log.Info("Closest location: %s", closest.URL.URL)
}
