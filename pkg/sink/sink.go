// Package sink provides destinations for scale readings and closest-location changes.
package sink

import (
	"github.com/divertsy/beacon-scanner/pkg/frame"
	"github.com/divertsy/beacon-scanner/pkg/registry"
	"github.com/divertsy/beacon-scanner/pkg/tracker"
)

// Multi forwards each reading to every sink in order.
type Multi []tracker.WeightSink

func (m Multi) PublishWeight(reading frame.WeightReading) {
	for _, s := range m {
		s.PublishWeight(reading)
	}
}

// Observers forwards each change to every observer in order.
type Observers []tracker.ClosestObserver

func (o Observers) OnClosestChanged(closest *registry.Device) {
	for _, obs := range o {
		obs.OnClosestChanged(closest)
	}
}
