package connector

import (
	"context"
	"errors"
	"time"
)

// 16-bit service UUIDs the scanner listens for.
const (
	// EddystoneServiceUUID carries UID, TLM and URL frames as service data.
	EddystoneServiceUUID uint16 = 0xfeaa

	// ScaleServiceUUID is advertised by WIT Traveller scales. It is the generic "Immediate Alert"
	// service, so it also matches devices that are not scales; the weight decoder's sentinel
	// check rejects those.
	ScaleServiceUUID uint16 = 0x1802
)

// BufferSize is the default number of advertisements that can be queued for a consumer.
const BufferSize = 64

// DefaultFilter admits Eddystone beacons and scales.
var DefaultFilter = Filter{EddystoneServiceUUID, ScaleServiceUUID}

var ErrScanStopped = errors.New("scan stopped")

// ServiceData is a service data AD structure keyed by its 16-bit service UUID.
type ServiceData struct {
	UUID uint16
	Data []byte
}

// Advertisement is a single advertising report, normalised across BLE backends.
type Advertisement struct {
	Address      string
	RSSI         int
	LocalName    string
	ServiceUUIDs []uint16
	ServiceData  []ServiceData

	// Record is the raw advertising data followed by the scan response, when the backend exposes
	// it. Scale readings are only available when Record is populated.
	Record   []byte
	Received time.Time
}

// ServiceDataFor returns the service data advertised under uuid. The boolean result is false if
// the advertisement carries no such entry, which callers treat differently from empty data.
func (a *Advertisement) ServiceDataFor(uuid uint16) ([]byte, bool) {
	for _, sd := range a.ServiceData {
		if sd.UUID == uuid {
			return sd.Data, true
		}
	}
	return nil, false
}

// Advertises returns true if uuid appears in the service UUID list of a.
func (a *Advertisement) Advertises(uuid uint16) bool {
	for _, s := range a.ServiceUUIDs {
		if s == uuid {
			return true
		}
	}
	return false
}

// Filter is an allow-list of 16-bit service UUIDs. An empty Filter matches everything.
type Filter []uint16

// Match returns true if a advertises a service in f, either in its service UUID list or as
// service data.
func (f Filter) Match(a *Advertisement) bool {
	if len(f) == 0 {
		return true
	}
	for _, uuid := range f {
		if a.Advertises(uuid) {
			return true
		}
		if _, ok := a.ServiceDataFor(uuid); ok {
			return true
		}
	}
	return false
}

// Scanner delivers advertisements from a radio.
type Scanner interface {
	// Scan invokes handler for every advertising report until ctx is canceled. Handler is called
	// from a single goroutine, in the order reports arrive. Scan returns nil when ctx is canceled.
	Scan(ctx context.Context, handler func(Advertisement)) error

	// Close releases the adapter. Repeated calls must be idempotent.
	Close() error
}

// Pump runs scanner until ctx is canceled, passing advertisements that match filter to submit.
// If submit reports that the consumer has stopped, Pump cancels the scan and returns
// ErrScanStopped.
func Pump(ctx context.Context, scanner Scanner, filter Filter, submit func(Advertisement) bool) error {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopped := false
	err := scanner.Scan(scanCtx, func(a Advertisement) {
		if stopped || !filter.Match(&a) {
			return
		}
		if a.Received.IsZero() {
			a.Received = time.Now()
		}
		if !submit(a) {
			stopped = true
			cancel()
		}
	})
	if stopped {
		return ErrScanStopped
	}
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
