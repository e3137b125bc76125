// Package tinygo implements [connector.Scanner] on top of tinygo.org/x/bluetooth. It is an
// alternative to the go-ble backend for hosts where BlueZ must keep ownership of the adapter.
package tinygo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/divertsy/beacon-scanner/internal/log"
	"github.com/divertsy/beacon-scanner/pkg/connector"
)

var ErrAdapterInvalidID = errors.New("the bluetooth adapter ID is invalid")

// knownServices are probed individually because the payload interface only answers membership
// queries for service UUIDs.
var knownServices = []uint16{connector.EddystoneServiceUUID, connector.ScaleServiceUUID}

type scanner struct {
	adapter *bluetooth.Adapter
	lock    sync.Mutex
}

func NewScanner(id string) (connector.Scanner, error) {
	adapter, err := newAdapter(id)
	if err != nil {
		return nil, err
	}
	if err := adapter.Enable(); err != nil {
		return nil, err
	}
	return &scanner{adapter: adapter}, nil
}

func (s *scanner) Scan(ctx context.Context, handler func(connector.Advertisement)) error {
	s.lock.Lock()
	adapter := s.adapter
	s.lock.Unlock()
	if adapter == nil {
		return errors.New("ble: scanner closed")
	}
	if ctx.Err() != nil {
		return nil
	}

	var stopOnce sync.Once
	stopScan := func() {
		stopOnce.Do(func() {
			if err := adapter.StopScan(); err != nil && !strings.Contains(err.Error(), "no scan in progress") {
				log.Warning("ble: failed to stop scan: %s", err)
			}
		})
	}

	scanFinished := make(chan struct{})
	defer close(scanFinished)
	go func() {
		select {
		case <-ctx.Done():
			stopScan()
		case <-scanFinished:
		}
	}()

	log.Debug("Starting BLE scan")
	err := adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		if ctx.Err() != nil {
			stopScan()
			return
		}
		handler(convertResult(result, time.Now()))
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *scanner) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.adapter = nil
	return nil
}

func convertResult(result bluetooth.ScanResult, received time.Time) connector.Advertisement {
	adv := connector.Advertisement{
		Address:   result.Address.String(),
		RSSI:      int(result.RSSI),
		LocalName: result.LocalName(),
		Record:    result.Bytes(),
		Received:  received,
	}
	for _, uuid := range knownServices {
		if result.HasServiceUUID(bluetooth.New16BitUUID(uuid)) {
			adv.ServiceUUIDs = append(adv.ServiceUUIDs, uuid)
		}
	}
	for _, sd := range result.ServiceData() {
		if sd.UUID.Is16Bit() {
			adv.ServiceData = append(adv.ServiceData, connector.ServiceData{UUID: sd.UUID.Get16Bit(), Data: sd.Data})
		}
	}
	return adv
}
