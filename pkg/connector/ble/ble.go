// Package ble implements [connector.Scanner] on top of github.com/go-ble/ble.
package ble

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"

	"github.com/divertsy/beacon-scanner/internal/log"
	"github.com/divertsy/beacon-scanner/pkg/connector"
)

var ErrAdapterInvalidID = errors.New("the bluetooth adapter ID is invalid")

// Bluetooth base UUID (0000xxxx-0000-1000-8000-00805F9B34FB) as stored by go-ble, which keeps
// UUIDs in little-endian byte order. Bytes 12 and 13 hold the 16-bit alias.
var baseUUIDPrefix = []byte{0xfb, 0x34, 0x9b, 0x5f, 0x80, 0x00, 0x00, 0x80, 0x00, 0x10, 0x00, 0x00}

// rawAdvertisement is implemented by advertising reports that expose the undecoded AD
// structures (the Linux HCI backend does; CoreBluetooth does not).
type rawAdvertisement interface {
	Data() []byte
	ScanResponse() []byte
}

type scanner struct {
	device ble.Device
	lock   sync.Mutex
}

// NewScanner opens the Bluetooth adapter identified by id. An empty id selects the first
// available adapter.
func NewScanner(id string) (connector.Scanner, error) {
	device, err := newDevice(id)
	if err != nil {
		return nil, fmt.Errorf("ble: failed to create device: %w", err)
	}
	return &scanner{device: device}, nil
}

func (s *scanner) Scan(ctx context.Context, handler func(connector.Advertisement)) error {
	s.lock.Lock()
	device := s.device
	s.lock.Unlock()
	if device == nil {
		return errors.New("ble: scanner closed")
	}

	log.Debug("Starting BLE scan")
	// Duplicates are required: every report refreshes the RSSI and last-seen time of a beacon.
	err := device.Scan(ctx, true, func(a ble.Advertisement) {
		handler(convertAdvertisement(a, time.Now()))
	})
	if ctx.Err() != nil {
		// device.Scan always returns an error once its context is canceled.
		return nil
	}
	return err
}

func (s *scanner) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.device == nil {
		return nil
	}
	device := s.device
	s.device = nil
	if err := device.Stop(); err != nil {
		return fmt.Errorf("ble: failed to stop device: %w", err)
	}
	log.Debug("Closed BLE adapter")
	return nil
}

func convertAdvertisement(a ble.Advertisement, received time.Time) connector.Advertisement {
	adv := connector.Advertisement{
		Address:   a.Addr().String(),
		RSSI:      a.RSSI(),
		LocalName: a.LocalName(),
		Received:  received,
	}
	for _, u := range a.Services() {
		if id, ok := uuid16(u); ok {
			adv.ServiceUUIDs = append(adv.ServiceUUIDs, id)
		}
	}
	for _, sd := range a.ServiceData() {
		if id, ok := uuid16(sd.UUID); ok {
			adv.ServiceData = append(adv.ServiceData, connector.ServiceData{UUID: id, Data: sd.Data})
		}
	}
	if raw, ok := a.(rawAdvertisement); ok {
		record := append([]byte{}, raw.Data()...)
		adv.Record = append(record, raw.ScanResponse()...)
	}
	return adv
}

// uuid16 returns the 16-bit alias of u, accepting both short UUIDs and full UUIDs built on the
// Bluetooth base UUID.
func uuid16(u ble.UUID) (uint16, bool) {
	switch len(u) {
	case 2:
		return binary.LittleEndian.Uint16(u), true
	case 16:
		if bytes.Equal(u[:12], baseUUIDPrefix) && u[14] == 0 && u[15] == 0 {
			return binary.LittleEndian.Uint16(u[12:14]), true
		}
	}
	return 0, false
}
