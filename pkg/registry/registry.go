package registry

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/divertsy/beacon-scanner/pkg/frame"
)

// Status records the most recent error for each frame category.
type Status struct {
	NullServiceData  string `json:"null_service_data,omitempty"`
	InvalidFrameType string `json:"invalid_frame_type,omitempty"`
	UID              string `json:"uid,omitempty"`
	TLM              string `json:"tlm,omitempty"`
	URL              string `json:"url,omitempty"`
}

// Empty returns true if no error has been recorded.
func (s Status) Empty() bool {
	return s == Status{}
}

func (s *Status) record(err error) {
	msg := err.Error()
	switch frame.CategoryOf(err) {
	case frame.CategoryNullServiceData:
		s.NullServiceData = msg
	case frame.CategoryInvalidFrameType:
		s.InvalidFrameType = msg
	case frame.CategoryUID:
		s.UID = msg
	case frame.CategoryTLM:
		s.TLM = msg
	case frame.CategoryURL:
		s.URL = msg
	}
}

// Device is a tracked beacon. Values returned by a Registry are copies; frames are shared but
// never modified after decoding.
type Device struct {
	Address    string          `json:"address"`
	RSSI       int             `json:"rssi"`
	FirstSeen  time.Time       `json:"first_seen"`
	LastSeen   time.Time       `json:"last_seen"`
	Generation uint64          `json:"generation"`
	URL        *frame.URLFrame `json:"url,omitempty"`
	UID        *frame.UIDFrame `json:"uid,omitempty"`
	TLM        *frame.TLMFrame `json:"tlm,omitempty"`
	Status     Status          `json:"status"`
}

// Host returns the host of the most recently decoded URL frame, or "" if none has been seen.
func (d *Device) Host() string {
	if d.URL == nil {
		return ""
	}
	return d.URL.Host
}

type Registry struct {
	devices    map[string]*Device
	generation uint64
	lock       sync.Mutex
}

func New() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
	}
}

// Observe applies one advertisement from address to the registry and returns the updated device.
// Exactly one of f and err is expected to be non-nil; a nil frame with a nil error only refreshes
// the signal strength and last-seen time.
func (r *Registry) Observe(address string, rssi int, now time.Time, f frame.Frame, err error) Device {
	r.lock.Lock()
	defer r.lock.Unlock()

	d, ok := r.devices[address]
	if !ok {
		r.generation++
		d = &Device{
			Address:    address,
			FirstSeen:  now,
			LastSeen:   now,
			Generation: r.generation,
		}
		r.devices[address] = d
	}
	d.RSSI = rssi
	if now.After(d.LastSeen) {
		d.LastSeen = now
	}

	if err != nil {
		d.Status.record(err)
		return *d
	}
	switch v := f.(type) {
	case *frame.URLFrame:
		d.URL = v
	case *frame.UIDFrame:
		d.UID = v
	case *frame.TLMFrame:
		d.TLM = v
	}
	return *d
}

// Evict removes every device that has not been seen for longer than timeout. It returns the
// evicted addresses in sorted order and whether closest was among them.
func (r *Registry) Evict(now time.Time, timeout time.Duration, closest string) ([]string, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	var evicted []string
	closestEvicted := false
	for address, d := range r.devices {
		if now.Sub(d.LastSeen) > timeout {
			delete(r.devices, address)
			evicted = append(evicted, address)
			if address == closest {
				closestEvicted = true
			}
		}
	}
	sort.Strings(evicted)
	return evicted, closestEvicted
}

// Devices returns a snapshot of all tracked devices, sorted by address.
func (r *Registry) Devices() []Device {
	r.lock.Lock()
	defer r.lock.Unlock()

	devices := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, *d)
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Address < devices[j].Address
	})
	return devices
}

// Get returns the device tracked under address.
func (r *Registry) Get(address string) (Device, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	d, ok := r.devices[address]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

func (r *Registry) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.devices)
}

type snapshot struct {
	Devices []Device `json:"devices"`
}

// Export writes a JSON snapshot of the registry to w.
func (r *Registry) Export(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(snapshot{Devices: r.Devices()})
}

// ExportToFile writes a JSON snapshot of the registry to disk.
func (r *Registry) ExportToFile(filename string) error {
	file, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	return r.Export(file)
}
