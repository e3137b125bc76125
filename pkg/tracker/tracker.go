// Package tracker turns a stream of advertisements into registry updates, closest-location
// notifications and weight readings.
//
// A [Tracker] is either scanning or stopped. While scanning, a single consumer goroutine reads
// submitted advertisements in arrival order and sweeps out stale devices once per timeout
// interval. [Tracker.Process] and [Tracker.Sweep] may also be called directly, e.g. from tests
// or tools that replay captured frames; every registry mutation and selection comparison is
// serialised by one mutex regardless of the caller.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/divertsy/beacon-scanner/internal/log"
	"github.com/divertsy/beacon-scanner/pkg/connector"
	"github.com/divertsy/beacon-scanner/pkg/frame"
	"github.com/divertsy/beacon-scanner/pkg/registry"
	"github.com/divertsy/beacon-scanner/pkg/selector"
)

//go:generate mockgen -source tracker.go -destination ../../mocks/tracker.go -package mocks -mock_names WeightSink=TrackerWeightSink,ClosestObserver=TrackerClosestObserver

const (
	DefaultTimeout = 5 * time.Second

	// Malformed frames from one device are logged at most once per this interval.
	malformedLogInterval = 30 * time.Second
)

var (
	ErrNoHostFilter   = errors.New("tracker: host filter is required")
	ErrInvalidTimeout = errors.New("tracker: timeout must be positive")
)

// WeightSink receives decoded scale readings. Publishing is fire-and-forget.
type WeightSink interface {
	PublishWeight(reading frame.WeightReading)
}

// ClosestObserver is notified whenever the closest location changes. A nil device means no
// qualifying beacon is in range.
//
// Notifications are delivered while the Tracker holds its lock, so observers must not call back
// into the Tracker.
type ClosestObserver interface {
	OnClosestChanged(closest *registry.Device)
}

type Config struct {
	// HostFilter is compared case-insensitively against the host of each beacon's URL. Only
	// matching beacons are considered for the closest location.
	HostFilter string

	// Devices that have not been seen for longer than Timeout are evicted. Defaults to
	// DefaultTimeout.
	Timeout time.Duration

	// QueueSize bounds the number of submitted advertisements waiting to be processed.
	// Defaults to connector.BufferSize.
	QueueSize int

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

type Tracker struct {
	config   Config
	registry *registry.Registry
	weights  WeightSink
	observer ClosestObserver
	throttle *log.Throttle
	events   chan connector.Advertisement

	// submitLock is held for reading by Submit while it sends, and for writing by Stop while it
	// drains the queue.
	submitLock sync.RWMutex

	lock      sync.Mutex
	selection selector.Selection
	closest   *registry.Device
	running   bool
	cancel    context.CancelFunc
	stopped   <-chan struct{}
	done      chan struct{}
}

// New creates a stopped Tracker. Either sink may be nil.
func New(config Config, weights WeightSink, observer ClosestObserver) (*Tracker, error) {
	if config.HostFilter == "" {
		return nil, ErrNoHostFilter
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Timeout < 0 {
		return nil, ErrInvalidTimeout
	}
	if config.QueueSize <= 0 {
		config.QueueSize = connector.BufferSize
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &Tracker{
		config:   config,
		registry: registry.New(),
		weights:  weights,
		observer: observer,
		throttle: log.NewThrottle(malformedLogInterval),
		events:   make(chan connector.Advertisement, config.QueueSize),
	}, nil
}

// Start enters the scanning state. It spawns the consumer goroutine, which runs until Stop is
// called or ctx is canceled. Calling Start on a running Tracker has no effect.
func (t *Tracker) Start(ctx context.Context) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.running {
		return
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.stopped = ctx.Done()
	t.done = make(chan struct{})
	t.running = true
	log.Debug("Tracker started (host filter %q, timeout %s)", t.config.HostFilter, t.config.Timeout)
	go t.run(ctx, t.done)
}

// Stop enters the stopped state and waits for the consumer goroutine to exit. No notifications
// are delivered by the goroutine once Stop returns. Advertisements still queued are dropped.
func (t *Tracker) Stop() {
	t.lock.Lock()
	if !t.running {
		t.lock.Unlock()
		return
	}
	t.running = false
	t.cancel()
	done := t.done
	t.lock.Unlock()

	<-done
	t.submitLock.Lock()
	for len(t.events) > 0 {
		<-t.events
	}
	t.submitLock.Unlock()
	log.Debug("Tracker stopped")
}

// Submit queues adv for processing. It blocks while the queue is full and returns false if the
// Tracker is not scanning.
func (t *Tracker) Submit(adv connector.Advertisement) bool {
	t.lock.Lock()
	running, stopped := t.running, t.stopped
	t.lock.Unlock()
	if !running {
		return false
	}
	t.submitLock.RLock()
	defer t.submitLock.RUnlock()
	select {
	case <-stopped:
		return false
	default:
	}
	select {
	case t.events <- adv:
		return true
	case <-stopped:
		return false
	}
}

func (t *Tracker) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.config.Timeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case adv := <-t.events:
			now := adv.Received
			if now.IsZero() {
				now = t.config.Clock()
			}
			t.lock.Lock()
			if ctx.Err() == nil {
				t.process(adv, now)
			}
			t.lock.Unlock()
		case <-ticker.C:
			t.lock.Lock()
			if ctx.Err() == nil {
				t.sweep(t.config.Clock())
			}
			t.lock.Unlock()
		}
	}
}

// Process handles a single advertisement received at now.
//
// A scale record is tried first. If adv is not a weight frame, its Eddystone service data is
// decoded and applied to the registry, after which the closest location is re-evaluated.
// Malformed frames are recorded on the device and logged; they never stop processing.
func (t *Tracker) Process(adv connector.Advertisement, now time.Time) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.process(adv, now)
}

func (t *Tracker) process(adv connector.Advertisement, now time.Time) {
	if len(adv.Record) > 0 {
		reading, err := frame.DecodeWeightFrame(adv.Record, adv.LocalName)
		if err == nil {
			log.Debug("Weight reading from %s: %s", adv.Address, reading)
			if t.weights != nil {
				t.weights.PublishWeight(reading)
			}
			return
		}
		if !errors.Is(err, frame.ErrNoMatch) {
			t.throttle.Warning(adv.Address, "Dropping weight reading from %s: %s", adv.Address, err)
			return
		}
	}

	// Every advertisement that reaches this point is registered, so scale-like devices that are
	// not sending weights show up with null service data.
	if !connector.DefaultFilter.Match(&adv) {
		return
	}
	data, _ := adv.ServiceDataFor(connector.EddystoneServiceUUID)
	f, err := frame.DecodeFrame(data)
	if err != nil {
		t.throttle.Warning(adv.Address, "Malformed frame from %s: %s", adv.Address, err)
	}
	t.registry.Observe(adv.Address, adv.RSSI, now, f, err)
	t.reselect()
}

// Sweep evicts devices that have not been seen within the timeout and re-evaluates the closest
// location.
func (t *Tracker) Sweep(now time.Time) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.sweep(now)
}

func (t *Tracker) sweep(now time.Time) {
	evicted, closestEvicted := t.registry.Evict(now, t.config.Timeout, t.selection.Address)
	if len(evicted) == 0 {
		return
	}
	for _, address := range evicted {
		t.throttle.Forget(address)
	}
	if closestEvicted {
		log.Info("Closest beacon %s went out of range", t.selection.Address)
	}
	log.Debug("Evicted %d device(s): %v", len(evicted), evicted)
	t.reselect()
}

func (t *Tracker) reselect() {
	closest, selection, changed := selector.Select(t.registry.Devices(), t.config.HostFilter, t.selection)
	t.closest = closest
	if !changed {
		return
	}
	t.selection = selection
	if closest == nil {
		log.Info("No location beacon in range")
	} else {
		log.Info("Closest location is %s (%s, %d dBm)", closest.URL.URL, closest.Address, closest.RSSI)
	}
	if t.observer != nil {
		var notify *registry.Device
		if closest != nil {
			d := *closest
			notify = &d
		}
		t.observer.OnClosestChanged(notify)
	}
}

// Closest returns a copy of the currently selected device, or nil if there is none.
func (t *Tracker) Closest() *registry.Device {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.closest == nil {
		return nil
	}
	d := *t.closest
	return &d
}

// ClosestLocation returns the URL advertised by the closest beacon.
func (t *Tracker) ClosestLocation() (string, bool) {
	closest := t.Closest()
	if closest == nil {
		return "", false
	}
	return closest.URL.URL, true
}

// Devices returns a snapshot of every tracked device.
func (t *Tracker) Devices() []registry.Device {
	return t.registry.Devices()
}

// Export writes a JSON snapshot of the tracked devices to w.
func (t *Tracker) Export(w io.Writer) error {
	if err := t.registry.Export(w); err != nil {
		return fmt.Errorf("tracker: failed to export devices: %w", err)
	}
	return nil
}

// ExportToFile writes a JSON snapshot of the tracked devices to filename.
func (t *Tracker) ExportToFile(filename string) error {
	if err := t.registry.ExportToFile(filename); err != nil {
		return fmt.Errorf("tracker: failed to export devices: %w", err)
	}
	return nil
}
