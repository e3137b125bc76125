package streams

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sony/gobreaker/v2"

	"github.com/divertsy/beacon-scanner/internal/log"
)

const (
	breakerMaxFailures = 3
	breakerTimeout     = 5 * time.Minute

	// Upper bound on a single scheduled refresh.
	updateTimeout = 2 * time.Minute
)

// Updater refreshes a stored document from a URL.
type Updater struct {
	URL  string
	Name string

	fetcher *Fetcher
	store   *Store
	breaker *gobreaker.CircuitBreaker[string]
}

// NewUpdater returns an Updater that saves the document at url to store under name. After
// repeated failures, updates are rejected with gobreaker.ErrOpenState until the breaker allows
// a probe request.
func NewUpdater(url string, fetcher *Fetcher, store *Store, name string) *Updater {
	if name == "" {
		name = DefaultFile
	}
	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "streams:" + url,
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warning("Circuit breaker %s changed from %s to %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &Updater{
		URL:     url,
		Name:    name,
		fetcher: fetcher,
		store:   store,
		breaker: breaker,
	}
}

// Update downloads the document and saves it. The stored copy is left untouched on failure.
func (u *Updater) Update(ctx context.Context) error {
	text, err := u.breaker.Execute(func() (string, error) {
		return u.fetcher.Fetch(ctx, u.URL)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("streams: skipping update of %s: %w", u.URL, err)
		}
		return err
	}
	if err := u.store.Save(u.Name, text); err != nil {
		return err
	}
	log.Info("Saved %d bytes from %s to %s", len(text), u.URL, u.Name)
	return nil
}

// Load returns the stored copy of the document.
func (u *Updater) Load() (string, error) {
	return u.store.Load(u.Name)
}

func (u *Updater) State() gobreaker.State {
	return u.breaker.State()
}

// Schedule runs Update periodically until Stop is called.
type Schedule struct {
	cron   *cron.Cron
	cancel context.CancelFunc
}

// Schedule starts refreshing the document according to spec, which is either a standard
// five-field cron expression or a descriptor such as "@hourly" or "@every 30m".
func (u *Updater) Schedule(ctx context.Context, spec string) (*Schedule, error) {
	ctx, cancel := context.WithCancel(ctx)
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		updateCtx, done := context.WithTimeout(ctx, updateTimeout)
		defer done()
		if err := u.Update(updateCtx); err != nil && ctx.Err() == nil {
			log.Warning("Failed to update %s: %s", u.Name, err)
		}
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("streams: invalid schedule %q: %w", spec, err)
	}
	c.Start()
	log.Debug("Refreshing %s on schedule %q", u.Name, spec)
	return &Schedule{cron: c, cancel: cancel}, nil
}

// Stop cancels a running update and waits for it to return.
func (s *Schedule) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
