package streams

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/gomega"
	"github.com/sony/gobreaker/v2"
)

const (
	streamsURL = "https://example.com/streams.json"
	document   = `{"streams": ["recycle", "compost", "landfill"]}`
)

func newMockFetcher(t *testing.T) (*Fetcher, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	f := NewFetcher(0, 0, 0)
	f.Client.Transport = transport
	return f, transport
}

func redirectTo(code int, location string) httpmock.Responder {
	return func(*http.Request) (*http.Response, error) {
		response := httpmock.NewStringResponse(code, "")
		response.Header.Set("Location", location)
		return response, nil
	}
}

func TestFetch(t *testing.T) {
	f, transport := newMockFetcher(t)
	transport.RegisterResponder(http.MethodGet, streamsURL, httpmock.NewStringResponder(http.StatusOK, document))

	text, err := f.Fetch(context.Background(), streamsURL)
	if err != nil {
		t.Fatal(err)
	}
	if text != document {
		t.Errorf("unexpected document %q", text)
	}
}

func TestFetchFollowsRedirects(t *testing.T) {
	f, transport := newMockFetcher(t)
	transport.RegisterResponder(http.MethodGet, streamsURL, redirectTo(http.StatusMovedPermanently, "https://cdn.example.com/v1/streams.json"))
	// Relative and percent-encoded.
	transport.RegisterResponder(http.MethodGet, "https://cdn.example.com/v1/streams.json", redirectTo(http.StatusFound, "..%2Fv2%2Fstreams.json"))
	transport.RegisterResponder(http.MethodGet, "https://cdn.example.com/v2/streams.json", httpmock.NewStringResponder(http.StatusOK, document))

	text, err := f.Fetch(context.Background(), streamsURL)
	if err != nil {
		t.Fatal(err)
	}
	if text != document {
		t.Errorf("unexpected document %q", text)
	}
	if n := transport.GetTotalCallCount(); n != 3 {
		t.Errorf("expected 3 requests, got %d", n)
	}
}

func TestFetchTooManyRedirects(t *testing.T) {
	f, transport := newMockFetcher(t)
	transport.RegisterResponder(http.MethodGet, streamsURL, redirectTo(http.StatusTemporaryRedirect, streamsURL))

	if _, err := f.Fetch(context.Background(), streamsURL); !errors.Is(err, ErrTooManyRedirects) {
		t.Fatalf("expected ErrTooManyRedirects, got %v", err)
	}
	if n := transport.GetTotalCallCount(); n != DefaultMaxRedirects+1 {
		t.Errorf("expected %d requests, got %d", DefaultMaxRedirects+1, n)
	}
}

func TestFetchErrors(t *testing.T) {
	f, transport := newMockFetcher(t)
	transport.RegisterResponder(http.MethodGet, "https://example.com/missing", httpmock.NewStringResponder(http.StatusNotFound, "not found"))
	transport.RegisterResponder(http.MethodGet, "https://example.com/empty", httpmock.NewStringResponder(http.StatusOK, ""))
	transport.RegisterResponder(http.MethodGet, "https://example.com/nowhere", httpmock.NewStringResponder(http.StatusFound, ""))

	_, err := f.Fetch(context.Background(), "https://example.com/missing")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusNotFound || httpErr.Temporary() {
		t.Errorf("expected permanent 404 error, got %v", err)
	}
	if _, err := f.Fetch(context.Background(), "https://example.com/empty"); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
	if _, err := f.Fetch(context.Background(), "https://example.com/nowhere"); !errors.Is(err, ErrMissingLocation) {
		t.Errorf("expected ErrMissingLocation, got %v", err)
	}
}

func TestFetchResponseTooLarge(t *testing.T) {
	f, transport := newMockFetcher(t)
	transport.RegisterResponder(http.MethodGet, streamsURL, httpmock.NewBytesResponder(http.StatusOK, make([]byte, MaxResponseLength+1)))
	if _, err := f.Fetch(context.Background(), streamsURL); !errors.Is(err, ErrResponseTooLarge) {
		t.Errorf("expected ErrResponseTooLarge, got %v", err)
	}
}

func TestStore(t *testing.T) {
	s := &Store{Dir: filepath.Join(t.TempDir(), "data")}

	if _, err := s.Load(DefaultFile); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
	if err := s.Save(DefaultFile, "first"); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(DefaultFile, document); err != nil {
		t.Fatal(err)
	}
	text, err := s.Load(DefaultFile)
	if err != nil {
		t.Fatal(err)
	}
	if text != document {
		t.Errorf("unexpected contents %q", text)
	}

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}

	for _, name := range []string{"", "..", "../escape.json", "a/b.json"} {
		if err := s.Save(name, "x"); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Save(%q): expected ErrInvalidName, got %v", name, err)
		}
	}
}

func TestUpdaterSavesDocument(t *testing.T) {
	f, transport := newMockFetcher(t)
	transport.RegisterResponder(http.MethodGet, streamsURL, httpmock.NewStringResponder(http.StatusOK, document))
	store := &Store{Dir: t.TempDir()}
	u := NewUpdater(streamsURL, f, store, "")

	if err := u.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	text, err := u.Load()
	if err != nil {
		t.Fatal(err)
	}
	if text != document {
		t.Errorf("unexpected contents %q", text)
	}
}

func TestUpdaterBreakerOpens(t *testing.T) {
	f, transport := newMockFetcher(t)
	transport.RegisterResponder(http.MethodGet, streamsURL, httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))
	store := &Store{Dir: t.TempDir()}
	if err := store.Save(DefaultFile, document); err != nil {
		t.Fatal(err)
	}
	u := NewUpdater(streamsURL, f, store, DefaultFile)

	for i := 0; i < breakerMaxFailures; i++ {
		var httpErr *HTTPError
		if err := u.Update(context.Background()); !errors.As(err, &httpErr) || !httpErr.Temporary() {
			t.Fatalf("attempt %d: expected temporary HTTP error, got %v", i, err)
		}
	}
	if u.State() != gobreaker.StateOpen {
		t.Fatalf("breaker is %s", u.State())
	}
	if err := u.Update(context.Background()); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
	if n := transport.GetTotalCallCount(); n != breakerMaxFailures {
		t.Errorf("expected %d requests, got %d", breakerMaxFailures, n)
	}
	if text, _ := store.Load(DefaultFile); text != document {
		t.Error("failed update modified the stored copy")
	}
}

func TestSchedule(t *testing.T) {
	g := NewWithT(t)
	f, transport := newMockFetcher(t)
	transport.RegisterResponder(http.MethodGet, streamsURL, httpmock.NewStringResponder(http.StatusOK, document))
	store := &Store{Dir: t.TempDir()}
	u := NewUpdater(streamsURL, f, store, "")

	_, err := u.Schedule(context.Background(), "not a schedule")
	g.Expect(err).To(HaveOccurred())

	schedule, err := u.Schedule(context.Background(), "@every 1s")
	g.Expect(err).NotTo(HaveOccurred())
	defer schedule.Stop()

	g.Eventually(func() (string, error) {
		return store.Load(DefaultFile)
	}, 3*time.Second, 50*time.Millisecond).Should(Equal(document))
}
