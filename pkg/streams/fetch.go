package streams

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/divertsy/beacon-scanner/internal/log"
)

const (
	DefaultMaxRedirects = 5
	DefaultTimeout      = 15 * time.Second

	// MaxResponseLength caps the size of a downloaded document.
	MaxResponseLength = 1 << 20
)

var (
	ErrTooManyRedirects = errors.New("streams: too many redirects")
	ErrEmptyResponse    = errors.New("streams: empty response")
	ErrResponseTooLarge = errors.New("streams: response exceeds maximum length")
	ErrMissingLocation  = errors.New("streams: redirect without Location header")
)

type HTTPError struct {
	Code int
	URL  string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("streams: %s returned %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Temporary returns true if retrying the request later may succeed.
func (e *HTTPError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests
}

func buildUserAgent() string {
	agent := "beacon-scanner"
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return agent
	}
	if build.Main.Version != "(devel)" && build.Main.Version != "" {
		return agent + "/" + build.Main.Version
	}
	for _, info := range build.Settings {
		if info.Key == "vcs.revision" && len(info.Value) > 8 {
			return agent + "/" + info.Value[0:8]
		}
	}
	return agent
}

// Fetcher downloads documents over HTTP.
type Fetcher struct {
	MaxRedirects int
	UserAgent    string

	// Client performs each request. Its redirect policy is replaced so that redirects are
	// returned to the Fetcher.
	Client *http.Client

	readTimeout time.Duration
}

// NewFetcher returns a Fetcher. Zero arguments select DefaultMaxRedirects and DefaultTimeout.
func NewFetcher(maxRedirects int, connectTimeout, readTimeout time.Duration) *Fetcher {
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultTimeout
	}
	if readTimeout <= 0 {
		readTimeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
	}
	return &Fetcher{
		MaxRedirects: maxRedirects,
		UserAgent:    buildUserAgent(),
		Client:       &http.Client{Transport: transport},
		readTimeout:  readTimeout,
	}
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// Fetch downloads the document at rawURL and returns it as text.
//
// Redirects are followed up to MaxRedirects times. The Location header is percent-decoded and
// resolved relative to the URL that returned it.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	current, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("streams: invalid URL %q: %w", rawURL, err)
	}

	client := http.Client{}
	if f.Client != nil {
		client = *f.Client
	}
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	for redirects := 0; ; redirects++ {
		body, location, err := f.get(ctx, &client, current.String())
		if err != nil {
			return "", err
		}
		if location == "" {
			if len(body) == 0 {
				return "", ErrEmptyResponse
			}
			return string(body), nil
		}
		if redirects == f.MaxRedirects {
			return "", ErrTooManyRedirects
		}
		if decoded, err := url.QueryUnescape(location); err == nil {
			location = decoded
		}
		next, err := current.Parse(location)
		if err != nil {
			return "", fmt.Errorf("streams: invalid redirect from %s to %q: %w", current, location, err)
		}
		log.Debug("Following redirect from %s to %s", current, next)
		current = next
	}
}

// get performs a single request. It returns the body of a 200 response, or the Location
// header of a redirect.
func (f *Fetcher) get(ctx context.Context, client *http.Client, target string) ([]byte, string, error) {
	if f.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.readTimeout)
		defer cancel()
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("streams: error constructing request to %s: %w", target, err)
	}
	log.Debug("Requesting %s...", target)
	request.Header.Set("Accept", "application/json")
	if f.UserAgent != "" {
		request.Header.Set("User-Agent", f.UserAgent)
	}
	response, err := client.Do(request)
	if err != nil {
		return nil, "", fmt.Errorf("streams: error fetching %s: %w", target, err)
	}
	defer response.Body.Close()

	if isRedirect(response.StatusCode) {
		location := response.Header.Get("Location")
		if location == "" {
			return nil, "", ErrMissingLocation
		}
		return nil, location, nil
	}
	if response.StatusCode != http.StatusOK {
		return nil, "", &HTTPError{Code: response.StatusCode, URL: target}
	}

	reader := io.LimitedReader{R: response.Body, N: MaxResponseLength + 1}
	body, err := io.ReadAll(&reader)
	if err != nil {
		return nil, "", fmt.Errorf("streams: error reading %s: %w", target, err)
	}
	if len(body) > MaxResponseLength {
		return nil, "", ErrResponseTooLarge
	}
	log.Debug("Received %d bytes from %s", len(body), target)
	return body, "", nil
}
