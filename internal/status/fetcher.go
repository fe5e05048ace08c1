package status

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultRequestTimeout = 10 * time.Second
	statusPath            = "/status"
	maxBodyBytes          = 1 << 20
)

// ErrorKind classifies a failed fetch.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindUnreachable ErrorKind = "unreachable"
	KindMalformed   ErrorKind = "malformed"
)

var ErrNotStatusPage = errors.New("response is not a status page")

// FetchError is returned by Fetcher.Fetch.
type FetchError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithRoundTripper wraps the pooled transport, e.g. with metrics instrumentation.
func WithRoundTripper(wrap func(http.RoundTripper) http.RoundTripper) Option {
	return func(f *Fetcher) {
		if wrap != nil {
			f.wrap = wrap
		}
	}
}

// Fetcher polls the device status page through one pooled client.
type Fetcher struct {
	url       string
	timeout   time.Duration
	logger    *slog.Logger
	transport *http.Transport
	wrap      func(http.RoundTripper) http.RoundTripper
	client    *http.Client
}

func NewFetcher(baseURL string, opts ...Option) *Fetcher {
	f := &Fetcher{
		url:     strings.TrimRight(strings.TrimSpace(baseURL), "/") + statusPath,
		timeout: DefaultRequestTimeout,
		logger:  slog.With("component", "status"),
		transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: DefaultRequestTimeout, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:        2,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(f)
	}

	var rt http.RoundTripper = f.transport
	if f.wrap != nil {
		rt = f.wrap(rt)
	}
	f.client = &http.Client{Transport: rt, Timeout: f.timeout}

	return f
}

func (f *Fetcher) URL() string {
	return f.url
}

// Fetch downloads and parses the status page.
func (f *Fetcher) Fetch(ctx context.Context) (Fields, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return Fields{}, &FetchError{Kind: KindUnreachable, URL: f.url, Err: err}
	}

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		fetchErr := &FetchError{Kind: classify(err), URL: f.url, Err: err}
		f.logger.Debug("status fetch failed", "kind", fetchErr.Kind, "error", err)

		return Fields{}, fetchErr
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

		return Fields{}, &FetchError{Kind: KindUnreachable, URL: f.url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		kind := KindMalformed
		if classify(err) == KindTimeout {
			kind = KindTimeout
		}

		return Fields{}, &FetchError{Kind: kind, URL: f.url, Err: fmt.Errorf("read body: %w", err)}
	}

	text := string(body)
	if !Detect(text) {
		return Fields{}, &FetchError{Kind: KindMalformed, URL: f.url, Err: ErrNotStatusPage}
	}

	fields := ParseFields(text)
	f.logger.Debug("status fetched", "name", fields.Name, "users", fields.Users, "elapsed", time.Since(started).String())

	return fields, nil
}

// Close releases idle pooled connections.
func (f *Fetcher) Close() {
	f.transport.CloseIdleConnections()
}

func classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	return KindUnreachable
}
