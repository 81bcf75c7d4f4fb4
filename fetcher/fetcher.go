// Package fetcher defines and implements the downloading utilities for
// remote resources, shared by the crawler's retriever workers and by the
// robots.txt cache.
package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/PuerkitoBio/rehttp"
	"github.com/aybabtme/iocontrol"
)

// Fetcher is an interface exposing a single method to retrieve a remote
// resource over HTTP. Parsing of the result (link extraction, nofollow
// detection) is deliberately not its concern: that belongs to the extractor,
// which needs to run the same raw bytes through both goquery and the
// classifier.
type Fetcher interface {
	// Fetch makes an HTTP GET request to url, returning the elapsed time,
	// the response status code, the response body and any error occurred.
	// The body is always fully drained and the underlying response closed
	// before returning.
	Fetch(ctx context.Context, url string) (time.Duration, int, []byte, error)
}

// stdHTTPFetcher is a Fetcher backed by the standard library's http.Client,
// wrapped in a retrying transport for transient errors.
type stdHTTPFetcher struct {
	userAgent string
	client    *http.Client
	logger    *log.Logger
}

// New creates a new Fetcher with the given User-Agent and timeout. It
// retries temporary transport errors up to 3 times with an exponential
// jittered backoff, the same policy the teacher's crawler used for its own
// link-following fetches. logger may be nil, in which case throughput is not
// logged.
func New(userAgent string, timeout time.Duration, logger *log.Logger) Fetcher {
	transport := rehttp.NewTransport(
		&http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: false},
		},
		rehttp.RetryAll(rehttp.RetryMaxRetries(3), rehttp.RetryTemporaryErr()),
		rehttp.ExpJitterDelay(1*time.Millisecond, 10*time.Second),
	)
	client := &http.Client{Timeout: timeout, Transport: transport}
	return &stdHTTPFetcher{userAgent: userAgent, client: client, logger: logger}
}

func (f *stdHTTPFetcher) Fetch(ctx context.Context, url string) (time.Duration, int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("fetching %s failed: %w", url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	start := time.Now()
	res, err := f.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return elapsed, 0, nil, fmt.Errorf("fetching %s failed: %w", url, err)
	}
	defer res.Body.Close()

	// MeasuredReader is only used to log effective throughput, never to
	// gate or alter behaviour.
	measured := iocontrol.NewMeasuredReader(res.Body)
	body, err := io.ReadAll(measured)
	if err != nil {
		return elapsed, res.StatusCode, nil, fmt.Errorf("reading body of %s failed: %w", url, err)
	}
	if f.logger != nil {
		f.logger.Printf("fetched %s: %d bytes in %s (%d B/s)", url, len(body), elapsed, measured.BytesPerSec())
	}

	return elapsed, res.StatusCode, body, nil
}
