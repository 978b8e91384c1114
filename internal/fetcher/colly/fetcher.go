// Package collyfetcher downloads submission archives using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/assignment-webapp/internal/metrics"
)

var (
	// ErrEmptyBody is returned when the locator answered with no content.
	ErrEmptyBody = errors.New("empty response body")
	// ErrBodyTooLarge is returned when the download reached MaxBodySize and was cut off.
	ErrBodyTooLarge = errors.New("response body exceeds size limit")
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	// MaxBodySize caps the number of bytes read per download. Zero keeps colly's default.
	MaxBodySize int
}

// RateLimiter gates downloads per site.
type RateLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher retrieves the raw bytes behind a submission URL. Calls share one
// transport; each gets its own collector and client.
type Fetcher struct {
	cfg       Config
	transport *http.Transport
	limiter   RateLimiter
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	return &Fetcher{cfg: cfg, transport: newHTTPTransport()}
}

// WithRateLimiter makes every Fetch wait on l first. A nil limiter disables gating.
func (f *Fetcher) WithRateLimiter(l RateLimiter) *Fetcher {
	f.limiter = l
	return f
}

// Fetch performs one GET of rawURL and returns the body. Each call is an
// independent request; the same URL may be fetched repeatedly.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return nil, err
		}
	}
	var (
		body     []byte
		fetchErr error
	)
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, &body, &fetchErr)

	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, ErrEmptyBody)
	}
	if f.cfg.MaxBodySize > 0 && len(body) >= f.cfg.MaxBodySize {
		return nil, fmt.Errorf("fetch %s: %d bytes: %w", rawURL, len(body), ErrBodyTooLarge)
	}
	metrics.ObserveArchiveFetch(rawURL, len(body))
	return body, nil
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	collector.WithTransport(f.transport)
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	if f.cfg.MaxBodySize > 0 {
		collector.MaxBodySize = f.cfg.MaxBodySize
	}
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, body *[]byte, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/zip, application/octet-stream, */*")
	})

	hooks.OnResponse(func(r *colly.Response) {
		*body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

// runCollector blocks until the visit finishes or ctx is done. The request
// itself is bounded by the caller's deadline; the collector is private to
// this call so the timeout cannot leak into concurrent fetches.
func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, rawURL string, fetchErr *error) error {
	if deadline, ok := ctx.Deadline(); ok {
		collector.SetRequestTimeout(time.Until(deadline))
	}
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
