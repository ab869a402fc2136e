// Package collyfetcher implements orchestrator.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/revloop/revloop/internal/orchestrator"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Delay is the minimum politeness delay between requests to the same
	// domain. Zero disables the limit rule.
	Delay time.Duration
}

// Fetcher performs single HTTP GETs through a Colly collector. A response
// with any status code counts as a completed fetch from the transport's
// point of view; the caller decides what to do with non-2xx codes.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	if cfg.Delay > 0 {
		_ = c.Limit(&colly.LimitRule{
			DomainGlob: "*",
			Delay:      cfg.Delay,
		})
	}
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes one HTTP GET.
func (f *Fetcher) Fetch(ctx context.Context, url string) (orchestrator.FetchResult, error) {
	collector := f.baseCollector.Clone()
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	var (
		result   orchestrator.FetchResult
		received bool
		cbErr    error
	)
	collector.OnResponse(func(r *colly.Response) {
		result = orchestrator.FetchResult{
			URL:        url,
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
		received = true
	})
	collector.OnError(func(r *colly.Response, err error) {
		// Colly reports non-2xx responses as errors; a captured status code
		// means the transport worked and the page answered.
		if r != nil && r.StatusCode != 0 {
			result = orchestrator.FetchResult{
				URL:        url,
				StatusCode: r.StatusCode,
				Body:       append([]byte(nil), r.Body...),
			}
			received = true
			return
		}
		cbErr = err
	})

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- collector.Visit(url) }()

	select {
	case <-ctx.Done():
		return orchestrator.FetchResult{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case visitErr := <-done:
		if received {
			result.Duration = time.Since(start)
			return result, nil
		}
		err := cbErr
		if err == nil {
			err = visitErr
		}
		if err == nil {
			err = fmt.Errorf("no response received")
		}
		return orchestrator.FetchResult{}, &orchestrator.FetchError{
			URL:        url,
			StatusCode: orchestrator.StatusTransportError,
			Cause:      err,
		}
	}
}
