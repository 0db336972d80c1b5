// Package fetch implements the crawler's single-URL HTTP GET: a
// redirect-capped, timeout-bounded, content-type-gated request. It
// does not implement politeness (per-host delay) — that is the crawl
// engine's responsibility (internal/crawl), per spec.md §5.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNonHTML is returned when the response content-type does not
// include text/html.
var ErrNonHTML = errors.New("fetch: response is not text/html")

// MaxRedirects bounds the redirect chain a single fetch will follow.
const MaxRedirects = 10

// MaxBodyBytes caps how much of a response body is read, guarding
// against unbounded documentation pages.
const MaxBodyBytes = 10 << 20 // 10 MiB

// Options configures header construction for a Fetcher.
type Options struct {
	UserAgent       string
	AcceptLanguage  string
	Timeout         time.Duration
	FollowRedirects bool
}

// Result is the outcome of a successful fetch.
type Result struct {
	FinalURL    string
	StatusCode  int
	ContentType string
	Header      http.Header
	Body        []byte
}

// Fetcher performs single GET requests per Options.
type Fetcher struct {
	opts   Options
	client *http.Client
}

// New constructs a Fetcher. Redirects beyond MaxRedirects fail the
// request; when FollowRedirects is false the client follows none.
func New(opts Options) *Fetcher {
	client := &http.Client{
		Timeout: opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if !opts.FollowRedirects {
				return http.ErrUseLastResponse
			}
			if len(via) >= MaxRedirects {
				return fmt.Errorf("fetch: stopped after %d redirects", MaxRedirects)
			}
			return nil
		},
	}
	return &Fetcher{opts: opts, client: client}
}

// Get performs a single GET against rawURL. Bodies whose content-type
// does not include text/html are rejected with ErrNonHTML without
// reading further than necessary to classify the response.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*Result, error) {
	reqCtx := ctx
	var cancel context.CancelFunc
	if f.opts.Timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}

	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if f.opts.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", f.opts.AcceptLanguage)
	}
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return nil, ErrNonHTML
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}

	return &Result{
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Header:      resp.Header,
		Body:        body,
	}, nil
}
