// Package robotscache fetches, parses, and caches robots.txt per origin.
// It is shared by every job in the process: the cache is keyed by
// scheme+host+port and lives for the lifetime of the process.
package robotscache

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// entry is either a parsed robots.txt or the "absent" sentinel
// (robots == nil means no file / unparsable file, which is treated as
// allow-everything).
type entry struct {
	robots *robotstxt.RobotsData
}

// Cache fetches and caches robots.txt per origin. It is safe for
// concurrent use; concurrent requests for the same origin are
// collapsed onto a single fetch via singleflight.
type Cache struct {
	client    *http.Client
	userAgent string

	mu      sync.RWMutex
	entries map[string]*entry

	group singleflight.Group
}

// New constructs a Cache using the given HTTP client and user agent.
// If client is nil a default client with a 10 second timeout is used,
// matching the short timeout the original implementation gives robots
// fetches.
func New(client *http.Client, userAgent string) *Cache {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Cache{
		client:    client,
		userAgent: userAgent,
		entries:   make(map[string]*entry),
	}
}

func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

// Allowed returns true if no robots.txt exists for u's origin, the
// fetch errored or timed out, or the parsed rules allow the configured
// user agent to fetch u. The conservative default on any transient
// fetch error is allow: respecting robots.txt is best-effort, and an
// inability to fetch the policy must not block the crawl.
func (c *Cache) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}

	e := c.get(ctx, u)
	if e.robots == nil {
		return true
	}

	grp := e.robots.FindGroup(c.userAgent)
	return grp.Test(u.Path)
}

// CrawlDelay returns the declared crawl-delay for the configured agent
// at u's origin, or 0 if none is declared or robots.txt is absent.
func (c *Cache) CrawlDelay(ctx context.Context, rawURL string) time.Duration {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	e := c.get(ctx, u)
	if e.robots == nil {
		return 0
	}
	grp := e.robots.FindGroup(c.userAgent)
	if grp == nil {
		return 0
	}
	return grp.CrawlDelay
}

func (c *Cache) get(ctx context.Context, u *url.URL) *entry {
	key := origin(u)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return e
	}

	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.RLock()
		if e, ok := c.entries[key]; ok {
			c.mu.RUnlock()
			return e, nil
		}
		c.mu.RUnlock()

		fetched := c.fetch(ctx, u)

		c.mu.Lock()
		c.entries[key] = fetched
		c.mu.Unlock()
		return fetched, nil
	})

	return v.(*entry)
}

// fetch retrieves and parses robots.txt at u's origin. Any error
// (network, timeout, non-200, malformed body) yields an absent entry,
// which Allowed treats as allow-everything.
func (c *Cache) fetch(ctx context.Context, u *url.URL) *entry {
	robotsURL := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}

	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return &entry{}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &entry{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &entry{}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &entry{}
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return &entry{}
	}

	return &entry{robots: data}
}
