// Package sitemap discovers candidate URLs for a site by harvesting
// Sitemap: directives from robots.txt and probing well-known sitemap
// paths, recursing into sitemap indexes.
package sitemap

import (
	"bufio"
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// wellKnownPaths are probed with HEAD in addition to any sitemaps
// robots.txt names.
var wellKnownPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemaps.xml",
	"/sitemap/sitemap.xml",
}

type urlEntry struct {
	Loc string `xml:"loc"`
}

type sitemapRef struct {
	Loc string `xml:"loc"`
}

type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	URLs    []urlEntry `xml:"url"`
}

type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []sitemapRef `xml:"sitemap"`
}

// Discoverer finds candidate URLs via sitemaps. A Discoverer is
// process-scoped: callers may share one instance across jobs, the same
// way the robots cache is shared (design note in spec.md §9). Results
// are not cached: concurrent Discover calls for the same origin share
// one discovery run, and every later call runs discovery again.
type Discoverer struct {
	client    *http.Client
	userAgent string

	group singleflight.Group
}

// New constructs a Discoverer. If client is nil a client with a 30
// second timeout is used for sitemap GETs (the original implementation
// uses 30s for sitemap bodies and 10s for existence probes).
func New(client *http.Client, userAgent string) *Discoverer {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Discoverer{client: client, userAgent: userAgent}
}

// Discover returns the set of URLs found across every sitemap
// reachable from base. Errors at any step are swallowed: discovery
// returns whatever it managed to collect, possibly an empty set, and
// callers fall back to link-extraction discovery.
func (d *Discoverer) Discover(ctx context.Context, base string) map[string]struct{} {
	baseURL, err := url.Parse(base)
	if err != nil {
		return map[string]struct{}{}
	}

	result, _, _ := d.group.Do(baseURL.Scheme+"://"+baseURL.Host, func() (interface{}, error) {
		urls := make(map[string]struct{})
		var mu sync.Mutex

		for _, sm := range d.findSitemaps(ctx, baseURL) {
			seen := map[string]struct{}{sm: {}}
			for _, u := range d.parseSitemap(ctx, sm, seen) {
				mu.Lock()
				urls[u] = struct{}{}
				mu.Unlock()
			}
		}
		return urls, nil
	})

	return result.(map[string]struct{})
}

// findSitemaps harvests Sitemap: lines from robots.txt and probes the
// well-known paths with HEAD, accepting only 200.
func (d *Discoverer) findSitemaps(ctx context.Context, base *url.URL) []string {
	var sitemaps []string
	sitemaps = append(sitemaps, d.sitemapsFromRobots(ctx, base)...)

	seen := make(map[string]struct{})
	for _, s := range sitemaps {
		seen[s] = struct{}{}
	}

	for _, path := range wellKnownPaths {
		candidate := base.ResolveReference(&url.URL{Path: path}).String()
		if _, ok := seen[candidate]; ok {
			continue
		}
		if d.exists(ctx, candidate) {
			sitemaps = append(sitemaps, candidate)
			seen[candidate] = struct{}{}
		}
	}

	return sitemaps
}

func (d *Discoverer) sitemapsFromRobots(ctx context.Context, base *url.URL) []string {
	robotsURL := base.ResolveReference(&url.URL{Path: "/robots.txt"}).String()

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var out []string
	scanner := bufio.NewScanner(io.LimitReader(resp.Body, 1<<20))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(strings.ToLower(line), "sitemap:") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				out = append(out, strings.TrimSpace(parts[1]))
			}
		}
	}
	return out
}

func (d *Discoverer) exists(ctx context.Context, rawURL string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// parseSitemap fetches and parses a single sitemap URL, recursing into
// indexes. seen guards against cyclic index references.
func (d *Discoverer) parseSitemap(ctx context.Context, sitemapURL string, seen map[string]struct{}) []string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil
	}

	// Reject responses that are clearly HTML error pages rather than XML.
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	trimmed := strings.TrimSpace(string(body))
	lowerTrimmed := strings.ToLower(trimmed)
	if strings.Contains(ct, "html") || strings.HasPrefix(lowerTrimmed, "<!doctype") || strings.HasPrefix(lowerTrimmed, "<html") {
		return nil
	}

	var idx sitemapIndex
	if err := xml.Unmarshal(body, &idx); err == nil && len(idx.Sitemaps) > 0 {
		var out []string
		for _, ref := range idx.Sitemaps {
			loc := strings.TrimSpace(ref.Loc)
			if loc == "" {
				continue
			}
			if _, ok := seen[loc]; ok {
				continue
			}
			seen[loc] = struct{}{}
			out = append(out, d.parseSitemap(ctx, loc, seen)...)
		}
		return out
	}

	var us urlSet
	if err := xml.Unmarshal(body, &us); err != nil {
		return nil
	}

	var out []string
	for _, ue := range us.URLs {
		loc := strings.TrimSpace(ue.Loc)
		if isValidURL(loc) {
			out = append(out, loc)
		}
	}
	return out
}

func isValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
