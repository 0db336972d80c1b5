// Package crawl implements the crawl engine (component E): candidate
// URL discovery, normalization/filtering, depth-bucketed breadth-first
// traversal under a page/depth budget, and per-host politeness. It
// drives the robots cache, sitemap discoverer, fetcher, and extractor
// components to turn a seed URL into a model.CrawlResult.
package crawl

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"llmtxt/internal/extract"
	"llmtxt/internal/fetch"
	"llmtxt/internal/model"
	"llmtxt/internal/robotscache"
	"llmtxt/internal/sitemap"
)

// docKeywords is the small vocabulary of documentation-ish path
// segments used by fallback link discovery.
var docKeywords = []string{"doc", "api", "guide", "tutorial", "reference", "manual", "help", "example", "getting-started"}

// guessedPaths are hard-coded candidates appended to the fallback set
// regardless of what the seed page links to.
var guessedPaths = []string{"/docs", "/api"}

// nonHTMLExt blocks candidate URLs whose path plainly isn't HTML.
var nonHTMLExt = []string{
	".pdf", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico",
	".zip", ".tar", ".gz", ".tgz", ".rar", ".7z",
	".mp4", ".mp3", ".wav", ".mov", ".avi",
	".css", ".js", ".json", ".xml", ".txt",
	".woff", ".woff2", ".ttf", ".eot",
}

var localeSegment = regexp.MustCompile(`^[a-z]{2}(-[a-z]{2,4})?$`)

// ProgressFunc is invoked after each successful fetch with the URL
// just processed, the running page count, and the total number of
// candidates discovered.
type ProgressFunc func(currentURL string, pagesSoFar, candidatesDiscovered int)

// Deps bundles the shared, process-scoped components the engine
// drives. Robots and Sitemaps are typically shared across jobs.
type Deps struct {
	Robots   *robotscache.Cache
	Sitemaps *sitemap.Discoverer
}

// Crawl runs the crawl engine for a single job. It never returns an
// error for ordinary crawl failures (those land in FailedURLs /
// BlockedURLs); it returns an error only for a malformed seed URL.
func Crawl(ctx context.Context, seed string, cfg model.CrawlConfig, deps Deps, progress ProgressFunc) (*model.CrawlResult, error) {
	start := time.Now()

	seedURL, err := url.Parse(seed)
	if err != nil {
		return nil, err
	}

	fetcher := fetch.New(fetch.Options{
		UserAgent:       cfg.UserAgent,
		AcceptLanguage:  acceptLanguageFor(cfg.Language),
		Timeout:         time.Duration(cfg.TimeoutSeconds) * time.Second,
		FollowRedirects: cfg.FollowRedirects,
	})

	candidates := map[string]struct{}{seed: {}}
	discovered := deps.Sitemaps.Discover(ctx, seed)
	for u := range discovered {
		candidates[u] = struct{}{}
	}
	if len(discovered) == 0 {
		for u := range fallbackDiscover(ctx, fetcher, seedURL) {
			candidates[u] = struct{}{}
		}
	}

	filtered := filterCandidates(candidates, seedURL, cfg.Language)

	byDepth := bucketByDepth(filtered, seedURL)

	result := &model.CrawlResult{}
	lastRequestAt := map[string]time.Time{}

	depths := make([]int, 0, len(byDepth))
	for d := range byDepth {
		depths = append(depths, d)
	}
	sort.Ints(depths)

	for _, depth := range depths {
		if depth > cfg.MaxDepth {
			break
		}
		urls := byDepth[depth]
		sort.Strings(urls)

		for _, u := range urls {
			if len(result.Pages) >= cfg.MaxPages {
				break
			}

			select {
			case <-ctx.Done():
				result.Duration = time.Since(start)
				result.DurationSec = result.Duration.Seconds()
				return result, nil
			default:
			}

			if cfg.RespectRobots && !deps.Robots.Allowed(ctx, u) {
				result.BlockedURLs = append(result.BlockedURLs, u)
				continue
			}

			politeWait(ctx, u, cfg, deps.Robots, lastRequestAt)

			page, err := fetchAndExtract(ctx, fetcher, u, depth, seedURL, cfg)
			lastRequestAt[hostOf(u)] = time.Now()
			if err != nil {
				if err == extract.ErrWrongLanguage || err == fetch.ErrNonHTML {
					// Content errors are silent drops, not failures.
					continue
				}
				result.FailedURLs = append(result.FailedURLs, u)
				continue
			}

			result.Pages = append(result.Pages, *page)
			if progress != nil {
				progress(u, len(result.Pages), len(filtered))
			}
		}

		if len(result.Pages) >= cfg.MaxPages {
			break
		}
	}

	result.Duration = time.Since(start)
	result.DurationSec = result.Duration.Seconds()
	return result, nil
}

func fetchAndExtract(ctx context.Context, fetcher *fetch.Fetcher, u string, depth int, seedURL *url.URL, cfg model.CrawlConfig) (*model.PageRecord, error) {
	res, err := fetcher.Get(ctx, u)
	if err != nil {
		return nil, err
	}

	page, err := extract.Extract(extract.Input{
		URL:             u,
		FinalURL:        res.FinalURL,
		HTML:            res.Body,
		StatusCode:      res.StatusCode,
		ContentType:     res.ContentType,
		ContentLanguage: res.Header.Get("Content-Language"),
		Depth:           depth,
		LanguageFilter:  cfg.Language,
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// politeWait sleeps until the per-host delay has elapsed since the
// last request to u's host. The delay is max(config delay, robots
// crawl-delay).
func politeWait(ctx context.Context, u string, cfg model.CrawlConfig, robots *robotscache.Cache, lastRequestAt map[string]time.Time) {
	host := hostOf(u)
	last, ok := lastRequestAt[host]
	if !ok {
		return
	}

	delay := time.Duration(cfg.RequestDelaySeconds * float64(time.Second))
	if robots != nil {
		if rd := robots.CrawlDelay(ctx, u); rd > delay {
			delay = rd
		}
	}
	if delay <= 0 {
		return
	}

	elapsed := time.Since(last)
	if elapsed >= delay {
		return
	}

	timer := time.NewTimer(delay - elapsed)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// fallbackDiscover fetches the seed page and extracts the same-host
// anchors on it whose path contains a documentation keyword, plus a
// set of hard-coded guessed paths.
func fallbackDiscover(ctx context.Context, fetcher *fetch.Fetcher, seedURL *url.URL) map[string]struct{} {
	out := make(map[string]struct{})

	for _, p := range guessedPaths {
		out[seedURL.ResolveReference(&url.URL{Path: p}).String()] = struct{}{}
	}

	res, err := fetcher.Get(ctx, seedURL.String())
	if err != nil {
		return out
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(res.Body)))
	if err != nil {
		return out
	}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		link, err := url.Parse(href)
		if err != nil {
			return
		}
		if !link.IsAbs() {
			link = seedURL.ResolveReference(link)
		}
		if link.Scheme != "http" && link.Scheme != "https" {
			return
		}
		if !sameHost(seedURL, link) {
			return
		}
		if matchesDocKeyword(link.Path) {
			link.Fragment = ""
			out[link.String()] = struct{}{}
		}
	})

	return out
}

func matchesDocKeyword(path string) bool {
	lower := strings.ToLower(path)
	for _, kw := range docKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func sameHost(seed, u *url.URL) bool {
	return strings.EqualFold(seed.Hostname(), u.Hostname())
}

// filterCandidates keeps same-host, non-blocked-extension, not
// non-matching-locale URLs. The seed itself always survives.
func filterCandidates(candidates map[string]struct{}, seedURL *url.URL, language string) []string {
	var out []string
	for raw := range candidates {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if u.Scheme == "" || u.Host == "" {
			u = seedURL.ResolveReference(u)
		}
		if !sameHost(seedURL, u) {
			continue
		}
		if hasNonHTMLExt(u.Path) {
			continue
		}
		if language != "" && isNonMatchingLocale(u.Path, language) {
			continue
		}
		u.Fragment = ""
		out = append(out, u.String())
	}
	return out
}

func hasNonHTMLExt(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range nonHTMLExt {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// isNonMatchingLocale rejects a first-path-segment locale code that
// does not match the configured language prefix, e.g. language="en"
// rejects "/fr/docs" and "/zh-tw/docs" but accepts "/en/docs" and
// unprefixed paths like "/docs".
func isNonMatchingLocale(path, language string) bool {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) == 0 || segs[0] == "" {
		return false
	}
	first := strings.ToLower(segs[0])
	if !localeSegment.MatchString(first) {
		return false
	}
	return !strings.HasPrefix(first, strings.ToLower(language))
}

// bucketByDepth computes depth = max(0, |url_path_segs| - |seed_path_segs|)
// for each candidate and groups them.
func bucketByDepth(candidates []string, seedURL *url.URL) map[int][]string {
	seedSegs := pathSegs(seedURL.Path)
	out := make(map[int][]string)

	for _, raw := range candidates {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		d := len(pathSegs(u.Path)) - len(seedSegs)
		if d < 0 {
			d = 0
		}
		out[d] = append(out[d], raw)
	}
	return out
}

func pathSegs(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func acceptLanguageFor(language string) string {
	if language == "" {
		return ""
	}
	return language + ";q=1.0, *;q=0.5"
}
