// Package rank scores and orders crawled pages for the budget
// composer. Scoring and deduplication are pure functions of the page
// list, grounded on the original implementation's _prioritize_pages
// (see DESIGN.md) re-expressed as idiomatic Go with a blake3 content
// hash in place of the original's MD5.
package rank

import (
	"regexp"
	"sort"
	"strings"

	"lukechampine.com/blake3"
)

var installKeywords = []string{"install", "installation", "setup", "getting-started", "quickstart", "quick-start", "requirements", "dependencies"}
var apiKeywords = []string{"api", "reference", "methods", "functions", "classes", "endpoints", "parameters", "arguments", "options"}
var exampleKeywords = []string{"example", "tutorial", "guide", "how-to", "usage", "sample", "demo", "cookbook", "recipe"}
var configKeywords = []string{"configuration", "config", "settings", "options", "customize", "advanced", "optimization"}
var codeIndicators = []string{"```", "<code>", "import ", "from ", "def ", "class "}
var noiseKeywords = []string{
	"changelog", "release", "announcement", "blog", "news",
	"about", "careers", "team", "company", "press",
	"terms", "privacy", "cookie", "legal", "disclaimer",
	"pricing", "plans", "enterprise", "contact", "support",
}

var datePattern = regexp.MustCompile(`\d{4}[-/]\d{2}[-/]\d{2}|changelog|release-notes`)

// Page is the minimal shape the ranker needs. cmd/llmtxt and
// internal/jobstore build this from model.PageRecord.
type Page struct {
	URL     string
	Title   string
	Content string // plain text, used for scoring and dedup
	Depth   int
}

// Scored pairs a Page with its computed score, for stable access after
// sorting.
type Scored struct {
	Page  Page
	Score float64
	Hash  string
}

// Rank deduplicates by content hash (keeping the first occurrence),
// scores the remainder, and returns them sorted by descending score
// with ties broken by (depth asc, URL asc) for determinism.
func Rank(pages []Page, cleaner func(string) string) []Scored {
	deduped := dedupe(pages, cleaner)

	scored := make([]Scored, 0, len(deduped))
	for _, p := range deduped {
		scored = append(scored, Scored{
			Page:  p,
			Score: score(p),
			Hash:  contentHash(cleaner(p.Content)),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Page.Depth != scored[j].Page.Depth {
			return scored[i].Page.Depth < scored[j].Page.Depth
		}
		return scored[i].Page.URL < scored[j].Page.URL
	})

	return scored
}

// dedupe keeps the first occurrence of each normalized-content hash.
func dedupe(pages []Page, cleaner func(string) string) []Page {
	seen := make(map[string]struct{})
	var out []Page
	for _, p := range pages {
		h := contentHash(cleaner(p.Content))
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, p)
	}
	return out
}

func contentHash(normalized string) string {
	sum := blake3.Sum256([]byte(normalized))
	return string(sum[:])
}

// score implements the heuristic from the original composer's
// _prioritize_pages, unchanged in meaning.
func score(p Page) float64 {
	var s float64

	titleLower := strings.ToLower(p.Title)
	urlLower := strings.ToLower(p.URL)
	contentHead := p.Content
	if len(contentHead) > 1000 {
		contentHead = contentHead[:1000]
	}
	contentLower := strings.ToLower(contentHead)

	for _, kw := range installKeywords {
		if strings.Contains(titleLower, kw) || strings.Contains(urlLower, kw) {
			s += 25
		} else if strings.Contains(contentLower, kw) {
			s += 15
		}
	}

	for _, kw := range apiKeywords {
		if strings.Contains(titleLower, kw) || strings.Contains(urlLower, kw) {
			s += 20
		}
	}

	for _, kw := range exampleKeywords {
		if strings.Contains(titleLower, kw) || strings.Contains(urlLower, kw) {
			s += 18
		}
	}

	for _, kw := range configKeywords {
		if strings.Contains(titleLower, kw) || strings.Contains(urlLower, kw) {
			s += 10
		}
	}

	codeCount := 0
	for _, ind := range codeIndicators {
		if strings.Contains(p.Content, ind) {
			codeCount++
		}
	}
	codeBonus := float64(codeCount * 2)
	if codeBonus > 10 {
		codeBonus = 10
	}
	s += codeBonus

	for _, kw := range noiseKeywords {
		if strings.Contains(titleLower, kw) || strings.Contains(urlLower, kw) {
			s -= 30
		}
	}

	if datePattern.MatchString(urlLower) {
		s -= 25
	}

	if p.Depth <= 2 {
		s += 5
	} else if p.Depth > 4 {
		s -= 5
	}

	contentLength := len(p.Content)
	if contentLength > 1000 && contentLength < 30000 {
		s += 5
	} else if contentLength > 100000 {
		s -= 10
	}

	return s
}
