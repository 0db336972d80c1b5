// Package extract reduces raw HTML into a model.PageRecord: it strips
// navigation/boilerplate, picks the main content region, renders
// markdown, and collects outbound links and metadata.
package extract

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"llmtxt/internal/model"
)

// ErrWrongLanguage is returned when a language filter is configured
// and the page declares a non-matching language.
var ErrWrongLanguage = errors.New("extract: page language does not match filter")

// noiseTags are removed wholesale before main-content selection.
var noiseTags = []string{"script", "style", "nav", "footer", "aside", "header"}

// noiseClassTokens are matched case-insensitively against class/id
// attributes; any element whose class or id contains one of these is
// removed.
var noiseClassTokens = []string{"nav", "navigation", "menu", "sidebar", "footer", "header", "breadcrumb"}

// mainContentSelectors are tried in order; the first match wins.
var mainContentSelectors = []string{
	"main", `[role="main"]`, "article", ".main-content", ".content", ".documentation", "#main", "#content", "#documentation",
}

var wsRun = regexp.MustCompile(`\s+`)
var blankRun = regexp.MustCompile(`\n{3,}`)

// Input is what the Extractor needs to process one fetched page.
type Input struct {
	URL             string
	FinalURL        string
	HTML            []byte
	StatusCode      int
	ContentType     string
	ContentLanguage string
	Depth           int
	LanguageFilter  string // BCP-47-ish prefix; empty disables the gate
}

// Extract turns raw HTML into a PageRecord, or returns an error for
// content that should be silently dropped (wrong language, unparsable
// markup).
func Extract(in Input) (*model.PageRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(in.HTML)))
	if err != nil {
		return nil, err
	}

	lang := pageLanguage(doc, in.ContentLanguage)
	if in.LanguageFilter != "" && lang != "" && !languageMatches(lang, in.LanguageFilter) {
		return nil, ErrWrongLanguage
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	denoise(doc.Selection)

	main := selectMainContent(doc)
	main.Find("img").Remove()

	htmlFragment, err := goquery.OuterHtml(main)
	if err != nil {
		htmlFragment = ""
	}
	converter := htmlmd.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(htmlFragment)
	if err != nil {
		markdown = ""
	}
	markdown = collapseBlankLines(markdown)

	plainText := collapseWhitespace(main.Text())

	links := collectLinks(doc, in.FinalURL)

	rec := &model.PageRecord{
		URL:         in.URL,
		FinalURL:    in.FinalURL,
		Title:       title,
		PlainText:   plainText,
		Markdown:    markdown,
		Depth:       in.Depth,
		FetchedAt:   time.Now().UTC(),
		StatusCode:  in.StatusCode,
		ContentType: in.ContentType,
		Links:       links,
		Language:    lang,
		Metadata: model.PageMetadata{
			WordCount:      len(strings.Fields(plainText)),
			CharCount:      len(plainText),
			MarkdownLength: len(markdown),
		},
	}
	return rec, nil
}

func pageLanguage(doc *goquery.Document, contentLanguageHeader string) string {
	if lang, ok := doc.Find("html").First().Attr("lang"); ok && strings.TrimSpace(lang) != "" {
		return strings.TrimSpace(lang)
	}
	return strings.TrimSpace(contentLanguageHeader)
}

// languageMatches compares a declared BCP-47-ish language tag against
// a configured prefix, matching on the primary subtag (e.g. "en-US"
// matches filter "en").
func languageMatches(declared, filter string) bool {
	declared = strings.ToLower(declared)
	filter = strings.ToLower(filter)
	primary := declared
	if idx := strings.IndexAny(declared, "-_"); idx >= 0 {
		primary = declared[:idx]
	}
	return primary == filter || strings.HasPrefix(declared, filter)
}

func denoise(root *goquery.Selection) {
	for _, tag := range noiseTags {
		root.Find(tag).Remove()
	}
	for _, token := range noiseClassTokens {
		sel := `[class*="` + token + `" i], [id*="` + token + `" i]`
		root.Find(sel).Remove()
	}
}

func selectMainContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range mainContentSelectors {
		found := doc.Find(sel)
		if found.Length() > 0 {
			return found.First()
		}
	}
	return doc.Find("body")
}

func collectLinks(doc *goquery.Document, base string) []string {
	baseURL, _ := url.Parse(base)
	seen := make(map[string]struct{})
	var out []string

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		linkURL, err := url.Parse(href)
		if err != nil {
			return
		}
		if baseURL != nil && !linkURL.IsAbs() {
			linkURL = baseURL.ResolveReference(linkURL)
		}
		if linkURL.Scheme != "http" && linkURL.Scheme != "https" {
			return
		}
		linkURL.Fragment = ""
		final := linkURL.String()
		if _, dup := seen[final]; dup {
			return
		}
		seen[final] = struct{}{}
		out = append(out, final)
	})

	return out
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(wsRun.ReplaceAllString(s, " "))
}

func collapseBlankLines(s string) string {
	return strings.TrimSpace(blankRun.ReplaceAllString(s, "\n\n"))
}
