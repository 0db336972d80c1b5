// Package compose implements the budget composer (component G): it
// formats ranked pages into the unabridged `llms-full.txt` artifact
// and the byte-budgeted `llm.txt` digest, with an optional external
// LLM compression step when the pre-budget content overflows. Content
// cleaning, truncation, and the quality validator are grounded on the
// original implementation's composer (see DESIGN.md); nothing here
// depends on a specific LLM provider — that lives behind the
// Summarizer interface, implemented by internal/llm.
package compose

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// TruncationSentinel is appended, verbatim, whenever a page or the
// overall digest is cut short to fit the byte budget.
const TruncationSentinel = "\n\n[... content truncated due to size limits ...]"

// Summarizer delegates compression of over-budget content to an
// external LLM. Implemented by internal/llm.
type Summarizer interface {
	Summarize(ctx context.Context, content string, targetKB int) (string, error)
}

// Page is the minimal shape the composer needs from a ranked page.
type Page struct {
	URL      string
	Title    string
	Depth    int
	Markdown string
	PlainText string
}

var (
	htmlTagRe     = regexp.MustCompile(`<[^>]+>`)
	tipTagRe      = regexp.MustCompile(`(?s)<Tip[^>]*>.*?</Tip>`)
	templateVarRe = regexp.MustCompile(`\{\{[^}]+\}\}`)

	codeBlockRe   = regexp.MustCompile("(?s)```[[:alnum:]_]*\n([^`]+)```")
	lineNumGutter = regexp.MustCompile(`(?m)^\d+\|\s*`)
	tableSepLine  = regexp.MustCompile(`(?m)^\s*---\|---.*$`)
	pipePrefix    = regexp.MustCompile(`(?m)^\s*\|\s*`)

	noisePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)GET\s+STARTED.*`),
		regexp.MustCompile(`(?i)Built\s+with.*`),
		regexp.MustCompile(`(?i)\[.*?GET\s+STARTED.*?\]\(.*?\)`),
		regexp.MustCompile(`(?i)\[Built\s+with\].*`),
		regexp.MustCompile(`\[.*?\]\(#[^)]*\)`),
		regexp.MustCompile(`(?m)^\s*\[/.*?\].*$`),
		regexp.MustCompile(`(?m)^\s*\|\s*$`),
		regexp.MustCompile(`(?i)Read\s+more.*`),
		regexp.MustCompile(`(?i)Learn\s+more.*`),
		regexp.MustCompile(`(?i)Click\s+here.*`),
		regexp.MustCompile(`(?m)^\s*→.*$`),
		regexp.MustCompile(`(?m)^\s*[▶▼►◄].*$`),
	}

	headerOverflowRe = regexp.MustCompile(`(?m)^#{7,}`)
	tripleBlankRe    = regexp.MustCompile(`\n{3,}`)
	wikiLinkRe       = regexp.MustCompile(`\[\[.*?\]\]`)
	htmlCommentRe    = regexp.MustCompile(`(?s)<!--.*?-->`)
	headerLineRe     = regexp.MustCompile(`^(#+)\s*(.*)$`)
)

// Clean normalizes a single page's body: strips HTML remnants and
// template variables, re-fences malformed gutter-numbered code blocks,
// removes navigational noise lines, collapses blank-line runs, and
// clamps header levels to 1..6.
func Clean(content string) string {
	content = htmlTagRe.ReplaceAllString(content, "")
	content = tipTagRe.ReplaceAllString(content, "")
	content = templateVarRe.ReplaceAllString(content, "")

	content = codeBlockRe.ReplaceAllStringFunc(content, func(m string) string {
		sub := codeBlockRe.FindStringSubmatch(m)
		if sub == nil {
			return m
		}
		code := sub[1]
		code = lineNumGutter.ReplaceAllString(code, "")
		code = tableSepLine.ReplaceAllString(code, "")
		code = pipePrefix.ReplaceAllString(code, "")
		return "```\n" + strings.TrimSpace(code) + "\n```"
	})

	for _, pat := range noisePatterns {
		content = pat.ReplaceAllString(content, "")
	}

	content = collapseBlankRuns(content)

	content = tripleBlankRe.ReplaceAllString(content, "\n\n")
	content = headerOverflowRe.ReplaceAllString(content, "######")

	return strings.TrimSpace(content)
}

// collapseBlankRuns mirrors step 4 of the original cleaner: trailing
// whitespace is stripped per line, and runs of blank lines collapse to
// a single blank line. Left indentation is preserved for code.
func collapseBlankRuns(content string) string {
	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	prevEmpty := false

	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			if !prevEmpty {
				out = append(out, "")
				prevEmpty = true
			}
			continue
		}
		out = append(out, line)
		prevEmpty = false
	}

	return strings.Join(out, "\n")
}

// PostProcess is the final pass over assembled (possibly multi-page)
// content: it strips wiki-style links and HTML comments, then walks
// line by line enforcing that header levels never skip a level.
func PostProcess(content string) string {
	content = wikiLinkRe.ReplaceAllString(content, "")
	content = htmlCommentRe.ReplaceAllString(content, "")

	lines := strings.Split(content, "\n")
	processed := make([]string, 0, len(lines))
	var headerStack []int

	for _, line := range lines {
		if strings.HasPrefix(line, "#") {
			if m := headerLineRe.FindStringSubmatch(line); m != nil {
				level := len(m[1])
				text := m[2]

				if len(headerStack) > 0 && level > headerStack[len(headerStack)-1]+1 {
					level = headerStack[len(headerStack)-1] + 1
				}

				if text != "" {
					line = strings.Repeat("#", level) + " " + text
				} else {
					line = strings.Repeat("#", level)
				}

				for len(headerStack) > 0 && headerStack[len(headerStack)-1] >= level {
					headerStack = headerStack[:len(headerStack)-1]
				}
				headerStack = append(headerStack, level)
			}
		}
		processed = append(processed, line)
	}

	content = strings.Join(processed, "\n")
	content = tripleBlankRe.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

// Truncate cuts content at a line boundary so its UTF-8 byte length
// (including the sentinel) fits within maxBytes, leaving a 100-byte
// buffer the way the original implementation does.
func Truncate(content string, maxBytes int) string {
	if len(content) <= maxBytes {
		return content
	}

	lines := strings.Split(content, "\n")
	var kept []string
	current := 0

	for _, line := range lines {
		lineSize := len(line) + 1
		if current+lineSize > maxBytes-100 {
			break
		}
		kept = append(kept, line)
		current += lineSize
	}

	return strings.Join(kept, "\n") + TruncationSentinel
}

// FormatPage renders one page's section. full controls whether the
// URL/Depth metadata line is included (the unabridged artifact) or
// omitted (the digest).
func FormatPage(p Page, full bool) string {
	title := p.Title
	if title == "" {
		title = fmt.Sprintf("Page: %s", p.URL)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", title)
	if full {
		fmt.Fprintf(&b, "**URL**: %s\n**Depth**: %d\n\n", p.URL, p.Depth)
	}

	body := p.Markdown
	if strings.TrimSpace(body) == "" {
		body = p.PlainText
	}
	b.WriteString(Clean(body))

	return b.String()
}

// BuildFull concatenates every ranked page into the unabridged
// artifact, with a fixed header and no byte budget.
func BuildFull(pages []Page) string {
	if len(pages) == 0 {
		return ""
	}

	parts := []string{"# Documentation\n\n"}
	for _, p := range pages {
		parts = append(parts, FormatPage(p, true))
	}
	return strings.Join(parts, "\n\n")
}

// BuildDigest fits ranked pages into a byte budget, truncating the
// final page at a line boundary when it would overflow. When the pages
// did not all fit and a summarizer is configured, the budgeted content
// (at most its first 50000 bytes) is handed to the summarizer and its
// result replaces the digest; a summarizer error keeps the truncated
// digest.
func BuildDigest(ctx context.Context, pages []Page, maxKB int, summarizer Summarizer) (string, error) {
	if len(pages) == 0 {
		return "", nil
	}

	maxBytes := maxKB * 1024

	parts := []string{""} // minimal header: empty, per design decision
	total := 0
	overflowed := false

	for _, p := range pages {
		formatted := FormatPage(p, false)
		size := len(formatted)

		if total+size > maxBytes {
			overflowed = true
			remaining := maxBytes - total
			if remaining > 1000 {
				parts = append(parts, Truncate(formatted, remaining))
			}
			break
		}

		parts = append(parts, formatted)
		total += size
	}

	full := strings.Join(parts, "\n\n")
	full = PostProcess(full)

	if summarizer != nil && overflowed {
		head := full
		if len(head) > 50000 {
			head = head[:50000]
		}
		summarized, err := summarizer.Summarize(ctx, head, maxKB)
		if err != nil {
			return Truncate(full, maxBytes), nil
		}
		return PostProcess(summarized), nil
	}

	return full, nil
}

// Validate runs the lightweight sanity checks the composer promises:
// non-empty output, balanced fenced code blocks, and total size no
// more than 2x the configured budget.
func Validate(content string, maxKB int) (bool, []string) {
	var issues []string

	if strings.TrimSpace(content) == "" {
		issues = append(issues, "Empty content")
	}

	if strings.Count(content, "```")%2 != 0 {
		issues = append(issues, "Unclosed fenced code block")
	}

	if len(content) > maxKB*1024*2 {
		issues = append(issues, "Output exceeds 2x configured max_kb")
	}

	return len(issues) == 0, issues
}
