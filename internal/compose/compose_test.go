package compose_test

import (
	"strings"
	"testing"

	"llmtxt/internal/compose"
)

func bigPages(n, bytesEach int) []compose.Page {
	body := strings.Repeat("word ", bytesEach/5+1)
	pages := make([]compose.Page, 0, n)
	for i := 0; i < n; i++ {
		pages = append(pages, compose.Page{
			URL:       "https://ex.com/page" + string(rune('a'+i)),
			Title:     "Page Title",
			Depth:     1,
			Markdown:  "# Page Title\n\n" + body,
			PlainText: body,
		})
	}
	return pages
}

// Scenario 4: ten pages whose concatenated formatted size exceeds the
// budget with no summarizer configured. Expect the digest to fit the
// byte budget and end with the literal truncation sentinel, while the
// unabridged artifact keeps every section.
func TestBuildDigest_BudgetCompression(t *testing.T) {
	pages := bigPages(10, 45*1024) // ~450KB concatenated

	const maxKB = 100
	digest, err := compose.BuildDigest(t.Context(), pages, maxKB, nil)
	if err != nil {
		t.Fatalf("BuildDigest returned error: %v", err)
	}

	if len(digest) > maxKB*1024 {
		t.Fatalf("expected digest to fit %d KB budget, got %d bytes", maxKB, len(digest))
	}
	if !strings.HasSuffix(digest, compose.TruncationSentinel) {
		t.Fatalf("expected digest to end with the truncation sentinel, got suffix: %q", digest[max(0, len(digest)-60):])
	}

	full := compose.BuildFull(pages)
	for i := range pages {
		if !strings.Contains(full, pages[i].URL) {
			t.Errorf("expected llms-full.txt to retain page %s unabridged", pages[i].URL)
		}
	}
}

// byte_len(llm.txt) <= max_kb*1024 after final composition, for a case
// that fits comfortably within budget (no truncation expected).
func TestBuildDigest_FitsWithinBudgetWhenSmall(t *testing.T) {
	pages := []compose.Page{
		{URL: "https://ex.com/a", Title: "A", Markdown: "# A\n\nshort content", PlainText: "short content"},
	}
	digest, err := compose.BuildDigest(t.Context(), pages, 500, nil)
	if err != nil {
		t.Fatalf("BuildDigest returned error: %v", err)
	}
	if len(digest) > 500*1024 {
		t.Fatalf("digest exceeds budget: %d bytes", len(digest))
	}
	if strings.HasSuffix(digest, compose.TruncationSentinel) {
		t.Fatalf("did not expect truncation for small input")
	}
}

// Fenced code blocks in the final llm.txt come in pairs.
func TestClean_BalancesCodeFences(t *testing.T) {
	content := "intro\n```python\n1|def f():\n2|    return 1\n```\nmore text"
	cleaned := compose.Clean(content)
	if strings.Count(cleaned, "```")%2 != 0 {
		t.Fatalf("expected balanced fenced code blocks, got: %q", cleaned)
	}
}

// Header levels in the final llm.txt never skip a level.
func TestPostProcess_NeverSkipsHeaderLevel(t *testing.T) {
	content := "# Title\n\n#### Deeply nested\n\ncontent"
	out := compose.PostProcess(content)

	lines := strings.Split(out, "\n")
	depth := 0
	for _, line := range lines {
		if !strings.HasPrefix(line, "#") {
			continue
		}
		level := 0
		for _, c := range line {
			if c != '#' {
				break
			}
			level++
		}
		if level > depth+1 {
			t.Fatalf("header level jumped from %d to %d in line %q", depth, level, line)
		}
		depth = level
	}
}

// Validate flags unclosed code fences and empty output.
func TestValidate(t *testing.T) {
	ok, issues := compose.Validate("", 10)
	if ok || len(issues) == 0 {
		t.Fatalf("expected empty content to fail validation")
	}

	ok, issues = compose.Validate("some ```unclosed code", 10)
	if ok {
		t.Fatalf("expected unclosed fence to fail validation, issues: %v", issues)
	}

	ok, _ = compose.Validate("# Title\n\n```\ncode\n```\n\nbody", 10)
	if !ok {
		t.Fatalf("expected well-formed content to pass validation")
	}
}
