package extract_test

import (
	"strings"
	"testing"

	"llmtxt/internal/extract"
)

func TestExtract_StripsNavAndPicksMainContent(t *testing.T) {
	html := `<html lang="en"><head><title>Docs Home</title></head>
<body>
<nav>Home | Docs | About</nav>
<header class="site-header">Brand</header>
<main><h1>Installation</h1><p>Run the installer and follow the prompts.</p>
<a href="/guide">guide</a></main>
<footer>Copyright 2024</footer>
</body></html>`

	rec, err := extract.Extract(extract.Input{
		URL:      "https://ex.com/docs",
		FinalURL: "https://ex.com/docs",
		HTML:     []byte(html),
	})
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	if rec.Title != "Docs Home" {
		t.Errorf("expected title %q, got %q", "Docs Home", rec.Title)
	}
	if !strings.Contains(rec.PlainText, "Installation") || !strings.Contains(rec.PlainText, "installer") {
		t.Errorf("expected main content retained, got %q", rec.PlainText)
	}
	if strings.Contains(rec.PlainText, "Home | Docs | About") {
		t.Errorf("expected nav text to be stripped, got %q", rec.PlainText)
	}
	if strings.Contains(rec.PlainText, "Copyright 2024") {
		t.Errorf("expected footer text to be stripped, got %q", rec.PlainText)
	}
	if len(rec.Links) != 1 || rec.Links[0] != "https://ex.com/guide" {
		t.Errorf("expected single resolved link, got %v", rec.Links)
	}
}

func TestExtract_LanguageFilterRejectsNonMatching(t *testing.T) {
	html := `<html lang="fr"><head><title>Accueil</title></head><body><main>Bonjour le monde</main></body></html>`

	_, err := extract.Extract(extract.Input{
		URL:            "https://ex.com/fr/docs",
		FinalURL:       "https://ex.com/fr/docs",
		HTML:           []byte(html),
		LanguageFilter: "en",
	})
	if err != extract.ErrWrongLanguage {
		t.Fatalf("expected ErrWrongLanguage, got %v", err)
	}
}

func TestExtract_LanguageFilterAllowsMatchingPrefix(t *testing.T) {
	html := `<html lang="en-US"><head><title>Home</title></head><body><main>Hello world</main></body></html>`

	rec, err := extract.Extract(extract.Input{
		URL:            "https://ex.com/docs",
		FinalURL:       "https://ex.com/docs",
		HTML:           []byte(html),
		LanguageFilter: "en",
	})
	if err != nil {
		t.Fatalf("expected en-US to match filter en, got error: %v", err)
	}
	if rec.Language != "en-US" {
		t.Errorf("expected recorded language en-US, got %q", rec.Language)
	}
}
