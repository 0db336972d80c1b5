// Package llm implements the optional external summarizer used by the
// budget composer (internal/compose) when the crawled pages overflow
// the digest's byte budget. It talks to whichever provider
// is configured, using the same bare net/http + encoding/json style
// and provider-selection switch as the teacher's LLM client, narrowed
// to a single summarize-only contract (compose.Summarizer) since this
// service has no field-extraction use case.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Provider selects which API Summarize talks to.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

// ErrNotConfigured is returned when Summarize is called without an API
// key. Callers (internal/compose) treat this the same as any other
// summarizer error: fall back to local truncation.
var ErrNotConfigured = errors.New("llm: summarizer is not configured")

// Options configures a Client. APIKey is read from the
// LLM_SUMMARIZER_API_KEY environment variable by internal/config.
type Options struct {
	Provider Provider
	APIKey   string
	Model    string
	BaseURL  string // openai-compatible override; ignored by other providers
	Timeout  time.Duration
}

// Client implements compose.Summarizer against a configured provider.
type Client struct {
	opts Options
	http *http.Client
}

// New constructs a Client. A zero-value Timeout defaults to 30s.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{opts: opts, http: &http.Client{Timeout: timeout}}
}

// Summarize compresses content to roughly targetKB kilobytes, using
// the persona/task/output-format prompt from the original composer,
// with temperature and seed pinned for reproducibility where the
// provider API supports them.
func (c *Client) Summarize(ctx context.Context, content string, targetKB int) (string, error) {
	if c.opts.APIKey == "" {
		return "", ErrNotConfigured
	}

	system, user := buildPrompt(content, targetKB)

	switch c.opts.Provider {
	case ProviderOpenAI:
		return c.summarizeOpenAI(ctx, system, user)
	case ProviderAnthropic:
		return c.summarizeAnthropic(ctx, system, user)
	case ProviderGoogle:
		return c.summarizeGoogle(ctx, system, user)
	default:
		return "", fmt.Errorf("llm: unsupported provider %q", c.opts.Provider)
	}
}

// buildPrompt reconstructs the structured summarization prompt from
// the original composer's _ai_summarize: a system message describing
// role/task/requirements/output format/content rules/quality checks,
// and a user message wrapping the source content as a single document
// plus an explicit instruction.
func buildPrompt(content string, targetKB int) (system, user string) {
	system = fmt.Sprintf(`<role>
You are a technical documentation editor producing a compact reference
for developers and AI coding assistants.
</role>

<task>
Condense the supplied documentation into a single markdown document of
approximately %d KB, preserving every API signature, configuration
option, and code example a developer would need.
</task>

<requirements>
- Preserve headings, code blocks, and parameter tables.
- Remove marketing language, navigation text, and duplicate content.
- Keep the most technically dense sections; drop prose that restates
  the same point.
- Do not fabricate content that is not present in the source.
</requirements>

<output_format>
Return markdown only: no preamble, no commentary about the task, no
trailing notes.
</output_format>

<content_rules>
Keep fenced code blocks intact and balanced. Keep section headers at
their original relative depth.
</content_rules>

<quality_checks>
Before finishing, verify the output is non-empty, every code fence is
closed, and the result is close to the requested size.
</quality_checks>`, targetKB)

	doc := content
	if len(doc) > 50000 {
		doc = doc[:50000]
	}

	user = fmt.Sprintf(`<documents><document><source>Technical Documentation</source><content>%s</content></document></documents><instruction>Summarize the above into approximately %d KB of markdown following the system instructions.</instruction>`, doc, targetKB)

	return system, user
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
	Seed        int                 `json:"seed"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) summarizeOpenAI(ctx context.Context, system, user string) (string, error) {
	body := openAIChatRequest{
		Model: c.opts.Model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.0,
		Seed:        42,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	base := c.opts.BaseURL
	if base == "" {
		base = "https://api.openai.com/v1"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm: openai chat completion failed with status %d", resp.StatusCode)
	}

	var parsed openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("llm: openai chat completion returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

type anthropicMessagesRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string                 `json:"role"`
	Content []anthropicTextContent `json:"content"`
}

type anthropicTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessagesResponse struct {
	Content []anthropicTextContent `json:"content"`
}

func (c *Client) summarizeAnthropic(ctx context.Context, system, user string) (string, error) {
	body := anthropicMessagesRequest{
		Model:     c.opts.Model,
		MaxTokens: 4096,
		System:    system,
		Messages: []anthropicMessage{
			{Role: "user", Content: []anthropicTextContent{{Type: "text", Text: user}}},
		},
		Temperature: 0.0,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.anthropic.com/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.opts.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm: anthropic messages request failed with status %d", resp.StatusCode)
	}

	var parsed anthropicMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Content) == 0 {
		return "", errors.New("llm: anthropic messages returned no content")
	}
	return parsed.Content[0].Text, nil
}

type googleGenerateContentRequest struct {
	SystemInstruction *googleContent         `json:"systemInstruction,omitempty"`
	Contents          []googleContent        `json:"contents"`
	GenerationConfig  googleGenerationConfig `json:"generationConfig"`
}

type googleGenerationConfig struct {
	Temperature float64 `json:"temperature"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text,omitempty"`
}

type googleGenerateContentResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
}

func (c *Client) summarizeGoogle(ctx context.Context, system, user string) (string, error) {
	body := googleGenerateContentRequest{
		SystemInstruction: &googleContent{Parts: []googlePart{{Text: system}}},
		Contents:          []googleContent{{Parts: []googlePart{{Text: user}}}},
		GenerationConfig:  googleGenerationConfig{Temperature: 0.0},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s",
		c.opts.Model, url.QueryEscape(c.opts.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm: google generateContent failed with status %d", resp.StatusCode)
	}

	var parsed googleGenerateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("llm: google generateContent returned no candidates")
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
