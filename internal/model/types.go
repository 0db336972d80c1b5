// Package model defines the data types shared across the generation
// pipeline: crawl configuration, page records, crawl results, and the
// Job resource exposed by the HTTP API and CLI.
package model

import "time"

// CrawlConfig is immutable for the lifetime of a single job.
type CrawlConfig struct {
	MaxPages            int           `json:"max_pages" yaml:"maxPages"`
	MaxDepth            int           `json:"max_depth" yaml:"maxDepth"`
	RequestDelay        time.Duration `json:"-" yaml:"-"`
	RequestDelaySeconds float64       `json:"request_delay_seconds"`
	UserAgent           string        `json:"user_agent"`
	RespectRobots       bool          `json:"respect_robots"`
	FollowRedirects     bool          `json:"follow_redirects"`
	TimeoutSeconds      int           `json:"timeout_seconds"`
	Language            string        `json:"language"`
	FullVersion         bool          `json:"full_version"`
	MaxKB               int           `json:"max_kb"`
}

// DefaultCrawlConfig mirrors the defaults named in the API table.
func DefaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		MaxPages:            150,
		MaxDepth:            5,
		RequestDelaySeconds: 0.5,
		UserAgent:           "llmtxt-generator/0.1.0",
		RespectRobots:       true,
		FollowRedirects:     true,
		TimeoutSeconds:      15,
		Language:            "en",
		FullVersion:         false,
		MaxKB:               500,
	}
}

// PageMetadata captures derived, cheap-to-compute facts about a page.
type PageMetadata struct {
	WordCount      int `json:"word_count"`
	CharCount      int `json:"char_count"`
	MarkdownLength int `json:"markdown_length"`
}

// PageRecord is one successfully fetched and extracted HTML document.
type PageRecord struct {
	URL          string       `json:"url"`
	FinalURL     string       `json:"final_url"`
	Title        string       `json:"title"`
	PlainText    string       `json:"content"`
	Markdown     string       `json:"markdown"`
	Depth        int          `json:"depth"`
	FetchedAt    time.Time    `json:"fetched_at"`
	StatusCode   int          `json:"status_code"`
	ContentType  string       `json:"content_type"`
	Links        []string     `json:"links"`
	Language     string       `json:"language,omitempty"`
	Metadata     PageMetadata `json:"metadata"`
	ContentHash  string       `json:"-"`
	Score        float64      `json:"-"`
}

// CrawlResult is the output of the crawl engine for a single job.
type CrawlResult struct {
	Pages       []PageRecord `json:"-"`
	FailedURLs  []string     `json:"failed_urls"`
	BlockedURLs []string     `json:"blocked_urls"`
	Duration    time.Duration `json:"-"`
	DurationSec float64      `json:"duration_seconds"`
}

// SuccessRate implements the invariant success_rate = |pages| / (|pages|+|failed|).
func (r CrawlResult) SuccessRate() float64 {
	total := len(r.Pages) + len(r.FailedURLs)
	if total == 0 {
		return 0
	}
	return float64(len(r.Pages)) / float64(total)
}

// Status is the lifecycle state of a Job. Transitions form the DAG
// described in spec.md §4.H: pending -> running -> {completed, failed,
// cancelled}, plus pending -> cancelled directly. No transition leaves
// a terminal state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a sink state of the status DAG.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Phase is a coarse, human-facing progress tag on a running Job.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseCrawling     Phase = "crawling"
	PhaseExtracting   Phase = "extracting"
	PhaseComposing    Phase = "composing"
)

// LogEntry is one append-only line in a Job's processing log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Job is the unit of work exposed by the API and CLI.
type Job struct {
	ID     string      `json:"job_id"`
	URL    string      `json:"url"`
	Config CrawlConfig `json:"config"`

	Status   Status  `json:"status"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
	Phase    Phase   `json:"phase"`

	CurrentURL string `json:"current_url,omitempty"`

	URLsDiscovered int `json:"urls_discovered"`
	PagesProcessed int `json:"pages_processed"`

	ProcessingLog []LogEntry `json:"processing_log"`

	PagesCrawled int     `json:"pages_crawled"`
	PagesFailed  int     `json:"pages_failed"`
	PagesBlocked int     `json:"pages_blocked"`
	LLMTxtSize   int     `json:"llm_txt_size,omitempty"`
	LLMSFullSize int     `json:"llms_full_txt_size,omitempty"`

	LLMTxt     string `json:"-"`
	LLMSFullTxt string `json:"-"`

	LLMTxtURL     string `json:"llm_txt_url,omitempty"`
	LLMSFullTxtURL string `json:"llms_full_txt_url,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Error string `json:"error,omitempty"`
}

// FileType enumerates the two artifacts a completed Job can serve.
type FileType string

const (
	FileLLMTxt     FileType = "llm.txt"
	FileLLMSFullTxt FileType = "llms-full.txt"
)

// Valid reports whether ft is one of the two artifacts the API serves.
func (ft FileType) Valid() bool {
	return ft == FileLLMTxt || ft == FileLLMSFullTxt
}

// AppendLog appends a timestamped, immutable entry to the Job's
// processing log. The log is never mutated or truncated.
func (j *Job) AppendLog(msg string) {
	j.ProcessingLog = append(j.ProcessingLog, LogEntry{Time: time.Now().UTC(), Message: msg})
}
