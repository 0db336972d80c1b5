// Package metrics implements a minimal in-memory Prometheus-text
// exporter, the same shape as the teacher's metrics package (package
// maps guarded by a single RWMutex, sorted-key deterministic Export),
// with the teacher's tenant/search/extract counters replaced by
// crawl-job counters.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	mu sync.RWMutex

	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	jobsTotal        = make(map[jobKey]int64)
	jobPagesCrawled  int64
	jobPagesFailed   int64
	jobPagesBlocked  int64
	summarizerCalls  = make(map[summarizerKey]int64)
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type jobKey struct {
	Status string // completed, failed, cancelled
}

type summarizerKey struct {
	Provider string
	Success  string
}

// RecordRequest increments the request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	requestsTotal[reqKey{Method: method, Path: path, Status: status}]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordJobFinished increments the terminal-state counter for a job.
func RecordJobFinished(status string) {
	mu.Lock()
	defer mu.Unlock()
	jobsTotal[jobKey{Status: status}]++
}

// RecordJobPages accumulates crawl outcome counts for a finished job.
func RecordJobPages(crawled, failed, blocked int) {
	mu.Lock()
	defer mu.Unlock()
	jobPagesCrawled += int64(crawled)
	jobPagesFailed += int64(failed)
	jobPagesBlocked += int64(blocked)
}

// RecordSummarizerCall increments the external-summarizer call counter.
func RecordSummarizerCall(provider string, success bool) {
	mu.Lock()
	defer mu.Unlock()

	s := "false"
	if success {
		s = "true"
	}
	summarizerCalls[summarizerKey{Provider: provider, Success: s}]++
}

// Export returns Prometheus-style metrics text with deterministic,
// sorted-key ordering.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP llmtxt_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE llmtxt_http_requests_total counter\n")
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})
	for _, k := range reqKeys {
		fmt.Fprintf(&b, "llmtxt_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, requestsTotal[k])
	}

	b.WriteString("# HELP llmtxt_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE llmtxt_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP llmtxt_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE llmtxt_http_request_duration_ms_count counter\n")
	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})
	for _, k := range latKeys {
		fmt.Fprintf(&b, "llmtxt_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "llmtxt_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	b.WriteString("# HELP llmtxt_jobs_total Total jobs by terminal status\n")
	b.WriteString("# TYPE llmtxt_jobs_total counter\n")
	var jobKeys []jobKey
	for k := range jobsTotal {
		jobKeys = append(jobKeys, k)
	}
	sort.Slice(jobKeys, func(i, j int) bool { return jobKeys[i].Status < jobKeys[j].Status })
	for _, k := range jobKeys {
		fmt.Fprintf(&b, "llmtxt_jobs_total{status=\"%s\"} %d\n", k.Status, jobsTotal[k])
	}

	b.WriteString("# HELP llmtxt_job_pages_crawled_total Total pages successfully crawled across all jobs\n")
	b.WriteString("# TYPE llmtxt_job_pages_crawled_total counter\n")
	fmt.Fprintf(&b, "llmtxt_job_pages_crawled_total %d\n", jobPagesCrawled)

	b.WriteString("# HELP llmtxt_job_pages_failed_total Total page fetch/extract failures across all jobs\n")
	b.WriteString("# TYPE llmtxt_job_pages_failed_total counter\n")
	fmt.Fprintf(&b, "llmtxt_job_pages_failed_total %d\n", jobPagesFailed)

	b.WriteString("# HELP llmtxt_job_pages_blocked_total Total pages blocked by robots.txt across all jobs\n")
	b.WriteString("# TYPE llmtxt_job_pages_blocked_total counter\n")
	fmt.Fprintf(&b, "llmtxt_job_pages_blocked_total %d\n", jobPagesBlocked)

	b.WriteString("# HELP llmtxt_summarizer_calls_total Total external summarizer calls by provider and outcome\n")
	b.WriteString("# TYPE llmtxt_summarizer_calls_total counter\n")
	var sumKeys []summarizerKey
	for k := range summarizerCalls {
		sumKeys = append(sumKeys, k)
	}
	sort.Slice(sumKeys, func(i, j int) bool {
		if sumKeys[i].Provider != sumKeys[j].Provider {
			return sumKeys[i].Provider < sumKeys[j].Provider
		}
		return sumKeys[i].Success < sumKeys[j].Success
	})
	for _, k := range sumKeys {
		fmt.Fprintf(&b, "llmtxt_summarizer_calls_total{provider=\"%s\",success=\"%s\"} %d\n",
			k.Provider, k.Success, summarizerCalls[k])
	}

	return b.String()
}
