package httpapi_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"llmtxt/internal/config"
	"llmtxt/internal/crawl"
	"llmtxt/internal/httpapi"
	"llmtxt/internal/jobstore"
	"llmtxt/internal/robotscache"
	"llmtxt/internal/sitemap"
)

func newTestServer(t *testing.T) *httpapi.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Crawl.MaxPages = 1
	cfg.Crawl.MaxDepth = 0
	cfg.Crawl.RequestDelaySeconds = 0

	store := jobstore.New(jobstore.Options{
		CrawlDeps: crawl.Deps{
			Robots:   robotscache.New(nil, cfg.Crawl.UserAgent),
			Sitemaps: sitemap.New(nil, cfg.Crawl.UserAgent),
		},
	})

	return httpapi.NewServer(cfg, store, nil)
}

func TestHealthEndpoint_ReturnsStatusVersionTimestamp(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := mustTest(t, srv, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	for _, field := range []string{"status", "version", "timestamp"} {
		if _, ok := body[field]; !ok {
			t.Errorf("expected field %q in health response, got %+v", field, body)
		}
	}
	if body["status"] != "ok" {
		t.Errorf(`expected status "ok", got %v`, body["status"])
	}
}

func TestGenerateEndpoint_AcceptsAndReturns202(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) })
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><head><title>Home</title></head><body><main>hello docs</main></body></html>")
	})
	fixture := httptest.NewServer(mux)
	defer fixture.Close()

	srv := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"url": fixture.URL + "/"})
	req := httptest.NewRequest(http.MethodPost, "/v1/generations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp := mustTest(t, srv, req)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 Accepted for job creation, got %d", resp.StatusCode)
	}

	var created map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	jobID, _ := created["job_id"].(string)
	if jobID == "" {
		t.Fatalf("expected a job_id in the response, got %+v", created)
	}

	statusReq := httptest.NewRequest(http.MethodGet, "/v1/generations/"+jobID, nil)
	statusResp := mustTest(t, srv, statusReq)
	if statusResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from job status, got %d", statusResp.StatusCode)
	}
}

func TestGenerateEndpoint_RejectsMissingURL(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/generations", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")

	resp := mustTest(t, srv, req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a request missing url, got %d", resp.StatusCode)
	}
}

func TestGenerateEndpoint_RejectsRelativeURL(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"url": "/not/absolute"})
	req := httptest.NewRequest(http.MethodPost, "/v1/generations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp := mustTest(t, srv, req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a relative url, got %d", resp.StatusCode)
	}
}

func TestGenerateEndpoint_RejectsOutOfRangeMaxPagesAndMaxDepth(t *testing.T) {
	srv := newTestServer(t)

	cases := []map[string]any{
		{"url": "https://example.com/", "max_pages": -1},
		{"url": "https://example.com/", "max_pages": 1001},
		{"url": "https://example.com/", "max_depth": -1},
		{"url": "https://example.com/", "max_depth": 11},
	}
	for _, c := range cases {
		body, _ := json.Marshal(c)
		req := httptest.NewRequest(http.MethodPost, "/v1/generations", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		resp := mustTest(t, srv, req)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400 for %+v, got %d", c, resp.StatusCode)
		}
	}
}

func TestJobStatusEndpoint_UnknownJobReturns404(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/generations/does-not-exist", nil)
	resp := mustTest(t, srv, req)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", resp.StatusCode)
	}
}

func TestCancelEndpoint_UsesDeleteMethod(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) })
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>hello</body></html>")
	})
	fixture := httptest.NewServer(mux)
	defer fixture.Close()

	srv := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"url": fixture.URL + "/"})
	req := httptest.NewRequest(http.MethodPost, "/v1/generations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := mustTest(t, srv, req)

	var created map[string]any
	json.NewDecoder(resp.Body).Decode(&created)
	jobID := created["job_id"].(string)

	cancelReq := httptest.NewRequest(http.MethodDelete, "/v1/generations/"+jobID, nil)
	cancelResp := mustTest(t, srv, cancelReq)
	if cancelResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from cancelling a non-terminal job, got %d", cancelResp.StatusCode)
	}

	unknownReq := httptest.NewRequest(http.MethodDelete, "/v1/generations/does-not-exist", nil)
	unknownResp := mustTest(t, srv, unknownReq)
	if unknownResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for cancelling an unknown job, got %d", unknownResp.StatusCode)
	}
}

func TestDownloadEndpoint_FileTypeIsAPathSegmentAndSetsNoCacheHeaders(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) })
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><head><title>Home</title></head><body><main>installation guide content</main></body></html>")
	})
	fixture := httptest.NewServer(mux)
	defer fixture.Close()

	srv := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"url": fixture.URL + "/"})
	req := httptest.NewRequest(http.MethodPost, "/v1/generations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := mustTest(t, srv, req)

	var created map[string]any
	json.NewDecoder(resp.Body).Decode(&created)
	jobID := created["job_id"].(string)

	var downloadResp *http.Response
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		dlReq := httptest.NewRequest(http.MethodGet, "/v1/generations/"+jobID+"/download/llm.txt?raw=1", nil)
		downloadResp = mustTest(t, srv, dlReq)
		if downloadResp.StatusCode == http.StatusOK {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if downloadResp == nil || downloadResp.StatusCode != http.StatusOK {
		t.Fatalf("expected the job to complete and its artifact to download, got status %v", downloadResp)
	}
	if cc := downloadResp.Header.Get("Cache-Control"); cc != "no-store, no-cache, must-revalidate, max-age=0" {
		t.Errorf("unexpected Cache-Control header: %q", cc)
	}
	if downloadResp.Header.Get("Pragma") != "no-cache" {
		t.Errorf("expected Pragma: no-cache header")
	}
}

func TestDownloadEndpoint_RejectsUnknownFileType(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/generations/some-id/download/not-a-real-type", nil)
	resp := mustTest(t, srv, req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unrecognized file_type, got %d", resp.StatusCode)
	}
}

func mustTest(t *testing.T, srv *httpapi.Server, req *http.Request) *http.Response {
	t.Helper()
	resp, err := srv.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}
