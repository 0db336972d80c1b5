package jobstore_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"llmtxt/internal/crawl"
	"llmtxt/internal/jobstore"
	"llmtxt/internal/model"
	"llmtxt/internal/objectstore"
	"llmtxt/internal/robotscache"
	"llmtxt/internal/sitemap"
)

// fakeObjectStore is an in-memory stand-in for internal/objectstore.Store,
// exercising the same Put/Get contract jobstore depends on.
type fakeObjectStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{data: make(map[string][]byte)}
}

func (f *fakeObjectStore) Put(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), data...)
	f.data[key] = cp
	return nil
}

func (f *fakeObjectStore) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, fmt.Errorf("not found: %s", key)
	}
	return v, nil
}

func newDeps() crawl.Deps {
	return crawl.Deps{
		Robots:   robotscache.New(nil, "llmtxt-test/1.0"),
		Sitemaps: sitemap.New(nil, "llmtxt-test/1.0"),
	}
}

func slowPageServer(t *testing.T, delay time.Duration, n int) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	var server *httptest.Server
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		w.Header().Set("Content-Type", "text/html")
		var links string
		for i := 0; i < n; i++ {
			links += fmt.Sprintf(`<a href="%s/page%d">doc page %d</a>`, server.URL, i, i)
		}
		fmt.Fprintf(w, "<html><body>%s</body></html>", links)
	})
	for i := 0; i < n; i++ {
		i := i
		mux.HandleFunc(fmt.Sprintf("/page%d", i), func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(delay)
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprintf(w, "<html><head><title>Page %d</title></head><body><main><h1>Page %d</h1><p>some documentation content here.</p></main></body></html>", i, i)
		})
	}
	server = httptest.NewServer(mux)
	return server
}

// Scenario 5: cancellation mid-crawl. Start a job against a slow
// fixture; after observing progress >= 0.3, cancel it. Expect the next
// status snapshot to be cancelled, with completed_at set and
// progress < 1.0, and no further status change.
func TestJobstore_CancelMidCrawl(t *testing.T) {
	server := slowPageServer(t, 80*time.Millisecond, 8)
	defer server.Close()

	store := jobstore.New(jobstore.Options{CrawlDeps: newDeps()})

	cfg := model.DefaultCrawlConfig()
	cfg.MaxPages = 8
	cfg.MaxDepth = 2
	cfg.RequestDelaySeconds = 0

	job := store.Submit(server.URL+"/", cfg)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := store.Get(t.Context(), job.ID)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if snap.Progress >= 0.3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := store.Cancel(job.ID); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}

	var final *model.Job
	deadline = time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := store.Get(t.Context(), job.ID)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if snap.Status.Terminal() {
			final = snap
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if final == nil {
		t.Fatalf("job never reached a terminal state after cancel")
	}
	if final.Status != model.StatusCancelled {
		t.Fatalf("expected status cancelled, got %s", final.Status)
	}
	if final.CompletedAt == nil {
		t.Fatalf("expected completed_at to be set on cancellation")
	}
	if final.Progress >= 1.0 {
		t.Fatalf("expected progress < 1.0 on cancellation, got %v", final.Progress)
	}
	if len(final.ProcessingLog) == 0 || !containsCancelled(final.ProcessingLog) {
		t.Fatalf("expected processing log to mention cancellation, got %+v", final.ProcessingLog)
	}

	time.Sleep(50 * time.Millisecond)
	again, err := store.Get(t.Context(), job.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if again.Status != model.StatusCancelled {
		t.Fatalf("expected no further status change after cancellation, got %s", again.Status)
	}
}

func containsCancelled(log []model.LogEntry) bool {
	for _, e := range log {
		if e.Message == "job cancelled" {
			return true
		}
	}
	return false
}

// Scenario 6 (persistence round-trip): a completed job's artifacts are
// written through to object storage and are retrievable byte-for-byte
// via Artifact, rather than only living in the in-memory job struct.
func TestJobstore_ArtifactRoundTripThroughObjectStore(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><head><title>Home</title></head><body><main><h1>Home</h1><p>installation guide content.</p></main></body></html>")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	objStore := newFakeObjectStore()
	store := jobstore.New(jobstore.Options{
		CrawlDeps:   newDeps(),
		ObjectStore: objStore,
		Keys: jobstore.KeyFuncs{
			StatusKey:   objectstore.StatusKey,
			ArtifactKey: objectstore.ArtifactKey,
		},
	})

	cfg := model.DefaultCrawlConfig()
	cfg.MaxPages = 1
	cfg.MaxDepth = 0
	cfg.RequestDelaySeconds = 0

	job := store.Submit(server.URL+"/", cfg)

	var final *model.Job
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := store.Get(t.Context(), job.ID)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if snap.Status.Terminal() {
			final = snap
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if final == nil {
		t.Fatalf("job never completed")
	}
	if final.Status != model.StatusCompleted {
		t.Fatalf("expected job to complete, got status %s (error: %s)", final.Status, final.Error)
	}

	data, err := store.Artifact(t.Context(), job.ID, model.FileLLMTxt)
	if err != nil {
		t.Fatalf("Artifact returned error: %v", err)
	}
	if len(data) != final.LLMTxtSize {
		t.Fatalf("expected artifact byte length %d to match recorded size %d", len(data), final.LLMTxtSize)
	}

	raw, err := objStore.Get(context.Background(), objectstore.ArtifactKey(job.ID, string(model.FileLLMTxt)))
	if err != nil {
		t.Fatalf("expected artifact to be persisted under the object store key, got: %v", err)
	}
	if string(raw) != string(data) {
		t.Fatalf("expected Artifact() to return the same bytes stored in object storage")
	}

	// Simulate a process restart: a fresh Store shares the same backing
	// object storage but starts with an empty in-memory map. Status and
	// download must both still work, served from the persisted snapshot.
	restarted := jobstore.New(jobstore.Options{
		CrawlDeps:   newDeps(),
		ObjectStore: objStore,
		Keys: jobstore.KeyFuncs{
			StatusKey:   objectstore.StatusKey,
			ArtifactKey: objectstore.ArtifactKey,
		},
	})

	reloaded, err := restarted.Get(t.Context(), job.ID)
	if err != nil {
		t.Fatalf("expected Get to fall back to object storage after eviction, got: %v", err)
	}
	if reloaded.Status != model.StatusCompleted {
		t.Fatalf("expected the reloaded job to still be completed, got %s", reloaded.Status)
	}

	reloadedArtifact, err := restarted.Artifact(t.Context(), job.ID, model.FileLLMTxt)
	if err != nil {
		t.Fatalf("expected Artifact to fall back to object storage after eviction, got: %v", err)
	}
	if string(reloadedArtifact) != string(data) {
		t.Fatalf("expected the reloaded artifact to match the original byte-for-byte")
	}

	// A second Get on the same restarted store must now hit the
	// in-memory fast path without erroring (the map was repopulated).
	if _, err := restarted.Get(t.Context(), job.ID); err != nil {
		t.Fatalf("expected repopulated Get to succeed, got: %v", err)
	}
}

// Scenario 6b: an unknown job ID, with object storage configured but no
// snapshot under that key, still returns ErrNotFound rather than a
// decode error or a false positive.
func TestJobstore_GetUnknownJobWithObjectStorageConfigured(t *testing.T) {
	objStore := newFakeObjectStore()
	store := jobstore.New(jobstore.Options{
		CrawlDeps:   newDeps(),
		ObjectStore: objStore,
		Keys: jobstore.KeyFuncs{
			StatusKey:   objectstore.StatusKey,
			ArtifactKey: objectstore.ArtifactKey,
		},
	})

	_, err := store.Get(t.Context(), "does-not-exist")
	if !errors.Is(err, jobstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
