// Package jobstore implements the job model and store (component H):
// an in-memory job map with a single-writer-per-job processor, mapping
// crawl/compose progress onto a Job's lifecycle, persisting status
// snapshots and finished artifacts to object storage when configured,
// and serializing cross-instance job claims through an optional Redis
// lock. The single-writer goroutine shape is grounded on the teacher's
// job-manager pattern (see DESIGN.md); it owns lifecycle concerns the
// crawl engine (internal/crawl) deliberately knows nothing about.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"llmtxt/internal/compose"
	"llmtxt/internal/crawl"
	"llmtxt/internal/lock"
	"llmtxt/internal/metrics"
	"llmtxt/internal/model"
	"llmtxt/internal/rank"
)

// ErrNotFound is returned when a job ID is unknown to the store.
var ErrNotFound = errors.New("jobstore: job not found")

// ErrTerminal is returned when Cancel is called on a job that has
// already reached a terminal state.
var ErrTerminal = errors.New("jobstore: job already in a terminal state")

// ObjectStore persists job status snapshots and generated artifacts.
// Implemented by internal/objectstore.Store.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// KeyFuncs' StatusKey and ArtifactKey are assigned to internal/objectstore's
// key-naming helpers by the caller that wires a Store together,
// keeping this package free of an import-cycle-prone direct dependency.
type KeyFuncs struct {
	StatusKey   func(jobID string) string
	ArtifactKey func(jobID, filename string) string
}

type entry struct {
	mu          sync.Mutex
	job         *model.Job
	cancel      context.CancelFunc
	queueCancel chan struct{}
}

// Store holds every job this process knows about and runs each job's
// processor on submission.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*entry

	crawlDeps   crawl.Deps
	objectStore ObjectStore
	keys        KeyFuncs
	locker      lock.Locker
	summarizer  compose.Summarizer

	sem chan struct{}
}

// Options configures a new Store.
type Options struct {
	MaxConcurrentJobs int
	CrawlDeps         crawl.Deps
	ObjectStore       ObjectStore // nil disables object-storage persistence
	Keys              KeyFuncs
	Locker            lock.Locker // nil disables the distributed claim lock
	Summarizer        compose.Summarizer
}

// New constructs a Store. A zero MaxConcurrentJobs defaults to 4.
func New(opts Options) *Store {
	max := opts.MaxConcurrentJobs
	if max <= 0 {
		max = 4
	}
	return &Store{
		jobs:        make(map[string]*entry),
		crawlDeps:   opts.CrawlDeps,
		objectStore: opts.ObjectStore,
		keys:        opts.Keys,
		locker:      opts.Locker,
		summarizer:  opts.Summarizer,
		sem:         make(chan struct{}, max),
	}
}

// Submit creates a pending job and starts its processor in the
// background, returning a snapshot of the newly created job.
func (s *Store) Submit(url string, cfg model.CrawlConfig) *model.Job {
	now := time.Now().UTC()
	job := &model.Job{
		ID:        uuid.NewString(),
		URL:       url,
		Config:    cfg,
		Status:    model.StatusPending,
		Phase:     model.PhaseInitializing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	job.AppendLog("job accepted")

	e := &entry{job: job, queueCancel: make(chan struct{})}
	s.mu.Lock()
	s.jobs[job.ID] = e
	s.mu.Unlock()

	s.persist(context.Background(), e)

	go s.run(e)

	return cloneJob(job)
}

// Get returns a snapshot of the job with the given ID: in-memory
// first, falling back to object storage on a miss (e.g. after a
// process restart evicted the job from the map) and repopulating the
// in-memory map from the loaded snapshot.
func (s *Store) Get(ctx context.Context, jobID string) (*model.Job, error) {
	s.mu.RLock()
	e, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		return cloneJob(e.job), nil
	}

	job, err := s.loadAndRepopulate(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return cloneJob(job), nil
}

// loadAndRepopulate fetches a job's persisted status snapshot from
// object storage and inserts it into the in-memory map so subsequent
// Gets hit the fast path. Returns ErrNotFound when object storage is
// unconfigured or the job has no persisted snapshot.
func (s *Store) loadAndRepopulate(ctx context.Context, jobID string) (*model.Job, error) {
	if s.objectStore == nil || s.keys.StatusKey == nil {
		return nil, ErrNotFound
	}

	data, err := s.objectStore.Get(ctx, s.keys.StatusKey(jobID))
	if err != nil {
		return nil, ErrNotFound
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.jobs[jobID]; ok {
		// Repopulated concurrently; prefer whatever is already there.
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.job, nil
	}
	s.jobs[jobID] = &entry{job: &job, queueCancel: make(chan struct{})}
	return &job, nil
}

// Cancel requests cancellation of a non-terminal job. The processor
// observes context cancellation and transitions the job to cancelled.
func (s *Store) Cancel(jobID string) error {
	s.mu.RLock()
	e, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job.Status.Terminal() {
		return ErrTerminal
	}
	if e.cancel != nil {
		e.cancel()
	} else {
		// Never started running (still queued behind the semaphore).
		e.job.Status = model.StatusCancelled
		e.job.UpdatedAt = time.Now().UTC()
		e.job.AppendLog("cancelled before processing started")
		close(e.queueCancel)
	}
	return nil
}

// Artifact returns a finished job's generated file. The job lookup
// itself goes through Get, so a job evicted from memory is first
// repopulated from its persisted status snapshot; the artifact bytes
// then come from object storage when configured, or from the
// in-memory job (the only place they live when it isn't).
func (s *Store) Artifact(ctx context.Context, jobID string, ft model.FileType) ([]byte, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != model.StatusCompleted {
		return nil, fmt.Errorf("jobstore: job %s is not completed", jobID)
	}

	if s.objectStore != nil {
		return s.objectStore.Get(ctx, s.keys.ArtifactKey(jobID, string(ft)))
	}

	if ft == model.FileLLMTxt {
		return []byte(job.LLMTxt), nil
	}
	return []byte(job.LLMSFullTxt), nil
}

func (s *Store) run(e *entry) {
	lockKey := "job:" + e.job.ID
	if s.locker != nil {
		acquired, err := s.locker.TryAcquire(context.Background(), lockKey, 10*time.Minute)
		if err != nil || !acquired {
			return // another instance already owns this job
		}
		defer s.locker.Release(context.Background(), lockKey)
	}

	select {
	case s.sem <- struct{}{}:
	case <-e.queueCancel:
		return
	}
	defer func() { <-s.sem }()

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	if e.job.Status == model.StatusCancelled {
		e.mu.Unlock()
		cancel()
		return
	}
	e.cancel = cancel
	e.mu.Unlock()
	defer cancel()

	s.update(e, func(j *model.Job) {
		j.Status = model.StatusRunning
		j.Phase = model.PhaseCrawling
		j.Progress = 0.1
		j.AppendLog("crawl started")
	})
	s.persist(ctx, e)

	cfg := e.job.Config
	progress := func(currentURL string, pagesSoFar, candidates int) {
		frac := 0.0
		if cfg.MaxPages > 0 {
			frac = float64(pagesSoFar) / float64(cfg.MaxPages)
		}
		if frac > 1 {
			frac = 1
		}
		s.update(e, func(j *model.Job) {
			j.CurrentURL = currentURL
			j.PagesProcessed = pagesSoFar
			j.URLsDiscovered = candidates
			j.Progress = 0.2 + 0.4*frac
		})
	}

	result, err := crawl.Crawl(ctx, e.job.URL, cfg, s.crawlDeps, progress)

	if ctx.Err() != nil {
		s.update(e, func(j *model.Job) {
			j.Status = model.StatusCancelled
			j.AppendLog("job cancelled")
			completeNow(j)
		})
		s.persist(context.Background(), e)
		metrics.RecordJobFinished("cancelled")
		return
	}

	if err != nil {
		s.update(e, func(j *model.Job) {
			j.Status = model.StatusFailed
			j.Error = err.Error()
			j.AppendLog(fmt.Sprintf("crawl failed: %v", err))
			completeNow(j)
		})
		s.persist(context.Background(), e)
		metrics.RecordJobFinished("failed")
		return
	}

	s.update(e, func(j *model.Job) {
		j.PagesCrawled = len(result.Pages)
		j.PagesFailed = len(result.FailedURLs)
		j.PagesBlocked = len(result.BlockedURLs)
		j.Phase = model.PhaseComposing
		j.Progress = 0.7
		j.AppendLog(fmt.Sprintf("crawl finished: %d pages, %d failed, %d blocked", len(result.Pages), len(result.FailedURLs), len(result.BlockedURLs)))
	})
	s.persist(ctx, e)
	metrics.RecordJobPages(len(result.Pages), len(result.FailedURLs), len(result.BlockedURLs))

	if len(result.Pages) == 0 {
		s.update(e, func(j *model.Job) {
			j.Status = model.StatusFailed
			j.Error = "no pages were successfully crawled"
			j.AppendLog("composing skipped: nothing to compose")
			completeNow(j)
		})
		s.persist(context.Background(), e)
		metrics.RecordJobFinished("failed")
		return
	}

	rankPages := make([]rank.Page, 0, len(result.Pages))
	for _, p := range result.Pages {
		rankPages = append(rankPages, rank.Page{URL: p.URL, Title: p.Title, Content: p.PlainText, Depth: p.Depth})
	}
	scored := rank.Rank(rankPages, compose.Clean)

	composePages := make([]compose.Page, 0, len(scored))
	byURL := make(map[string]model.PageRecord, len(result.Pages))
	for _, p := range result.Pages {
		byURL[p.URL] = p
	}
	for _, sc := range scored {
		src := byURL[sc.Page.URL]
		composePages = append(composePages, compose.Page{
			URL:       src.URL,
			Title:     src.Title,
			Depth:     src.Depth,
			Markdown:  src.Markdown,
			PlainText: src.PlainText,
		})
	}

	digest, err := compose.BuildDigest(ctx, composePages, cfg.MaxKB, s.summarizer)
	if err != nil {
		digest = compose.Truncate(compose.BuildFull(composePages), cfg.MaxKB*1024)
	}

	var full string
	if cfg.FullVersion {
		full = compose.BuildFull(composePages)
	}

	if ok, issues := compose.Validate(digest, cfg.MaxKB); !ok {
		s.update(e, func(j *model.Job) {
			j.AppendLog(fmt.Sprintf("digest validation issues: %v", issues))
		})
	}

	if err := s.storeArtifact(ctx, e.job.ID, model.FileLLMTxt, []byte(digest)); err != nil {
		s.update(e, func(j *model.Job) { j.AppendLog(fmt.Sprintf("failed to persist llm.txt: %v", err)) })
	}
	if cfg.FullVersion {
		if err := s.storeArtifact(ctx, e.job.ID, model.FileLLMSFullTxt, []byte(full)); err != nil {
			s.update(e, func(j *model.Job) { j.AppendLog(fmt.Sprintf("failed to persist llms-full.txt: %v", err)) })
		}
	}

	s.update(e, func(j *model.Job) {
		j.Status = model.StatusCompleted
		j.Progress = 1.0
		j.LLMTxtSize = len(digest)
		if cfg.FullVersion {
			j.LLMSFullSize = len(full)
		}
		if s.objectStore == nil {
			j.LLMTxt = digest
			j.LLMSFullTxt = full
		}
		j.LLMTxtURL = "/v1/generations/" + j.ID + "/download/" + string(model.FileLLMTxt)
		if cfg.FullVersion {
			j.LLMSFullTxtURL = "/v1/generations/" + j.ID + "/download/" + string(model.FileLLMSFullTxt)
		}
		j.AppendLog("job completed")
		completeNow(j)
	})
	s.persist(context.Background(), e)
	metrics.RecordJobFinished("completed")
}

func (s *Store) storeArtifact(ctx context.Context, jobID string, ft model.FileType, data []byte) error {
	if s.objectStore == nil || s.keys.ArtifactKey == nil {
		return nil
	}
	return s.objectStore.Put(ctx, s.keys.ArtifactKey(jobID, string(ft)), data, "text/plain; charset=utf-8")
}

func (s *Store) update(e *entry, fn func(*model.Job)) {
	e.mu.Lock()
	fn(e.job)
	e.job.UpdatedAt = time.Now().UTC()
	e.mu.Unlock()
}

func (s *Store) persist(ctx context.Context, e *entry) {
	if s.objectStore == nil || s.keys.StatusKey == nil {
		return
	}
	e.mu.Lock()
	data, err := json.Marshal(e.job)
	id := e.job.ID
	e.mu.Unlock()
	if err != nil {
		return
	}
	_ = s.objectStore.Put(ctx, s.keys.StatusKey(id), data, "application/json")
}

func completeNow(j *model.Job) {
	now := time.Now().UTC()
	j.CompletedAt = &now
}

func cloneJob(j *model.Job) *model.Job {
	cp := *j
	cp.ProcessingLog = append([]model.LogEntry(nil), j.ProcessingLog...)
	return &cp
}
