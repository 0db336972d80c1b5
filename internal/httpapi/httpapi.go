// Package httpapi implements the HTTP API (component I) on Fiber, the
// same way the teacher wires its server: a locals-injection middleware
// for shared dependencies, a slog-based request/metrics middleware,
// and grouped routes. Handler and create/status shapes are grounded on
// the teacher's crawl handlers, adapted to this service's job model
// (202 on create, not 200 — spec.md requires job creation to be
// asynchronous) and to the digest/full-artifact download endpoints
// spec.md adds.
package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"llmtxt/internal/config"
	"llmtxt/internal/jobstore"
	"llmtxt/internal/metrics"
	"llmtxt/internal/model"
)

// Version is reported by the liveness endpoint.
const Version = "0.1.0"

// Server wraps the Fiber app and its dependencies.
type Server struct {
	app    *fiber.App
	cfg    *config.Config
	store  *jobstore.Store
	logger *slog.Logger
}

// NewServer constructs the Fiber app and registers every route.
func NewServer(cfg *config.Config, store *jobstore.Store, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Use(func(c *fiber.Ctx) error {
		c.Locals("cfg", cfg)
		c.Locals("store", store)
		return c.Next()
	})

	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		method := c.Method()
		path := c.Path()

		metrics.RecordRequest(method, path, status, latency.Milliseconds())

		if logger != nil {
			logger.Info("request",
				"request_id", reqID,
				"method", method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}

		return err
	})

	app.Get("/health", healthzHandler)
	app.Get("/metrics", metricsHandler)

	v1 := app.Group("/v1")
	v1.Post("/generations", generateHandler)
	v1.Get("/generations/:id", jobStatusHandler)
	v1.Get("/generations/:id/download/:file_type", jobDownloadHandler)
	v1.Delete("/generations/:id", jobCancelHandler)

	return &Server{app: app, cfg: cfg, store: store, logger: logger}
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	return s.app.Listen(addr)
}

// Test drives the app in-process, without binding a port. Exposed for
// handler tests, mirroring fiber.App.Test.
func (s *Server) Test(req *http.Request) (*http.Response, error) {
	return s.app.Test(req, -1)
}

func healthzHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"version":   Version,
		"timestamp": time.Now().UTC(),
	})
}

func metricsHandler(c *fiber.Ctx) error {
	c.Type("text/plain")
	return c.SendString(metrics.Export())
}

// generateRequest is the JSON body for POST /v1/generations.
type generateRequest struct {
	URL                 string  `json:"url"`
	MaxPages            int     `json:"max_pages"`
	MaxDepth            int     `json:"max_depth"`
	MaxKB               int     `json:"max_kb"`
	FullVersion         bool    `json:"full_version"`
	RespectRobots       *bool   `json:"respect_robots"`
	RequestDelaySeconds float64 `json:"request_delay_seconds"`
	Language            string  `json:"language"`
}

// validate enforces spec.md §6's input constraints: url must be an
// absolute http/https URL; when provided, max_pages and max_depth must
// fall within their documented ranges.
func (r generateRequest) validate() string {
	parsed, err := url.Parse(r.URL)
	if r.URL == "" || err != nil || !parsed.IsAbs() || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "url must be an absolute http or https URL"
	}
	if r.MaxPages != 0 && (r.MaxPages < 1 || r.MaxPages > 1000) {
		return "max_pages must be between 1 and 1000"
	}
	if r.MaxDepth != 0 && (r.MaxDepth < 1 || r.MaxDepth > 10) {
		return "max_depth must be between 1 and 10"
	}
	return ""
}

// generateHandler creates a job and returns 202 with its initial
// status; spec.md requires generation to be asynchronous, unlike the
// teacher's crawl endpoint which replies once the job is enqueued
// with a 200 and no further identification of the async nature.
func generateHandler(c *fiber.Ctx) error {
	store := c.Locals("store").(*jobstore.Store)
	cfg := c.Locals("cfg").(*config.Config)

	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": "invalid request body"})
	}
	if msg := req.validate(); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": msg})
	}

	crawlCfg := model.CrawlConfig{
		MaxPages:            cfg.Crawl.MaxPages,
		MaxDepth:            cfg.Crawl.MaxDepth,
		RequestDelaySeconds: cfg.Crawl.RequestDelaySeconds,
		UserAgent:           cfg.Crawl.UserAgent,
		RespectRobots:       cfg.Crawl.RespectRobots,
		FollowRedirects:     cfg.Crawl.FollowRedirects,
		TimeoutSeconds:      cfg.Crawl.TimeoutSeconds,
		Language:            cfg.Crawl.Language,
		MaxKB:               cfg.Crawl.MaxKB,
	}
	if req.MaxPages > 0 {
		crawlCfg.MaxPages = req.MaxPages
	}
	if req.MaxDepth > 0 {
		crawlCfg.MaxDepth = req.MaxDepth
	}
	if req.MaxKB > 0 {
		crawlCfg.MaxKB = req.MaxKB
	}
	if req.RequestDelaySeconds > 0 {
		crawlCfg.RequestDelaySeconds = req.RequestDelaySeconds
	}
	if req.Language != "" {
		crawlCfg.Language = req.Language
	}
	crawlCfg.FullVersion = req.FullVersion
	if req.RespectRobots != nil {
		crawlCfg.RespectRobots = *req.RespectRobots
	}

	job := store.Submit(req.URL, crawlCfg)

	return c.Status(fiber.StatusAccepted).JSON(jobResponse(job))
}

func jobStatusHandler(c *fiber.Ctx) error {
	store := c.Locals("store").(*jobstore.Store)

	job, err := store.Get(c.Context(), c.Params("id"))
	if err != nil {
		return notFoundOrError(c, err)
	}

	c.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	c.Set("Pragma", "no-cache")
	c.Set("Expires", "0")

	return c.JSON(jobResponse(job))
}

func jobCancelHandler(c *fiber.Ctx) error {
	store := c.Locals("store").(*jobstore.Store)

	if err := store.Cancel(c.Params("id")); err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"detail": "job not found"})
		}
		if errors.Is(err, jobstore.ErrTerminal) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"detail": "job already finished"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"detail": err.Error()})
	}

	job, err := store.Get(c.Context(), c.Params("id"))
	if err != nil {
		return notFoundOrError(c, err)
	}
	return c.JSON(jobResponse(job))
}

// jobDownloadHandler serves a finished job's artifact. file_type is a
// path segment (llm.txt or llms-full.txt); ?raw=1 returns the artifact
// as a plain-text body instead of a JSON envelope, always with caching
// disabled since artifacts can be regenerated per job.
func jobDownloadHandler(c *fiber.Ctx) error {
	store := c.Locals("store").(*jobstore.Store)

	ft := model.FileType(c.Params("file_type"))
	if !ft.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": "file_type must be llm.txt or llms-full.txt"})
	}

	data, err := store.Artifact(c.Context(), c.Params("id"), ft)
	if err != nil {
		return notFoundOrError(c, err)
	}

	c.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	c.Set("Pragma", "no-cache")
	c.Set("Expires", "0")

	if c.Query("raw") == "1" {
		c.Type("text/plain; charset=utf-8")
		return c.Send(data)
	}

	return c.JSON(fiber.Map{"filename": string(ft), "content": string(data)})
}

func notFoundOrError(c *fiber.Ctx, err error) error {
	if errors.Is(err, jobstore.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"detail": "job not found"})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"detail": err.Error()})
}

func jobResponse(j *model.Job) fiber.Map {
	return fiber.Map{
		"job_id":             j.ID,
		"url":                j.URL,
		"status":             j.Status,
		"phase":              j.Phase,
		"progress":           j.Progress,
		"message":            j.Message,
		"current_url":        j.CurrentURL,
		"urls_discovered":    j.URLsDiscovered,
		"pages_processed":    j.PagesProcessed,
		"pages_crawled":      j.PagesCrawled,
		"pages_failed":       j.PagesFailed,
		"pages_blocked":      j.PagesBlocked,
		"llm_txt_size":       j.LLMTxtSize,
		"llms_full_txt_size": j.LLMSFullSize,
		"processing_log":     j.ProcessingLog,
		"created_at":         j.CreatedAt,
		"updated_at":         j.UpdatedAt,
		"completed_at":       j.CompletedAt,
		"error":              j.Error,
	}
}
