package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"llmtxt/internal/compose"
	"llmtxt/internal/config"
	"llmtxt/internal/crawl"
	server "llmtxt/internal/httpapi"
	"llmtxt/internal/jobstore"
	"llmtxt/internal/llm"
	"llmtxt/internal/lock"
	"llmtxt/internal/objectstore"
	"llmtxt/internal/robotscache"
	"llmtxt/internal/sitemap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("no config file loaded (%v), using defaults", err)
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	crawlDeps := crawl.Deps{
		Robots:   robotscache.New(nil, cfg.Crawl.UserAgent),
		Sitemaps: sitemap.New(nil, cfg.Crawl.UserAgent),
	}

	var objStore jobstore.ObjectStore
	var keys jobstore.KeyFuncs
	if cfg.Storage.UseObjectStorage {
		st, err := objectstore.New(context.Background(), objectstore.Options{
			Bucket:   cfg.Storage.Bucket,
			Region:   cfg.Storage.Region,
			Endpoint: cfg.Storage.Endpoint,
		})
		if err != nil {
			log.Fatalf("object storage setup failed: %v", err)
		}
		objStore = st
		keys = jobstore.KeyFuncs{StatusKey: objectstore.StatusKey, ArtifactKey: objectstore.ArtifactKey}
	}

	var locker lock.Locker
	if cfg.Redis.Enabled() {
		l, err := lock.New(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("redis lock setup failed: %v", err)
		}
		locker = l
	}

	var summarizer compose.Summarizer
	if cfg.LLM.Enabled {
		summarizer = llm.New(llm.Options{
			Provider: llm.Provider(cfg.LLM.Provider),
			APIKey:   cfg.LLM.APIKey,
			Model:    cfg.LLM.Model,
			BaseURL:  cfg.LLM.BaseURL,
		})
	}

	store := jobstore.New(jobstore.Options{
		MaxConcurrentJobs: cfg.Worker.MaxConcurrentJobs,
		CrawlDeps:         crawlDeps,
		ObjectStore:       objStore,
		Keys:              keys,
		Locker:            locker,
		Summarizer:        summarizer,
	})

	s := server.NewServer(cfg, store, logger)
	if err := s.Listen(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
