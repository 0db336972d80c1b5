// Command llmtxt is the synchronous CLI entrypoint: it runs one crawl
// and compose cycle in-process and writes the result to disk, for
// local use without standing up the HTTP service. Flags are registered
// on the generate command, and a numeric flag overrides its default
// only when it is set to a positive value.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"llmtxt/internal/compose"
	"llmtxt/internal/crawl"
	"llmtxt/internal/model"
	"llmtxt/internal/rank"
	"llmtxt/internal/robotscache"
	"llmtxt/internal/sitemap"
)

var (
	flagURL      string
	flagOutput   string
	flagFull     bool
	flagMaxPages int
	flagMaxDepth int
	flagMaxKB    int
	flagNoRobots bool
	flagDelay    float64
	flagVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "llmtxt",
	Short: "Generate an llm.txt digest from a documentation site.",
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Crawl a site and write llm.txt (and optionally llms-full.txt)",
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&flagURL, "url", "", "seed URL to crawl (required)")
	generateCmd.Flags().StringVar(&flagOutput, "output", "llm.txt", "output file path")
	generateCmd.Flags().BoolVar(&flagFull, "full", false, "also write the unabridged artifact to <output>.full.txt")
	generateCmd.Flags().IntVar(&flagMaxPages, "max-pages", 0, "maximum pages to crawl (0 uses the default)")
	generateCmd.Flags().IntVar(&flagMaxDepth, "max-depth", 0, "maximum crawl depth (0 uses the default)")
	generateCmd.Flags().IntVar(&flagMaxKB, "max-kb", 0, "digest size budget in KB (0 uses the default)")
	generateCmd.Flags().BoolVar(&flagNoRobots, "no-robots", false, "ignore robots.txt")
	generateCmd.Flags().Float64Var(&flagDelay, "delay", 0, "per-host request delay in seconds (0 uses the default)")
	generateCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "print per-page progress to stderr")
	_ = generateCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(generateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg := model.DefaultCrawlConfig()
	if flagMaxPages > 0 {
		cfg.MaxPages = flagMaxPages
	}
	if flagMaxDepth > 0 {
		cfg.MaxDepth = flagMaxDepth
	}
	if flagMaxKB > 0 {
		cfg.MaxKB = flagMaxKB
	}
	if flagDelay > 0 {
		cfg.RequestDelaySeconds = flagDelay
	}
	if flagNoRobots {
		cfg.RespectRobots = false
	}
	cfg.FullVersion = flagFull

	deps := crawl.Deps{
		Robots:   robotscache.New(nil, cfg.UserAgent),
		Sitemaps: sitemap.New(nil, cfg.UserAgent),
	}

	ctx := context.Background()
	start := time.Now()

	progress := func(currentURL string, pagesSoFar, candidates int) {
		if flagVerbose {
			fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", pagesSoFar, cfg.MaxPages, currentURL)
		}
	}

	result, err := crawl.Crawl(ctx, flagURL, cfg, deps, progress)
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}
	if len(result.Pages) == 0 {
		return fmt.Errorf("no pages were successfully crawled")
	}

	rankPages := make([]rank.Page, 0, len(result.Pages))
	for _, p := range result.Pages {
		rankPages = append(rankPages, rank.Page{URL: p.URL, Title: p.Title, Content: p.PlainText, Depth: p.Depth})
	}
	scored := rank.Rank(rankPages, compose.Clean)

	byURL := make(map[string]model.PageRecord, len(result.Pages))
	for _, p := range result.Pages {
		byURL[p.URL] = p
	}
	composePages := make([]compose.Page, 0, len(scored))
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

	digest, err := compose.BuildDigest(ctx, composePages, cfg.MaxKB, nil)
	if err != nil {
		return fmt.Errorf("compose failed: %w", err)
	}

	if err := os.WriteFile(flagOutput, []byte(digest), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", flagOutput, err)
	}

	if cfg.FullVersion {
		full := compose.BuildFull(composePages)
		fullPath := flagOutput + ".full.txt"
		if err := os.WriteFile(fullPath, []byte(full), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", fullPath, err)
		}
	}

	fmt.Fprintf(os.Stderr, "crawled %d pages (%d failed, %d blocked) in %s, wrote %s\n",
		len(result.Pages), len(result.FailedURLs), len(result.BlockedURLs), time.Since(start).Round(time.Millisecond), flagOutput)

	return nil
}

