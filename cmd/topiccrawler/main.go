// Command topiccrawler runs a topic-focused, budget-bounded web crawl from a
// seed file, writing its results into an output directory.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codepr/topiccrawler/classifier"
	"github.com/codepr/topiccrawler/crawler"
	"github.com/codepr/topiccrawler/env"
	"github.com/codepr/topiccrawler/messaging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		seedFile      string
		blacklistFile string
		groundTruth   string
		outputDir     string
		userAgent     string
		crawlDelay    time.Duration
		retrievers    int
		extractors    int
		limit         int
		quiet         bool
	)

	cmd := &cobra.Command{
		Use:   "topiccrawler",
		Short: "Crawl a seed list of URLs, classifying pages against a topic model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(runConfig{
				seedFile:      seedFile,
				blacklistFile: blacklistFile,
				groundTruth:   groundTruth,
				outputDir:     outputDir,
				userAgent:     userAgent,
				crawlDelay:    crawlDelay,
				retrievers:    retrievers,
				extractors:    extractors,
				limit:         limit,
				quiet:         quiet,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&seedFile, "seed-file", env.GetEnv("SEED_FILE", ""), "path to newline-separated seed URL list")
	flags.StringVar(&blacklistFile, "blacklist-file", env.GetEnv("BLACKLIST_FILE", ""), "path to the blacklist JSON")
	flags.StringVar(&groundTruth, "ground-truth", env.GetEnv("GROUND_TRUTH_VECTORS_FILE", ""), "path to classifier parameters")
	flags.StringVar(&outputDir, "output-dir", env.GetEnv("OUTPUT_DIR", "assets"), "directory outputs are written into")
	flags.StringVar(&userAgent, "user-agent", env.GetEnv("CUSTOM_USER_AGENT", ""), "HTTP User-Agent, also the robots.txt matching agent")
	flags.DurationVar(&crawlDelay, "default-crawl-delay", env.GetEnvAsDuration("DEFAULT_CRAWL_DELAY", 500*time.Millisecond), "delay between requests to the same domain when robots is silent, as a duration such as 500ms or 2s")
	flags.IntVar(&retrievers, "retrievers", env.GetEnvAsInt("NUM_RETRIEVER_THREADS", 4), "count of retriever workers")
	flags.IntVar(&extractors, "extractors", env.GetEnvAsInt("NUM_EXTRACTOR_THREADS", 4), "count of extractor workers")
	flags.IntVar(&limit, "limit", env.GetEnvAsInt("CRAWLING_LIMIT", 0), "max URLs dispatched; 0 = unlimited")
	flags.BoolVar(&quiet, "quiet", false, "suppress the per-record stdout stream, keep only the final output files")

	cmd.MarkFlagRequired("seed-file")
	cmd.MarkFlagRequired("ground-truth")

	return cmd
}

type runConfig struct {
	seedFile      string
	blacklistFile string
	groundTruth   string
	outputDir     string
	userAgent     string
	crawlDelay    time.Duration
	retrievers    int
	extractors    int
	limit         int
	quiet         bool
}

// discardProducer drops every record, backing the --quiet flag.
type discardProducer struct{}

var _ messaging.Producer = discardProducer{}

func (discardProducer) Produce([]byte) error { return nil }

func run(cfg runConfig) error {
	var blacklist *crawler.Blacklist
	if cfg.blacklistFile != "" {
		var err error
		blacklist, err = crawler.LoadBlacklist(cfg.blacklistFile)
		if err != nil {
			return err
		}
	}

	opts := []crawler.CrawlerOpt{
		crawler.WithClassifier(classifier.NewTermOverlapClassifier()),
		crawler.WithGroundTruthPath(cfg.groundTruth),
		crawler.WithBlacklist(blacklist),
		crawler.WithOutputDir(cfg.outputDir),
		crawler.WithCrawlingLimit(cfg.limit),
		crawler.WithWorkerCounts(cfg.retrievers, cfg.extractors),
	}
	if cfg.userAgent != "" {
		opts = append(opts, func(s *crawler.CrawlerSettings) { s.UserAgent = cfg.userAgent })
	}
	if cfg.crawlDelay > 0 {
		opts = append(opts, func(s *crawler.CrawlerSettings) { s.DefaultCrawlDelay = cfg.crawlDelay })
	}
	if cfg.quiet {
		opts = append(opts, crawler.WithProducer(discardProducer{}))
	}

	wc, err := crawler.New(opts...)
	if err != nil {
		return err
	}
	if err := wc.LoadSeeds(cfg.seedFile); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		cancel()
	}()

	return wc.Run(ctx)
}
