// Package crawler implements the concurrent crawling engine: the shared
// stores, the retriever and extractor worker pools, and the global monitor
// that coordinates their termination.
package crawler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dustin/go-humanize"

	"github.com/codepr/topiccrawler/env"
	"github.com/codepr/topiccrawler/fetcher"
	"github.com/codepr/topiccrawler/messaging"
)

const (
	defaultFetchTimeout      time.Duration = 10 * time.Second
	defaultCrawlDelay        time.Duration = 500 * time.Millisecond
	defaultRetrieverThreads  int           = 4
	defaultExtractorThreads  int           = 4
	defaultUserAgent         string        = "Mozilla/5.0 (compatible; topiccrawler/1.0; +https://github.com/codepr/topiccrawler)"
	defaultCrawlingLimit     int           = 0
	defaultOutputDir         string        = "assets"
	outputTimestampLayout    string        = "20060102_150405"
)

// CrawlerSettings collects the tunables of a crawl, filled in by New's
// defaults, overridable through CrawlerOpt, or by NewFromEnv reading the
// process environment.
type CrawlerSettings struct {
	// UserAgent is sent on every HTTP GET and is the agent string matched
	// against robots.txt directives.
	UserAgent string
	// FetchTimeout bounds a single HTTP GET performed by a retriever.
	FetchTimeout time.Duration
	// DefaultCrawlDelay is used when a host's robots.txt is silent on
	// Crawl-delay.
	DefaultCrawlDelay time.Duration
	// NumRetrievers and NumExtractors size the two worker pools.
	NumRetrievers int
	NumExtractors int
	// CrawlingLimit caps the number of URLs dispatched to retrievers; 0
	// means unlimited.
	CrawlingLimit int
	// Classifier backs every extractor's relevance verdicts. Required.
	Classifier Classifier
	// GroundTruthPath is passed to Classifier.LoadParams before the crawl
	// starts.
	GroundTruthPath string
	// Blacklist excludes matching URLs from re-queueing. May be nil.
	Blacklist *Blacklist
	// OutputDir is where the shutdown artifacts (§6 Outputs) are written.
	OutputDir string
	// Logger receives structured progress and error output. Defaults to a
	// Logger writing INFO and above to os.Stderr.
	Logger *Logger
	// Clock backs every time-dependent component; defaults to the real
	// wall clock, overridable in tests with clock.NewMock().
	Clock clock.Clock
	// Producer receives a JSON-encoded HTMLRecord from every extractor as
	// soon as it is recorded, in addition to the final serialize() dump.
	// Defaults to a StdoutProducer. A caller wiring messaging.NewChannelQueue()
	// here must also run a Consume loop, since its Produce blocks on an
	// unbuffered channel.
	Producer messaging.Producer
}

// CrawlerOpt mutates a CrawlerSettings in place, in the option pattern the
// teacher's constructors use.
type CrawlerOpt func(*CrawlerSettings)

// WithClassifier sets the Classifier backing every extractor.
func WithClassifier(c Classifier) CrawlerOpt {
	return func(s *CrawlerSettings) { s.Classifier = c }
}

// WithGroundTruthPath sets the path passed to Classifier.LoadParams.
func WithGroundTruthPath(path string) CrawlerOpt {
	return func(s *CrawlerSettings) { s.GroundTruthPath = path }
}

// WithBlacklist sets the Blacklist consulted by every extractor.
func WithBlacklist(b *Blacklist) CrawlerOpt {
	return func(s *CrawlerSettings) { s.Blacklist = b }
}

// WithOutputDir overrides the directory shutdown artifacts are written to.
func WithOutputDir(dir string) CrawlerOpt {
	return func(s *CrawlerSettings) { s.OutputDir = dir }
}

// WithLogger overrides the Logger used by the supervisor and every worker.
func WithLogger(l *Logger) CrawlerOpt {
	return func(s *CrawlerSettings) { s.Logger = l }
}

// WithClock overrides the clock.Clock every time-dependent component uses.
// Tests pass clock.NewMock(); production leaves the New default.
func WithClock(c clock.Clock) CrawlerOpt {
	return func(s *CrawlerSettings) { s.Clock = c }
}

// WithCrawlingLimit overrides the maximum number of URLs dispatched.
func WithCrawlingLimit(limit int) CrawlerOpt {
	return func(s *CrawlerSettings) { s.CrawlingLimit = limit }
}

// WithWorkerCounts overrides the size of the retriever and extractor pools.
func WithWorkerCounts(retrievers, extractors int) CrawlerOpt {
	return func(s *CrawlerSettings) { s.NumRetrievers = retrievers; s.NumExtractors = extractors }
}

// WithProducer overrides the default StdoutProducer that every extractor
// publishes its HTMLRecords to as they are produced, for a consumer to
// stream alongside the crawl instead of waiting for the shutdown dump.
func WithProducer(p messaging.Producer) CrawlerOpt {
	return func(s *CrawlerSettings) { s.Producer = p }
}

// WebCrawler is the supervisor: it owns the six shared stores, the global
// monitor, and the retriever/extractor worker pools, and is responsible for
// seeding the crawl and serializing its results at shutdown.
type WebCrawler struct {
	settings *CrawlerSettings
	logger   *Logger

	fetcher fetcher.Fetcher

	queue        *URLQueue
	crawled      *CrawledSet
	domainTimers *DomainTimers
	robots       *RobotsCache
	unprocessed  *UnprocessedBuffer
	htmlStore    *HTMLStore
	urlMap       *URLMap
	monitor      *GlobalMonitor
}

// New creates a WebCrawler from explicit settings, applying opts over the
// package defaults.
func New(opts ...CrawlerOpt) (*WebCrawler, error) {
	settings := &CrawlerSettings{
		UserAgent:         defaultUserAgent,
		FetchTimeout:      defaultFetchTimeout,
		DefaultCrawlDelay: defaultCrawlDelay,
		NumRetrievers:     defaultRetrieverThreads,
		NumExtractors:     defaultExtractorThreads,
		CrawlingLimit:     defaultCrawlingLimit,
		OutputDir:         defaultOutputDir,
		Clock:             clock.New(),
	}
	for _, opt := range opts {
		opt(settings)
	}
	if settings.Logger == nil {
		settings.Logger = NewLogger(os.Stderr, LevelInfo, "topiccrawler: ")
	}
	if settings.Producer == nil {
		settings.Producer = messaging.NewStdoutProducer(os.Stdout)
	}
	if settings.Classifier == nil {
		return nil, fmt.Errorf("crawler: a Classifier is required")
	}
	if settings.GroundTruthPath != "" {
		if err := settings.Classifier.LoadParams(settings.GroundTruthPath); err != nil {
			return nil, fmt.Errorf("crawler: loading classifier parameters: %w", err)
		}
	}

	logger := settings.Logger
	f := fetcher.New(settings.UserAgent, settings.FetchTimeout, nil)

	wc := &WebCrawler{
		settings:     settings,
		logger:       logger,
		fetcher:      f,
		queue:        NewURLQueue(),
		crawled:      NewCrawledSet(settings.CrawlingLimit, logger),
		domainTimers: NewDomainTimers(settings.Clock),
		robots:       NewRobotsCache(f, settings.UserAgent, settings.DefaultCrawlDelay, logger),
		unprocessed:  NewUnprocessedBuffer(),
		htmlStore:    NewHTMLStore(),
		urlMap:       NewURLMap(),
	}
	wc.monitor = NewGlobalMonitor(settings.NumRetrievers, settings.NumExtractors, logger)

	return wc, nil
}

// NewFromEnv creates a WebCrawler reading its settings from the process
// environment (three-tier precedence: caller opts win over env vars, env
// vars win over compiled-in defaults).
func NewFromEnv(opts ...CrawlerOpt) (*WebCrawler, error) {
	envOpt := func(s *CrawlerSettings) {
		s.UserAgent = env.GetEnv("CUSTOM_USER_AGENT", defaultUserAgent)
		s.FetchTimeout = env.GetEnvAsDuration("FETCH_TIMEOUT", defaultFetchTimeout)
		s.DefaultCrawlDelay = env.GetEnvAsDuration("DEFAULT_CRAWL_DELAY", defaultCrawlDelay)
		s.NumRetrievers = env.GetEnvAsInt("NUM_RETRIEVER_THREADS", defaultRetrieverThreads)
		s.NumExtractors = env.GetEnvAsInt("NUM_EXTRACTOR_THREADS", defaultExtractorThreads)
		s.CrawlingLimit = env.GetEnvAsInt("CRAWLING_LIMIT", defaultCrawlingLimit)
		s.GroundTruthPath = env.GetEnv("GROUND_TRUTH_VECTORS_FILE", "")
		s.OutputDir = env.GetEnv("OUTPUT_DIR", defaultOutputDir)
	}
	all := append([]CrawlerOpt{envOpt}, opts...)
	return New(all...)
}

// LoadSeeds reads a newline-separated seed URL file (blank lines ignored)
// and inserts every URL into the queue, marked IsSeed=true.
func (c *WebCrawler) LoadSeeds(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reading seed file %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.queue.Put(line, true)
	}
	return scanner.Err()
}

// Run starts the configured number of retriever and extractor goroutines,
// waits for all of them to terminate (budget exhaustion, global quiescence,
// or ctx cancellation), and then serializes the crawl's results into
// OutputDir.
func (c *WebCrawler) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for i := 0; i < c.settings.NumRetrievers; i++ {
		r := NewRetriever(i, c.queue, c.unprocessed, c.crawled, c.robots, c.domainTimers, c.fetcher, c.monitor, c.logger, c.settings.Clock)
		c.monitor.RegisterRetriever(r)
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(ctx)
		}()
	}

	for i := 0; i < c.settings.NumExtractors; i++ {
		e := NewExtractor(i, c.unprocessed, c.queue, c.crawled, c.settings.Blacklist, c.settings.Classifier, c.htmlStore, c.urlMap, c.monitor, c.logger, c.settings.Clock)
		if c.settings.Producer != nil {
			e.SetProducer(c.settings.Producer)
		}
		c.monitor.RegisterExtractor(e)
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Run(ctx)
		}()
	}

	c.logger.Info("supervisor", "crawl started: %d retrievers, %d extractors", c.settings.NumRetrievers, c.settings.NumExtractors)
	start := c.settings.Clock.Now()
	wg.Wait()
	elapsed := c.settings.Clock.Now().Sub(start)

	c.logger.Info("supervisor", "crawl finished in %s: %s urls crawled, %s pages classified relevant",
		elapsed, humanize.Comma(int64(c.crawled.Len())), humanize.Comma(int64(len(c.htmlStore.RelevantURLs()))))

	return c.serialize()
}

// serialize writes every §6 output artifact into OutputDir, named with a
// shared UTC timestamp prefix, mirroring the original crawler's shutdown
// dump.
func (c *WebCrawler) serialize() error {
	if err := os.MkdirAll(c.settings.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir %s: %w", c.settings.OutputDir, err)
	}
	prefix := c.settings.Clock.Now().UTC().Format(outputTimestampLayout)

	if err := writeJSON(c.outputPath(prefix, "html_database.json"), c.htmlStore.Records()); err != nil {
		return err
	}
	if err := writeJSON(c.outputPath(prefix, "unprocessed_html_database.json"), c.unprocessed.Remaining()); err != nil {
		return err
	}
	if err := writeJSON(c.outputPath(prefix, "crawled_urls.json"), c.crawled.URLs()); err != nil {
		return err
	}
	if err := writeJSON(c.outputPath(prefix, "url_map.json"), c.urlMap.Edges()); err != nil {
		return err
	}
	if err := writeJSON(c.outputPath(prefix, "robotstxt.json"), c.robots.Hosts()); err != nil {
		return err
	}

	csvPath := c.outputPath(prefix, "relevant_urls.csv")
	if err := os.WriteFile(csvPath, []byte(strings.Join(c.htmlStore.RelevantURLs(), "\n")), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", csvPath, err)
	}

	c.logger.Info("supervisor", "results written to %s (prefix %s)", c.settings.OutputDir, prefix)
	return nil
}

func (c *WebCrawler) outputPath(prefix, suffix string) string {
	return filepath.Join(c.settings.OutputDir, prefix+"_"+suffix)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
