package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/codepr/topiccrawler/messaging"
)

// extractorIdleSleep is how long an extractor sleeps between polls of the
// unprocessed buffer when it finds nothing to do.
const extractorIdleSleep = 100 * time.Millisecond

// extractorClock is the minimal interface Extractor needs from a
// clock.Clock, kept separate from DomainTimers' use so tests can supply a
// plain time.After-backed fake without pulling in benbjohnson/clock.
type extractorClock interface {
	After(time.Duration) <-chan time.Time
}

// Extractor is a worker that pops fetched pages off the unprocessed buffer,
// parses their HTML for outgoing links, classifies the page, records the
// result and re-queues newly discovered, in-scope links.
type Extractor struct {
	id int

	unprocessed *UnprocessedBuffer
	queue       *URLQueue
	crawled     *CrawledSet
	blacklist   *Blacklist
	classifier  Classifier
	htmlStore   *HTMLStore
	urlMap      *URLMap
	monitor     *GlobalMonitor
	logger      *Logger
	clock       extractorClock
	producer    messaging.Producer

	mutex   sync.Mutex
	state   ThreadState
	stopped bool
}

// SetProducer wires an optional messaging.Producer that every HTMLRecord is
// published to (JSON-encoded) as soon as it is recorded, letting a consumer
// stream results out while the crawl is still running instead of waiting for
// the final serialize() pass. A nil producer (the default) disables this.
func (e *Extractor) SetProducer(p messaging.Producer) {
	e.producer = p
}

func (e *Extractor) publish(record HTMLRecord) {
	if e.producer == nil {
		return
	}
	payload, err := json.Marshal(record)
	if err != nil {
		e.logger.Warning("extractor", "#%d failed to encode record for %s: %v", e.id, record.URL, err)
		return
	}
	if err := e.producer.Produce(payload); err != nil {
		e.logger.Warning("extractor", "#%d failed to publish record for %s: %v", e.id, record.URL, err)
	}
}

// NewExtractor creates an Extractor identified by id, wired to the given
// shared stores and classifier. blacklist may be nil, meaning nothing is
// excluded. It must be registered with monitor.RegisterExtractor before Run
// is called from its own goroutine.
func NewExtractor(id int, unprocessed *UnprocessedBuffer, queue *URLQueue, crawled *CrawledSet, blacklist *Blacklist, classifier Classifier, htmlStore *HTMLStore, urlMap *URLMap, monitor *GlobalMonitor, logger *Logger, c extractorClock) *Extractor {
	return &Extractor{
		id:          id,
		unprocessed: unprocessed,
		queue:       queue,
		crawled:     crawled,
		blacklist:   blacklist,
		classifier:  classifier,
		htmlStore:   htmlStore,
		urlMap:      urlMap,
		monitor:     monitor,
		logger:      logger,
		clock:       c,
		state:       StateRunning,
	}
}

// Run executes the extractor's main loop until global quiescence is detected
// or the worker is told to stop. Intended to run in its own goroutine.
func (e *Extractor) Run(ctx context.Context) {
	for {
		if e.isStopped() {
			return
		}

		if e.crawled.LimitReached() && e.unprocessed.Empty() && e.monitor.AllRetrieversIdleOrStopped() {
			e.stop("crawl budget reached, nothing left to extract")
			return
		}
		if e.isQuiescent() {
			e.stop("global quiescence")
			return
		}

		page, ok := e.unprocessed.Pop()
		if !ok {
			e.setIdle()
			select {
			case <-ctx.Done():
				e.stop("context cancelled")
				return
			case <-e.clock.After(extractorIdleSleep):
			}
			continue
		}
		e.setRunning()
		e.process(page)
	}
}

func (e *Extractor) isQuiescent() bool {
	return e.queue.Empty() && e.unprocessed.Empty() &&
		e.monitor.AllRetrieversIdleOrStopped() && e.monitor.AllExtractorsIdleOrStopped()
}

func (e *Extractor) process(page UnprocessedPage) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.HTML))
	if err != nil {
		e.logger.Warning("extractor", "#%d failed to parse %s: %v", e.id, page.URL, err)
		e.htmlStore.Add(HTMLRecord{URL: page.URL, GuessedCategory: notRelevantCategory})
		return
	}

	classification, err := e.classifier.Classify(page.URL, string(page.HTML))
	if err != nil {
		e.logger.Warning("extractor", "#%d classification failed for %s: %v", e.id, page.URL, err)
		classification = Classification{GuessedCategory: notRelevantCategory}
	}

	nofollow := hasNofollowMeta(doc)

	if (!classification.Relevant && !page.IsSeed) || nofollow {
		record := HTMLRecord{
			URL:               page.URL,
			Relevant:          classification.Relevant,
			Distances:         classification.Distances,
			RelativeDistances: classification.RelativeDistances,
			GuessedCategory:   classification.GuessedCategory,
		}
		e.htmlStore.Add(record)
		e.publish(record)
		return
	}

	extracted := e.extractLinks(doc, page.URL)

	record := HTMLRecord{
		URL:               page.URL,
		Relevant:          classification.Relevant,
		ExtractedURLs:     extracted,
		Distances:         classification.Distances,
		RelativeDistances: classification.RelativeDistances,
		GuessedCategory:   classification.GuessedCategory,
	}
	e.htmlStore.Add(record)
	e.publish(record)

	limitReached := e.crawled.LimitReached()
	for _, link := range extracted {
		e.urlMap.Add(page.URL, link)
		if limitReached || e.crawled.Contains(link) {
			continue
		}
		e.queue.Put(link, false)
	}
}

// hasNofollowMeta reports whether the document carries a
// <meta name="robots" content="nofollow"> (or "none") directive, which
// suppresses link extraction for the page regardless of what anchors it
// contains.
func hasNofollowMeta(doc *goquery.Document) bool {
	found := false
	doc.Find(`meta[name="robots"]`).Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok {
			return
		}
		for _, directive := range strings.Split(content, ",") {
			switch strings.ToLower(strings.TrimSpace(directive)) {
			case "nofollow", "none":
				found = true
			}
		}
	})
	return found
}

// schemePrefix recognises a leading "scheme:" on an href, to tell an
// absolute or special-purpose URI (mailto:, javascript:, tel:…) apart from a
// path-relative one.
var schemePrefix = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9+.-]*):`)

// extractLinks walks every anchor in doc, filters and resolves its href
// against baseURL, and returns the deduplicated, in-order list of absolute
// URLs worth considering for re-queueing.
func (e *Extractor) extractLinks(doc *goquery.Document, baseURL string) []string {
	seen := make(map[string]struct{})
	var links []string

	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		if m := schemePrefix.FindStringSubmatch(href); m != nil && !isFetchableScheme(m[1]) {
			return
		}

		candidate := href
		if !IsValidURL(candidate) {
			resolved, ok := resolveRelativeURL(baseURL, href)
			if !ok || !IsValidURL(resolved) {
				return
			}
			candidate = resolved
		}

		if e.blacklist.Contains(candidate) {
			return
		}
		if _, dup := seen[candidate]; dup {
			return
		}
		seen[candidate] = struct{}{}
		links = append(links, candidate)
	})

	return links
}

// resolveRelativeURL joins a base page URL with a path-relative href using a
// deliberately simple, non-RFC-3986 algorithm: an absolute-path href
// replaces the whole path, otherwise it is appended after the parent
// directory of the page's own path.
func resolveRelativeURL(baseURL string, href string) (string, bool) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return "", false
	}

	if strings.HasPrefix(href, "/") {
		return base.Scheme + "://" + base.Host + href, true
	}

	idx := strings.LastIndex(base.Path, "/")
	if idx < 0 {
		return base.Scheme + "://" + base.Host + "/" + href, true
	}
	return base.Scheme + "://" + base.Host + base.Path[:idx+1] + href, true
}

func (e *Extractor) setIdle() {
	e.mutex.Lock()
	prev := e.state
	e.state = StateIdle
	e.mutex.Unlock()
	if prev != StateIdle {
		e.monitor.ExtractorIdle(prev)
	}
}

func (e *Extractor) setRunning() {
	e.mutex.Lock()
	prev := e.state
	e.state = StateRunning
	e.mutex.Unlock()
	if prev != StateRunning {
		e.monitor.ExtractorContinue(prev)
	}
}

func (e *Extractor) isStopped() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.stopped
}

// stop implements the stoppable interface used by GlobalMonitor.StopEverything.
func (e *Extractor) stop(reason string) {
	e.mutex.Lock()
	if e.stopped {
		e.mutex.Unlock()
		return
	}
	prev := e.state
	e.stopped = true
	e.state = StateStopped
	e.mutex.Unlock()

	e.monitor.ExtractorStop(prev)
	e.logger.Debug("extractor", "#%d stopped: %s", e.id, reason)
}
