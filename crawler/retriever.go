package crawler

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/codepr/topiccrawler/fetcher"
)

// retrieverIdleSleep is how long a retriever sleeps between polls of the
// queue when it finds nothing to do.
const retrieverIdleSleep = 100 * time.Millisecond

// retrieverFetchTimeout bounds a single HTTP GET.
const retrieverFetchTimeout = 5 * time.Second

// Retriever is a worker that pulls URLs off the shared queue, respects
// robots.txt and per-domain politeness delays, fetches them, and hands the
// raw HTML to the unprocessed buffer for extraction.
type Retriever struct {
	id int

	queue        *URLQueue
	unprocessed  *UnprocessedBuffer
	crawled      *CrawledSet
	robots       *RobotsCache
	domainTimers *DomainTimers
	fetcher      fetcher.Fetcher
	monitor      *GlobalMonitor
	logger       *Logger
	clock        clock.Clock

	mutex   sync.Mutex
	state   ThreadState
	stopped bool
}

// NewRetriever creates a Retriever identified by id, wired to the given
// shared stores. It must be registered with monitor.RegisterRetriever before
// Run is called from its own goroutine.
func NewRetriever(id int, queue *URLQueue, unprocessed *UnprocessedBuffer, crawled *CrawledSet, robots *RobotsCache, domainTimers *DomainTimers, f fetcher.Fetcher, monitor *GlobalMonitor, logger *Logger, c clock.Clock) *Retriever {
	return &Retriever{
		id:           id,
		queue:        queue,
		unprocessed:  unprocessed,
		crawled:      crawled,
		robots:       robots,
		domainTimers: domainTimers,
		fetcher:      f,
		monitor:      monitor,
		logger:       logger,
		clock:        c,
		state:        StateRunning,
	}
}

// Run executes the retriever's main loop until the crawl budget is reached,
// global quiescence is detected, or the worker is told to stop. Intended to
// run in its own goroutine.
func (r *Retriever) Run(ctx context.Context) {
	for {
		if r.isStopped() {
			return
		}

		if r.crawled.LimitReached() {
			r.stop("crawl budget reached")
			return
		}

		if r.isQuiescent() {
			r.stop("global quiescence")
			return
		}

		item, ok := r.queue.Get()
		if !ok {
			r.setIdle()
			select {
			case <-ctx.Done():
				r.stop("context cancelled")
				return
			case <-r.clock.After(retrieverIdleSleep):
			}
			continue
		}

		r.setRunning()
		r.process(ctx, item)
	}
}

// isQuiescent mirrors the Global Monitor's termination predicate: nothing
// queued, nothing awaiting extraction, and no worker of either class still
// RUNNING.
func (r *Retriever) isQuiescent() bool {
	return r.queue.Empty() && r.unprocessed.Empty() &&
		r.monitor.AllRetrieversIdleOrStopped() && r.monitor.AllExtractorsIdleOrStopped()
}

func (r *Retriever) process(ctx context.Context, item QueueItem) {
	// crawled.Add is the budget commitment point: it happens unconditionally,
	// before validity checks or the network round trip, so an invalid or
	// failed attempt still counts against the crawl budget.
	r.crawled.Add(item.URL)

	if !IsValidURL(item.URL) {
		r.logger.Debug("retriever", "#%d discarding invalid url %s", r.id, item.URL)
		return
	}
	u, err := url.Parse(item.URL)
	if err != nil || !isFetchableScheme(u.Scheme) {
		r.logger.Debug("retriever", "#%d discarding unfetchable url %s", r.id, item.URL)
		return
	}

	if !r.robots.CanFetch(item.URL) {
		r.logger.Debug("retriever", "#%d disallowed by robots.txt: %s", r.id, item.URL)
		return
	}

	domain := RegistrableDomain(item.URL)
	delay := r.robots.CrawlDelay(item.URL)
	if wait := r.domainTimers.TimeUntilNextRequest(domain, delay); wait > 0 {
		select {
		case <-ctx.Done():
			return
		case <-r.clock.After(wait):
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, retrieverFetchTimeout)
	_, status, body, err := r.fetcher.Fetch(fetchCtx, item.URL)
	cancel()

	if err != nil {
		r.logger.Error("retriever", "#%d failed to fetch %s: %v", r.id, item.URL, err)
		return
	}
	if status < 200 || status >= 300 {
		r.logger.Error("retriever", "#%d got status %d for %s", r.id, status, item.URL)
		return
	}

	r.domainTimers.SetTimer(domain)
	r.unprocessed.Push(item.URL, item.IsSeed, body)
}

func (r *Retriever) setIdle() {
	r.mutex.Lock()
	prev := r.state
	r.state = StateIdle
	r.mutex.Unlock()
	if prev != StateIdle {
		r.monitor.RetrieverIdle(prev)
	}
}

func (r *Retriever) setRunning() {
	r.mutex.Lock()
	prev := r.state
	r.state = StateRunning
	r.mutex.Unlock()
	if prev != StateRunning {
		r.monitor.RetrieverContinue(prev)
	}
}

func (r *Retriever) isStopped() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.stopped
}

// stop implements the stoppable interface used by GlobalMonitor.StopEverything.
// It is safe to call multiple times and from a goroutine other than Run's.
func (r *Retriever) stop(reason string) {
	r.mutex.Lock()
	if r.stopped {
		r.mutex.Unlock()
		return
	}
	prev := r.state
	r.stopped = true
	r.state = StateStopped
	r.mutex.Unlock()

	r.monitor.RetrieverStop(prev)
	r.logger.Debug("retriever", "#%d stopped: %s", r.id, reason)
}
