package crawler

import (
	"sync"

	"github.com/dustin/go-humanize"
)

// CrawledSet records every URL dispatched to a retriever. Insertion is the
// commitment point against the crawl budget: a failed fetch still counts,
// since URLs are attempted at most once. It doubles as the dedup filter the
// extractor consults before re-queueing a discovered link.
type CrawledSet struct {
	mutex   sync.Mutex
	ordered []string
	seen    map[string]struct{}
	budget  int
	logger  *Logger
}

// NewCrawledSet creates a CrawledSet with the given budget. A budget of 0
// means unlimited.
func NewCrawledSet(budget int, logger *Logger) *CrawledSet {
	return &CrawledSet{
		seen:   make(map[string]struct{}),
		budget: budget,
		logger: logger,
	}
}

// Add records url as dispatched and prints a humanized progress tick,
// mirroring the original crawler's "URLs crawled: N/limit" console output.
func (c *CrawledSet) Add(url string) {
	c.mutex.Lock()
	c.ordered = append(c.ordered, url)
	c.seen[url] = struct{}{}
	count := len(c.ordered)
	c.mutex.Unlock()

	if c.logger != nil {
		if c.budget > 0 {
			c.logger.Info("crawled", "%s / %s urls dispatched", humanize.Comma(int64(count)), humanize.Comma(int64(c.budget)))
		} else {
			c.logger.Info("crawled", "%s urls dispatched", humanize.Comma(int64(count)))
		}
	}
}

// Contains reports whether url has already been dispatched.
func (c *CrawledSet) Contains(url string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, ok := c.seen[url]
	return ok
}

// LimitReached reports whether the budget has been met or exceeded. A
// budget of 0 never reaches its limit.
func (c *CrawledSet) LimitReached() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.budget > 0 && len(c.ordered) >= c.budget
}

// Len returns the number of URLs dispatched so far.
func (c *CrawledSet) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.ordered)
}

// URLs returns a copy of the ordered list of dispatched URLs, for
// serialization at shutdown.
func (c *CrawledSet) URLs() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	out := make([]string, len(c.ordered))
	copy(out, c.ordered)
	return out
}
