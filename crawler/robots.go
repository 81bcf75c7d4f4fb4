package crawler

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/codepr/topiccrawler/fetcher"
)

// robotsTxtPath is the well-known path every host is checked against.
const robotsTxtPath = "/robots.txt"

// RobotsCache holds one parsed robots.txt group per host. A nil entry means
// "no usable robots.txt" (fetch failure, non-200 status or parse error) and
// is treated as fully permissive; its mere presence in the map suppresses
// re-fetching.
type RobotsCache struct {
	mutex      sync.Mutex
	groups     map[string]*robotstxt.Group
	inflight   map[string]chan struct{}
	fetcher    fetcher.Fetcher
	userAgent  string
	fixedDelay time.Duration
	logger     *Logger
}

// NewRobotsCache creates an empty RobotsCache. fixedDelay is the
// DEFAULT_CRAWL_DELAY returned by CrawlDelay when robots.txt is silent on
// the matter.
func NewRobotsCache(f fetcher.Fetcher, userAgent string, fixedDelay time.Duration, logger *Logger) *RobotsCache {
	return &RobotsCache{
		groups:     make(map[string]*robotstxt.Group),
		inflight:   make(map[string]chan struct{}),
		fetcher:    f,
		userAgent:  userAgent,
		fixedDelay: fixedDelay,
		logger:     logger,
	}
}

// CanFetch reports whether the configured user agent is allowed to fetch
// rawURL according to the host's robots.txt. A host without a usable
// robots.txt is always permissive.
func (r *RobotsCache) CanFetch(rawURL string) bool {
	group := r.groupFor(rawURL)
	if group == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	return group.Test(u.RequestURI())
}

// CrawlDelay returns the crawl-delay robots.txt specifies for rawURL's host,
// or the configured default when robots is silent or absent.
func (r *RobotsCache) CrawlDelay(rawURL string) time.Duration {
	group := r.groupFor(rawURL)
	if group == nil || group.CrawlDelay == 0 {
		return r.fixedDelay
	}
	return group.CrawlDelay
}

// groupFor returns the cached robots group for rawURL's host, fetching and
// parsing it synchronously on first access. The network fetch happens
// outside the cache lock; concurrent callers for the same host block on a
// per-host gate rather than redundantly duplicating the fetch.
func (r *RobotsCache) groupFor(rawURL string) *robotstxt.Group {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	host := u.Scheme + "://" + u.Host

	r.mutex.Lock()
	if group, ok := r.groups[host]; ok {
		r.mutex.Unlock()
		return group
	}
	if wait, inflight := r.inflight[host]; inflight {
		r.mutex.Unlock()
		<-wait
		r.mutex.Lock()
		group := r.groups[host]
		r.mutex.Unlock()
		return group
	}
	done := make(chan struct{})
	r.inflight[host] = done
	r.mutex.Unlock()

	group := r.fetchAndParse(host)

	r.mutex.Lock()
	r.groups[host] = group
	delete(r.inflight, host)
	r.mutex.Unlock()
	close(done)

	return group
}

func (r *RobotsCache) fetchAndParse(host string) *robotstxt.Group {
	target := host + robotsTxtPath
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, status, body, err := r.fetcher.Fetch(ctx, target)
	if err != nil || status != 200 {
		if r.logger != nil {
			r.logger.Debug("robots", "no usable robots.txt for %s: status=%d err=%v", host, status, err)
		}
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		if r.logger != nil {
			r.logger.Debug("robots", "failed to parse robots.txt for %s: %v", host, err)
		}
		return nil
	}

	return data.FindGroup(r.userAgent)
}

// Hosts returns the set of hosts for which a robots.txt entry (successful or
// not) has been created, for serialization at shutdown.
func (r *RobotsCache) Hosts() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	hosts := make([]string, 0, len(r.groups))
	for h := range r.groups {
		hosts = append(hosts, h)
	}
	return hosts
}
