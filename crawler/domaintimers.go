package crawler

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DomainTimers records the last successful fetch time per registrable
// domain, used to enforce per-domain politeness delays. It is parameterized
// over a clock.Clock rather than calling time.Now() directly so the
// crawl-delay invariant can be tested deterministically with clock.NewMock().
type DomainTimers struct {
	mutex sync.Mutex
	last  map[string]time.Time
	clock clock.Clock
}

// NewDomainTimers creates an empty DomainTimers backed by the given clock.
// Pass clock.New() in production.
func NewDomainTimers(c clock.Clock) *DomainTimers {
	return &DomainTimers{last: make(map[string]time.Time), clock: c}
}

// TimeUntilNextRequest returns how long the caller must wait before the next
// request to domain, given crawlDelay. Returns 0 if no prior request is on
// record or if crawlDelay has already elapsed.
func (t *DomainTimers) TimeUntilNextRequest(domain string, crawlDelay time.Duration) time.Duration {
	t.mutex.Lock()
	last, ok := t.last[domain]
	t.mutex.Unlock()

	if !ok {
		return 0
	}
	elapsed := t.clock.Now().Sub(last)
	wait := crawlDelay - elapsed
	if wait < 0 {
		return 0
	}
	return wait
}

// SetTimer records now as the last fetch time for domain.
func (t *DomainTimers) SetTimer(domain string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.last[domain] = t.clock.Now()
}
