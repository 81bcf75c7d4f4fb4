package crawler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/codepr/topiccrawler/messaging"
)

type stubClassifier struct {
	result Classification
	err    error
}

func (c stubClassifier) LoadParams(string) error { return nil }

func (c stubClassifier) Classify(url, html string) (Classification, error) {
	return c.result, c.err
}

func newTestExtractor(unprocessed *UnprocessedBuffer, queue *URLQueue, crawled *CrawledSet, blacklist *Blacklist, classifier Classifier, htmlStore *HTMLStore, urlMap *URLMap, monitor *GlobalMonitor) *Extractor {
	e := NewExtractor(0, unprocessed, queue, crawled, blacklist, classifier, htmlStore, urlMap, monitor, discardLogger(), clock.New())
	monitor.RegisterExtractor(e)
	return e
}

// TestExtractorRelativeResolutionAndDedup exercises the relative-resolution
// scenario: a page with absolute, root-relative and path-relative anchors,
// an anchor-only href, and a duplicate, yields the expected deduplicated,
// resolved set of links.
func TestExtractorRelativeResolutionAndDedup(t *testing.T) {
	html := `<html><body>
		<a href="/d">root relative</a>
		<a href="e.html">path relative</a>
		<a href="#top">anchor only</a>
		<a href="http://other.test/f">absolute</a>
		<a href="/d">duplicate</a>
		<a href="mailto:a@b.test">mailto</a>
	</body></html>`

	unprocessed := NewUnprocessedBuffer()
	unprocessed.Push("http://x.test/a/b/c.html", true, []byte(html))
	queue := NewURLQueue()
	crawled := NewCrawledSet(0, nil)
	htmlStore := NewHTMLStore()
	urlMap := NewURLMap()
	monitor := NewGlobalMonitor(0, 1, discardLogger())
	classifier := stubClassifier{result: Classification{Relevant: true, GuessedCategory: "security"}}

	e := newTestExtractor(unprocessed, queue, crawled, nil, classifier, htmlStore, urlMap, monitor)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	e.Run(ctx)

	records := htmlStore.Records()
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	links := records[0].ExtractedURLs
	want := []string{"http://x.test/d", "http://x.test/a/b/e.html", "http://other.test/f"}
	if len(links) != len(want) {
		t.Fatalf("expected %v, got %v", want, links)
	}
	for i, w := range want {
		if links[i] != w {
			t.Errorf("link[%d] = %q, want %q", i, links[i], w)
		}
	}
}

// TestExtractorHonorsNofollowMeta exercises the nofollow scenario: a page
// with a robots nofollow meta tag yields no extracted links even though it
// contains anchors.
func TestExtractorHonorsNofollowMeta(t *testing.T) {
	html := `<html><head><meta name="robots" content="noindex, nofollow"></head>
		<body><a href="/d">link</a></body></html>`

	unprocessed := NewUnprocessedBuffer()
	unprocessed.Push("http://x.test/page", true, []byte(html))
	queue := NewURLQueue()
	crawled := NewCrawledSet(0, nil)
	htmlStore := NewHTMLStore()
	urlMap := NewURLMap()
	monitor := NewGlobalMonitor(0, 1, discardLogger())
	classifier := stubClassifier{result: Classification{Relevant: true, GuessedCategory: "security"}}

	e := newTestExtractor(unprocessed, queue, crawled, nil, classifier, htmlStore, urlMap, monitor)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	e.Run(ctx)

	records := htmlStore.Records()
	if len(records) != 1 || len(records[0].ExtractedURLs) != 0 {
		t.Fatalf("expected no extracted links under nofollow, got %+v", records)
	}
	if queue.Len() != 0 {
		t.Fatalf("expected nothing re-queued under nofollow, got %d", queue.Len())
	}
}

// TestExtractorDropsNotRelevantNonSeedWithoutExtracting exercises the rule
// that a not-relevant, non-seed page is recorded but never mined for links.
func TestExtractorDropsNotRelevantNonSeedWithoutExtracting(t *testing.T) {
	html := `<html><body><a href="/d">link</a></body></html>`

	unprocessed := NewUnprocessedBuffer()
	unprocessed.Push("http://x.test/page", false, []byte(html))
	queue := NewURLQueue()
	crawled := NewCrawledSet(0, nil)
	htmlStore := NewHTMLStore()
	urlMap := NewURLMap()
	monitor := NewGlobalMonitor(0, 1, discardLogger())
	classifier := stubClassifier{result: Classification{Relevant: false, GuessedCategory: notRelevantCategory}}

	e := newTestExtractor(unprocessed, queue, crawled, nil, classifier, htmlStore, urlMap, monitor)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	e.Run(ctx)

	records := htmlStore.Records()
	if len(records) != 1 || len(records[0].ExtractedURLs) != 0 {
		t.Fatalf("expected no extracted links for a not-relevant non-seed page, got %+v", records)
	}
}

// TestExtractorStillExtractsFromNotRelevantSeed exercises the rule that a
// seed page is always mined for links even when classified not relevant.
func TestExtractorStillExtractsFromNotRelevantSeed(t *testing.T) {
	html := `<html><body><a href="/d">link</a></body></html>`

	unprocessed := NewUnprocessedBuffer()
	unprocessed.Push("http://x.test/page", true, []byte(html))
	queue := NewURLQueue()
	crawled := NewCrawledSet(0, nil)
	htmlStore := NewHTMLStore()
	urlMap := NewURLMap()
	monitor := NewGlobalMonitor(0, 1, discardLogger())
	classifier := stubClassifier{result: Classification{Relevant: false, GuessedCategory: notRelevantCategory}}

	e := newTestExtractor(unprocessed, queue, crawled, nil, classifier, htmlStore, urlMap, monitor)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	e.Run(ctx)

	records := htmlStore.Records()
	if len(records) != 1 || len(records[0].ExtractedURLs) != 1 {
		t.Fatalf("expected a seed page to still be mined for links, got %+v", records)
	}
	if queue.Len() != 1 {
		t.Fatalf("expected the extracted link to be re-queued, got %d", queue.Len())
	}
}

// fakeProducer is a messaging.Producer that collects every payload handed
// to it, used to verify an extractor publishes records when one is wired.
type fakeProducer struct {
	payloads [][]byte
}

func (p *fakeProducer) Produce(data []byte) error {
	p.payloads = append(p.payloads, data)
	return nil
}

// TestExtractorPublishesRecordsToProducer exercises the optional
// messaging.Producer wiring: a record is published alongside being stored.
func TestExtractorPublishesRecordsToProducer(t *testing.T) {
	html := `<html><body><a href="/d">link</a></body></html>`

	unprocessed := NewUnprocessedBuffer()
	unprocessed.Push("http://x.test/page", true, []byte(html))
	queue := NewURLQueue()
	crawled := NewCrawledSet(0, nil)
	htmlStore := NewHTMLStore()
	urlMap := NewURLMap()
	monitor := NewGlobalMonitor(0, 1, discardLogger())
	classifier := stubClassifier{result: Classification{Relevant: true, GuessedCategory: "security"}}

	e := newTestExtractor(unprocessed, queue, crawled, nil, classifier, htmlStore, urlMap, monitor)
	var producer messaging.Producer = &fakeProducer{}
	e.SetProducer(producer)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	e.Run(ctx)

	fp := producer.(*fakeProducer)
	if len(fp.payloads) != 1 {
		t.Fatalf("expected one published record, got %d", len(fp.payloads))
	}
	var record HTMLRecord
	if err := json.Unmarshal(fp.payloads[0], &record); err != nil {
		t.Fatalf("published payload did not decode as an HTMLRecord: %v", err)
	}
	if record.URL != "http://x.test/page" || !record.Relevant {
		t.Fatalf("unexpected published record: %+v", record)
	}
}

// TestExtractorDropsBlacklistedLinks exercises blacklist filtering during
// link extraction.
func TestExtractorDropsBlacklistedLinks(t *testing.T) {
	html := `<html><body><a href="http://tracker.test/x">tracked</a><a href="http://ok.test/y">fine</a></body></html>`

	unprocessed := NewUnprocessedBuffer()
	unprocessed.Push("http://x.test/page", true, []byte(html))
	queue := NewURLQueue()
	crawled := NewCrawledSet(0, nil)
	htmlStore := NewHTMLStore()
	urlMap := NewURLMap()
	monitor := NewGlobalMonitor(0, 1, discardLogger())
	classifier := stubClassifier{result: Classification{Relevant: true, GuessedCategory: "security"}}
	blacklist := &Blacklist{MainDomainsPlusTLD: []string{"tracker.test"}}

	e := newTestExtractor(unprocessed, queue, crawled, blacklist, classifier, htmlStore, urlMap, monitor)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	e.Run(ctx)

	records := htmlStore.Records()
	if len(records) != 1 || len(records[0].ExtractedURLs) != 1 || records[0].ExtractedURLs[0] != "http://ok.test/y" {
		t.Fatalf("expected the blacklisted link to be dropped, got %+v", records)
	}
}
