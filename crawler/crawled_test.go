package crawler

import "testing"

func TestCrawledSetAddAndContains(t *testing.T) {
	c := NewCrawledSet(0, nil)
	if c.Contains("http://example.test") {
		t.Fatal("expected not contained before Add")
	}
	c.Add("http://example.test")
	if !c.Contains("http://example.test") {
		t.Fatal("expected contained after Add")
	}
	if c.Len() != 1 {
		t.Fatalf("expected len 1, got %d", c.Len())
	}
}

func TestCrawledSetLimitReached(t *testing.T) {
	c := NewCrawledSet(2, nil)
	if c.LimitReached() {
		t.Fatal("expected limit not reached on empty set")
	}
	c.Add("http://example.test/a")
	if c.LimitReached() {
		t.Fatal("expected limit not reached at 1/2")
	}
	c.Add("http://example.test/b")
	if !c.LimitReached() {
		t.Fatal("expected limit reached at 2/2")
	}
}

func TestCrawledSetUnlimitedBudgetNeverReachesLimit(t *testing.T) {
	c := NewCrawledSet(0, nil)
	for i := 0; i < 100; i++ {
		c.Add("http://example.test/" + string(rune('a'+i%26)))
	}
	if c.LimitReached() {
		t.Fatal("expected budget 0 to mean unlimited")
	}
}

func TestCrawledSetURLsPreservesOrder(t *testing.T) {
	c := NewCrawledSet(0, nil)
	c.Add("http://example.test/a")
	c.Add("http://example.test/b")
	urls := c.URLs()
	if len(urls) != 2 || urls[0] != "http://example.test/a" || urls[1] != "http://example.test/b" {
		t.Fatalf("unexpected order: %v", urls)
	}
}
