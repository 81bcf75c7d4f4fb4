package crawler

import "testing"

func TestURLQueuePutGet(t *testing.T) {
	q := NewURLQueue()
	if !q.Empty() {
		t.Fatal("expected empty queue")
	}

	q.Put("http://example.test/a", true)
	if q.Empty() {
		t.Fatal("expected non-empty queue")
	}
	if q.Len() != 1 {
		t.Fatalf("expected len 1, got %d", q.Len())
	}

	item, ok := q.Get()
	if !ok {
		t.Fatal("expected an item")
	}
	if item.URL != "http://example.test/a" || !item.IsSeed {
		t.Fatalf("unexpected item: %+v", item)
	}
	if !q.Empty() {
		t.Fatal("expected empty queue after Get")
	}
}

func TestURLQueuePutIsIdempotentAndKeepsSeedFlag(t *testing.T) {
	q := NewURLQueue()
	q.Put("http://example.test/a", true)
	q.Put("http://example.test/a", false)

	if q.Len() != 1 {
		t.Fatalf("expected dedup, got len %d", q.Len())
	}
	item, ok := q.Get()
	if !ok || !item.IsSeed {
		t.Fatalf("expected first seed flag to survive, got %+v", item)
	}
}

func TestURLQueueGetOnEmpty(t *testing.T) {
	q := NewURLQueue()
	_, ok := q.Get()
	if ok {
		t.Fatal("expected ok=false on empty queue")
	}
}
