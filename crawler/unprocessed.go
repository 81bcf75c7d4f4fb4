package crawler

import "sync"

// UnprocessedPage is a fetched page awaiting extraction.
type UnprocessedPage struct {
	URL    string
	IsSeed bool
	HTML   []byte
}

// UnprocessedBuffer is a LIFO (most-recent-first) stack of fetched pages
// handed off between retrievers and extractors.
type UnprocessedBuffer struct {
	mutex sync.Mutex
	pages []UnprocessedPage
}

// NewUnprocessedBuffer creates an empty UnprocessedBuffer.
func NewUnprocessedBuffer() *UnprocessedBuffer {
	return &UnprocessedBuffer{}
}

// Push appends a newly fetched page.
func (b *UnprocessedBuffer) Push(url string, isSeed bool, html []byte) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.pages = append(b.pages, UnprocessedPage{URL: url, IsSeed: isSeed, HTML: html})
}

// Pop removes and returns the most recently pushed page. ok is false if the
// buffer was empty.
func (b *UnprocessedBuffer) Pop() (page UnprocessedPage, ok bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	n := len(b.pages)
	if n == 0 {
		return UnprocessedPage{}, false
	}
	page = b.pages[n-1]
	b.pages = b.pages[:n-1]
	return page, true
}

// Empty reports whether the buffer currently holds no pages.
func (b *UnprocessedBuffer) Empty() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.pages) == 0
}

// Remaining returns a copy of the pages still waiting for extraction, for
// serialization at shutdown.
func (b *UnprocessedBuffer) Remaining() []UnprocessedPage {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	out := make([]UnprocessedPage, len(b.pages))
	copy(out, b.pages)
	return out
}
