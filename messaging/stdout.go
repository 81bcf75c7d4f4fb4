package messaging

import (
	"fmt"
	"io"
)

// StdoutProducer is a Producer that writes each payload as a line to an
// io.Writer, the default decoupled sink a crawl publishes HTMLRecords to
// when no other Producer is configured.
type StdoutProducer struct {
	w io.Writer
}

// NewStdoutProducer creates a StdoutProducer writing to w.
func NewStdoutProducer(w io.Writer) StdoutProducer {
	return StdoutProducer{w: w}
}

// Produce writes data followed by a newline.
func (p StdoutProducer) Produce(data []byte) error {
	_, err := fmt.Fprintf(p.w, "%s\n", data)
	return err
}
