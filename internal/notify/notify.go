// Package notify defines the fire-and-forget user notification sink.
// Delivery is an external concern; failures are logged and never fatal to
// scheduling.
package notify

import (
	"fmt"
	"io"
)

// Sink delivers a user-visible notification.
type Sink interface {
	Send(title, body, id string) error
}

// WriterSink prints notifications to a writer (typically stderr); the
// default sink for the CLI.
type WriterSink struct {
	W io.Writer
}

// Send writes the notification as a single annotated line.
func (s WriterSink) Send(title, body, id string) error {
	_, err := fmt.Fprintf(s.W, "[notification %s] %s: %s\n", id, title, body)
	return err
}

// Discard drops all notifications; used in tests.
type Discard struct{}

func (Discard) Send(title, body, id string) error { return nil }
