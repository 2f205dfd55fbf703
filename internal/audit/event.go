// Package audit carries customer-facing ledger events from the request path
// to the transaction log without ever blocking the caller.
package audit

import (
	"context"
	"strings"
	"time"
)

const redacted = "********"

var sensitiveKeys = map[string]struct{}{
	"password":         {},
	"confirm_password": {},
	"pin":              {},
	"token":            {},
	"csrf_token":       {},
}

// Event is a single audit record.
type Event struct {
	Actor    string         `json:"actor"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata"`
	At       time.Time      `json:"at"`
}

// Sink accepts events. Implementations must not block and must swallow
// their own failures.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// Publisher forwards events to durable storage.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NewEvent builds an Event with sensitive metadata redacted.
func NewEvent(actor, message string, metadata map[string]any, at time.Time) Event {
	return Event{
		Actor:    actor,
		Message:  message,
		Metadata: Sanitize(metadata),
		At:       at.UTC(),
	}
}

// Sanitize returns a copy of metadata with credential-like values masked.
// Nested maps are sanitized as well.
func Sanitize(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if _, ok := sensitiveKeys[strings.ToLower(k)]; ok {
			out[k] = redacted
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = Sanitize(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// Discard is a Sink that drops everything.
type Discard struct{}

// Emit implements Sink.
func (Discard) Emit(context.Context, Event) {}
