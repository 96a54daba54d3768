// Package model contains domain models passed between layers.
package model

import "time"

// TimeLayout is the canonical created_at rendering: UTC, fixed-width
// microseconds. Fixed width keeps lexical and chronological order equal,
// which the store relies on when sorting the text column.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// Field names shared by raw payloads, JSON bodies, and the events table.
const (
	FieldID        = "id"
	FieldCategory  = "category"
	FieldHeadline  = "headline"
	FieldCreatedAt = "created_at"
	FieldSource    = "source"
	FieldPermalink = "permalink"
)

// DefaultCategory labels events whose category is unavailable.
const DefaultCategory = "unknown"

// StatusStored is the acknowledgement returned for every accepted write.
const StatusStored = "stored"

// Event is a normalized record of one ingested item.
// The store owns events for their full lifetime; callers hold copies.
type Event struct {
	ID        string `json:"id" db:"id"`
	Category  string `json:"category" db:"category"`
	Headline  string `json:"headline" db:"headline"`
	CreatedAt string `json:"created_at" db:"created_at"`
	Source    string `json:"source" db:"source"`
	Permalink string `json:"permalink" db:"permalink"`
}

// RawItem is an arbitrary key/value payload prior to normalization: a
// collector item or an externally submitted, possibly partial, event.
type RawItem map[string]any

// Receipt acknowledges a write. It deliberately does not say whether the
// event was new or a duplicate.
type Receipt struct {
	Status string `json:"status"`
}

// FormatTime renders t in the canonical created_at layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Raw returns e as a raw payload, e.g. to resubmit a normalized event.
func (e Event) Raw() RawItem {
	return RawItem{
		FieldID:        e.ID,
		FieldCategory:  e.Category,
		FieldHeadline:  e.Headline,
		FieldCreatedAt: e.CreatedAt,
		FieldSource:    e.Source,
		FieldPermalink: e.Permalink,
	}
}
