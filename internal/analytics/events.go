// Package analytics collects search and index-build events, batches them to
// Kafka (or straight into an in-process aggregator) and serves the aggregate.
package analytics

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer"
)

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventIndexBuild EventType = "index_build"
)

type SearchEvent struct {
	Type        EventType `json:"type"`
	Query       string    `json:"query"`
	Terms       []string  `json:"terms"`
	Limit       int       `json:"limit"`
	Returned    int       `json:"returned"`
	LatencyMs   int64     `json:"latency_ms"`
	CacheHit    bool      `json:"cache_hit"`
	Fingerprint string    `json:"fingerprint"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id"`
}

// IndexEvent describes one Engine.Build run.
type IndexEvent struct {
	Type        EventType `json:"type"`
	BuildID     string    `json:"build_id"`
	Status      string    `json:"status"`
	Fingerprint string    `json:"fingerprint"`
	Documents   int       `json:"documents"`
	Terms       int       `json:"terms"`
	Postings    int       `json:"postings"`
	Skipped     int       `json:"skipped"`
	DurationMs  int64     `json:"duration_ms"`
	Timestamp   time.Time `json:"timestamp"`
}

// envelope peeks at the type tag of an encoded event.
type envelope struct {
	Type EventType `json:"type"`
}

// BuildEvent describes a finished build.
func BuildEvent(o *indexer.BuildOutcome) IndexEvent {
	return IndexEvent{
		Type:        EventIndexBuild,
		BuildID:     o.BuildID,
		Status:      string(o.Status),
		Fingerprint: o.Stats.Fingerprint,
		Documents:   o.Stats.DocumentCount,
		Terms:       o.Terms,
		Postings:    o.Postings,
		Skipped:     o.Skipped,
		DurationMs:  o.Duration.Milliseconds(),
		Timestamp:   time.Now().UTC(),
	}
}
