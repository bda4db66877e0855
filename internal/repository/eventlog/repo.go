// Package eventlog persists detection events as a capped list.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/toxfilter/internal/domain/event"
)

const (
	// DefaultKey is the list key events are stored under.
	DefaultKey = "toxfilter:events"
	// DefaultMaxEntries is the cap past which the oldest events are dropped.
	DefaultMaxEntries = 2000
)

// store is the consumer interface for the event log (ISP).
type store interface {
	RPush(ctx context.Context, key string, values ...[]byte) (int64, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	Del(ctx context.Context, key string) error
}

// Repo is the event log sink. Oldest-first order.
type Repo struct {
	store      store
	key        string
	maxEntries int64
}

// New creates an event log repository. Zero values pick the defaults.
func New(s store, key string, maxEntries int) *Repo {
	if key == "" {
		key = DefaultKey
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Repo{store: s, key: key, maxEntries: int64(maxEntries)}
}

// MaxEntries returns the cap.
func (r *Repo) MaxEntries() int { return int(r.maxEntries) }

// Append stores events and trims the list to the cap.
func (r *Repo) Append(ctx context.Context, events ...event.Event) error {
	if len(events) == 0 {
		return nil
	}
	values := make([][]byte, len(events))
	for i, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		values[i] = data
	}

	n, err := r.store.RPush(ctx, r.key, values...)
	if err != nil {
		return fmt.Errorf("append %s: %w", r.key, err)
	}
	if n > r.maxEntries {
		if err := r.store.LTrim(ctx, r.key, -r.maxEntries, -1); err != nil {
			return fmt.Errorf("trim %s: %w", r.key, err)
		}
	}
	return nil
}

// List returns all stored events, oldest first. Entries that fail to decode are skipped.
func (r *Repo) List(ctx context.Context) ([]event.Event, error) {
	raw, err := r.store.LRange(ctx, r.key, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.key, err)
	}
	events := make([]event.Event, 0, len(raw))
	for _, data := range raw {
		var e event.Event
		if json.Unmarshal(data, &e) != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// Clear removes every event.
func (r *Repo) Clear(ctx context.Context) error {
	if err := r.store.Del(ctx, r.key); err != nil {
		return fmt.Errorf("clear %s: %w", r.key, err)
	}
	return nil
}
