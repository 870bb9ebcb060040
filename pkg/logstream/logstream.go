// Package logstream implements the attempt log pipeline: an ordered,
// append-only sequence of structured entries per attempt, served both as
// historical replay and as a live tail to any number of concurrent readers.
// The store is the source of truth; live readers poll it with an fsnotify
// wakeup on the database directory so that followers in other processes see
// appends promptly without a tight poll loop.
package logstream

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"workbench/pkg/protocol"
	"workbench/pkg/store"
)

// DefaultPollInterval is the fallback poll interval for live followers when
// no filesystem event arrives.
const DefaultPollInterval = 1 * time.Second

// followBatchSize caps how many rows one poll reads.
const followBatchSize = 256

// Pipeline provides append and read access to per-attempt logs.
type Pipeline struct {
	store        *store.Store
	dbPath       string // watched for WAL writes; empty disables fsnotify
	pollInterval time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDBPath enables fsnotify wakeup on the database's directory.
func WithDBPath(path string) Option {
	return func(p *Pipeline) { p.dbPath = path }
}

// WithPollInterval overrides the fallback poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.pollInterval = d }
}

// New creates a Pipeline over the given store.
func New(st *store.Store, opts ...Option) *Pipeline {
	p := &Pipeline{store: st, pollInterval: DefaultPollInterval}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Append writes one entry to an attempt's log and returns its sequence
// number. Sequence numbers are strictly increasing per attempt with no
// gaps; payload must be a JSON object (marshalled by the caller or via
// AppendEvent).
func (p *Pipeline) Append(ctx context.Context, attemptID string, kind protocol.LogKind, payload string, isFinal bool) (int64, error) {
	return p.store.AppendLogEntry(ctx, attemptID, kind, payload, isFinal)
}

// AppendEvent marshals v and appends it as a non-final entry.
func (p *Pipeline) AppendEvent(ctx context.Context, attemptID string, kind protocol.LogKind, v any) (int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshal log payload: %w", err)
	}
	return p.Append(ctx, attemptID, kind, string(data), false)
}

// ReadFrom returns all stored entries with seq > sinceSeq in order. For a
// terminal attempt this is the complete remainder of the log.
func (p *Pipeline) ReadFrom(ctx context.Context, attemptID string, sinceSeq int64) ([]protocol.LogEntry, error) {
	return p.store.ReadLogEntries(ctx, attemptID, sinceSeq, 0)
}

// Follow delivers entries with seq > sinceSeq in order on the returned
// channel: first the historical rows, then live appends, switching at the
// join offset with no gaps or duplicates. The channel closes after the
// entry marked is_final has been delivered, when the attempt is terminal
// and the log has been fully drained (a cancelled-before-running attempt
// has an empty log and no final entry), or when ctx is cancelled. A
// terminal error, if any, is delivered on the error channel before close.
// Followers are independent: each owns its cursor and never interferes with
// other readers or the writer.
func (p *Pipeline) Follow(ctx context.Context, attemptID string, sinceSeq int64) (<-chan protocol.LogEntry, <-chan error) {
	entries := make(chan protocol.LogEntry)
	errc := make(chan error, 1)

	go func() {
		defer close(entries)
		defer close(errc)

		wakeup, stopWatch := p.watchWakeup()
		defer stopWatch()

		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()

		cursor := sinceSeq
		for {
			sawFinal, err := p.deliverPending(ctx, attemptID, &cursor, entries)
			if err != nil {
				if ctx.Err() == nil {
					errc <- err
				}
				return
			}
			if sawFinal {
				return
			}

			// Caught up with no final entry in sight. Once the attempt is
			// terminal nothing further will be appended; drain whatever
			// landed between the read and the status check, then stop.
			att, err := p.store.GetAttempt(ctx, attemptID)
			if err != nil {
				if ctx.Err() == nil {
					errc <- err
				}
				return
			}
			if att.Status.Terminal() {
				if _, err := p.deliverPending(ctx, attemptID, &cursor, entries); err != nil && ctx.Err() == nil {
					errc <- err
				}
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-wakeup:
				// Database changed; drain any queued events and re-poll.
				for len(wakeup) > 0 {
					<-wakeup
				}
			case <-ticker.C:
			}
		}
	}()

	return entries, errc
}

// deliverPending streams every stored row after *cursor to out, advancing
// the cursor past each delivered entry. It reports whether the is_final
// entry was delivered.
func (p *Pipeline) deliverPending(ctx context.Context, attemptID string, cursor *int64, out chan<- protocol.LogEntry) (bool, error) {
	for {
		batch, err := p.store.ReadLogEntries(ctx, attemptID, *cursor, followBatchSize)
		if err != nil {
			return false, err
		}
		for _, e := range batch {
			select {
			case out <- e:
			case <-ctx.Done():
				return false, ctx.Err()
			}
			*cursor = e.Seq
			if e.IsFinal {
				return true, nil
			}
		}
		if len(batch) < followBatchSize {
			return false, nil
		}
	}
}

// watchWakeup starts an fsnotify watcher over the database directory when a
// path is configured. Watching the directory rather than the file catches
// WAL create/write cycles. Falls back to a nil channel (ticker only) when
// watching is unavailable.
func (p *Pipeline) watchWakeup() (chan struct{}, func()) {
	if p.dbPath == "" {
		return nil, func() {}
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, func() {}
	}
	if err := watcher.Add(filepath.Dir(p.dbPath)); err != nil {
		_ = watcher.Close()
		return nil, func() {}
	}

	wakeup := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				select {
				case wakeup <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return wakeup, func() {
		close(done)
		_ = watcher.Close()
	}
}
