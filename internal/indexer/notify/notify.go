// Package notify publishes indexer completion events. Indexers call back
// while holding their transaction lock, so events are queued and published
// from a separate goroutine.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/txn"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/resilience"
)

// IndexEvent tells searchers that a store's index changed.
type IndexEvent struct {
	Store     repository.StoreRef `json:"store"`
	Remaining int                 `json:"remaining"`
	Error     string              `json:"error,omitempty"`
	Time      time.Time           `json:"time"`
}

// Notifier queues completion callbacks and publishes them as IndexEvents.
type Notifier struct {
	pub    kafka.Publisher
	events chan IndexEvent
	retry  resilience.RetryConfig
	logger *slog.Logger
}

// New creates a Notifier holding at most buffer unpublished events.
func New(pub kafka.Publisher, buffer int) *Notifier {
	if buffer <= 0 {
		buffer = 256
	}
	return &Notifier{
		pub:    pub,
		events: make(chan IndexEvent, buffer),
		retry:  resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second},
		logger: slog.Default().With("component", "index-notifier"),
	}
}

// Callback returns the txn.Callback feeding this notifier. It never blocks:
// when the queue is full the event is dropped, since the next commit on the
// store supersedes it.
func (n *Notifier) Callback() txn.Callback {
	return func(store repository.StoreRef, remaining int, err error) {
		ev := IndexEvent{Store: store, Remaining: remaining, Time: time.Now().UTC()}
		if err != nil {
			ev.Error = err.Error()
		}
		select {
		case n.events <- ev:
		default:
			n.logger.Warn("notification queue full, dropping event", "store", store)
		}
	}
}

// Run publishes queued events until ctx ends, batching whatever is queued
// at each wakeup. A batch that still fails after retries is dropped.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-n.events:
			batch := []kafka.Event{{Key: string(ev.Store), Value: ev}}
		drain:
			for len(batch) < cap(n.events) {
				select {
				case more := <-n.events:
					batch = append(batch, kafka.Event{Key: string(more.Store), Value: more})
				default:
					break drain
				}
			}
			err := resilience.Retry(ctx, "publish index events", n.retry, func() error {
				return n.pub.Publish(ctx, batch...)
			})
			if err != nil {
				n.logger.Error("publishing index events", "count", len(batch), "error", err)
			}
		}
	}
}

// HandleEvents returns a Kafka MessageHandler passing decoded IndexEvents to
// fn. Undecodable messages are logged and skipped.
func HandleEvents(fn func(ctx context.Context, ev IndexEvent) error) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-events")
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[IndexEvent](value)
		if err != nil {
			logger.Error("failed to decode index event", "error", err, "key", string(key))
			return nil
		}
		return fn(ctx, ev)
	}
}
