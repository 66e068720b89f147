// Package queue implements a reliable at-least-once job queue on top of a
// store.Store. Producers publish messages; consumers either take them
// (at-most-once) or reserve them and finish them once processed
// (at-least-once). All queue state lives in the store, so any number of
// processes sharing a store share the queue.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"jobqueue-go/internal/config"
	"jobqueue-go/internal/metrics"
	"jobqueue-go/internal/queue/wait"
	"jobqueue-go/internal/store"
)

// DefaultTimeout asks a wait operation to use the queue's configured default timeout.
const DefaultTimeout time.Duration = -1

// DefaultKeyPrefix namespaces store keys when Options.KeyPrefix is empty.
const DefaultKeyPrefix = "jobqueue"

const (
	modeTake    = "take"
	modeReserve = "reserve"
)

// Options configures a Queue.
type Options struct {
	// KeyPrefix namespaces every store key.
	KeyPrefix string

	// PollInterval is the minimum polling interval for stores without native blocking.
	PollInterval time.Duration

	// MaxPollInterval caps the polling backoff.
	MaxPollInterval time.Duration

	// DefaultTimeout is used when a wait operation is passed DefaultTimeout.
	DefaultTimeout time.Duration

	// IDFormat selects the generator used by NewMessage.
	IDFormat config.IDFormat
}

// OptionsFromConfig converts the queue section of the configuration.
func OptionsFromConfig(cfg *config.QueueConfig) Options {
	return Options{
		KeyPrefix:       cfg.KeyPrefix,
		PollInterval:    cfg.PollInterval(),
		MaxPollInterval: cfg.MaxPollInterval(),
		DefaultTimeout:  cfg.DefaultTimeout,
		IDFormat:        cfg.IDFormat,
	}
}

// Keys are the store keys backing one named queue.
type Keys struct {
	// Ready is the list of published messages, head first.
	Ready string
	// Reserved is the list of reserved messages, oldest reservation first.
	Reserved string
	// IDs is the set of ids with a live entry in Ready or Reserved.
	IDs string
}

// KeysFor derives the store keys for a queue name.
func KeysFor(prefix, name string) Keys {
	base := prefix + ":" + name
	return Keys{
		Ready:    base + ":messages",
		Reserved: base + ":processing",
		IDs:      base + ":ids",
	}
}

// Queue is a named job queue. It keeps no message state of its own and is
// safe for concurrent use.
type Queue struct {
	name   string
	store  store.Store
	keys   Keys
	opts   Options
	newID  IDGenerator
	waiter *wait.Coordinator
	logger *slog.Logger
}

// New creates a queue named name over st.
func New(name string, st store.Store, opts Options, logger *slog.Logger) (*Queue, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if st == nil {
		return nil, ErrNilStore
	}
	if logger == nil {
		logger = slog.Default()
	}

	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.DefaultTimeout < 0 {
		opts.DefaultTimeout = 0
	}

	waiter := wait.New(wait.Options{
		Blocking:        st.Blocking(),
		PollInterval:    opts.PollInterval,
		MaxPollInterval: opts.MaxPollInterval,
	})
	effective := waiter.Options()
	opts.PollInterval = effective.PollInterval
	opts.MaxPollInterval = effective.MaxPollInterval

	return &Queue{
		name:   name,
		store:  st,
		keys:   KeysFor(opts.KeyPrefix, name),
		opts:   opts,
		newID:  GeneratorFor(opts.IDFormat),
		waiter: waiter,
		logger: logger.With("queue", name),
	}, nil
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Keys returns the store keys used by the queue.
func (q *Queue) Keys() Keys {
	return q.keys
}

// Options returns the effective options.
func (q *Queue) Options() Options {
	return q.opts
}

// NewMessage creates a message using the queue's id format.
func (q *Queue) NewMessage(payload []byte, opts ...MessageOption) *Message {
	return NewMessage(payload, append([]MessageOption{WithIDGenerator(q.newID)}, opts...)...)
}

// Publish stores msg at the tail of the ready list and marks it published.
//
// If a message with the same id is already published or reserved, Publish
// does nothing and msg stays in StateNew. Only store failures are errors.
func (q *Queue) Publish(ctx context.Context, msg *Message) error {
	if msg == nil {
		return ErrNilMessage
	}

	added, err := q.store.AddMember(ctx, q.keys.IDs, msg.ID())
	if err != nil {
		return fmt.Errorf("failed to record message id: %w", err)
	}
	if !added {
		metrics.MessagesDeduplicatedTotal.WithLabelValues(q.name).Inc()
		q.logger.Debug("message already queued, publish ignored", "id", msg.ID())
		return nil
	}

	publishedAt := time.Now().UTC()
	entry, err := store.EncodeEntry(&store.Entry{
		ID:          msg.ID(),
		Payload:     msg.payload,
		PublishedAt: publishedAt,
	})
	if err == nil {
		err = q.store.Append(ctx, q.keys.Ready, entry)
	}
	if err != nil {
		// Release the id so the publish can be retried.
		if rmErr := q.store.RemoveMember(ctx, q.keys.IDs, msg.ID()); rmErr != nil {
			q.logger.Error("failed to release message id after failed publish",
				"id", msg.ID(),
				"error", rmErr,
			)
		}
		return fmt.Errorf("failed to publish message: %w", err)
	}

	msg.publishedAt = publishedAt
	msg.setState(StatePublished)
	metrics.MessagesPublishedTotal.WithLabelValues(q.name).Inc()
	q.logger.Debug("message published", "id", msg.ID())

	return nil
}

// Peek returns up to count ready messages, head first, without removing them.
// The result is never nil.
func (q *Queue) Peek(ctx context.Context, count int) ([]*Message, error) {
	return q.peek(ctx, q.keys.Ready, count, StatePublished)
}

// PeekReserved returns up to count reserved messages, oldest reservation first.
func (q *Queue) PeekReserved(ctx context.Context, count int) ([]*Message, error) {
	return q.peek(ctx, q.keys.Reserved, count, StateReserved)
}

func (q *Queue) peek(ctx context.Context, listKey string, count int, state State) ([]*Message, error) {
	if count <= 0 {
		return []*Message{}, nil
	}

	entries, err := q.store.Range(ctx, listKey, 0, int64(count))
	if err != nil {
		return nil, fmt.Errorf("failed to peek messages: %w", err)
	}

	messages := make([]*Message, 0, len(entries))
	for _, raw := range entries {
		msg, err := q.decode(raw, state)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// WaitAndTake removes and returns the head of the ready list, waiting up to
// timeout for one to arrive. The returned message is in StateFinished and
// its id may be published again.
//
// Returns nil, nil when nothing arrived in time. A timeout of zero makes a
// single attempt; DefaultTimeout uses the configured default.
func (q *Queue) WaitAndTake(ctx context.Context, timeout time.Duration) (*Message, error) {
	raw, err := q.wait(ctx, modeTake, timeout, func(ctx context.Context, block time.Duration) ([]byte, error) {
		return q.store.PopHead(ctx, q.keys.Ready, block)
	})
	if err != nil || raw == nil {
		return nil, err
	}

	msg, err := q.decode(raw, StateFinished)
	if err != nil {
		// The entry has left the store; its id must not stay recorded.
		if id, idErr := store.EntryID(raw); idErr == nil {
			q.releaseID(ctx, id)
		}
		return nil, err
	}

	q.releaseID(ctx, msg.ID())
	metrics.MessagesDeliveredTotal.WithLabelValues(q.name, modeTake).Inc()
	q.logger.Debug("message taken", "id", msg.ID())

	return msg, nil
}

// WaitAndReserve moves the head of the ready list to the reserved list and
// returns it, waiting up to timeout for one to arrive. The message stays
// stored until Finish is called with it.
//
// Timeout handling is the same as WaitAndTake.
func (q *Queue) WaitAndReserve(ctx context.Context, timeout time.Duration) (*Message, error) {
	raw, err := q.wait(ctx, modeReserve, timeout, func(ctx context.Context, block time.Duration) ([]byte, error) {
		return q.store.MoveHead(ctx, q.keys.Ready, q.keys.Reserved, block)
	})
	if err != nil || raw == nil {
		return nil, err
	}

	msg, err := q.decode(raw, StateReserved)
	if err != nil {
		return nil, err
	}

	metrics.MessagesDeliveredTotal.WithLabelValues(q.name, modeReserve).Inc()
	q.logger.Debug("message reserved", "id", msg.ID())

	return msg, nil
}

// Finish deletes the reserved entry with msg's id and releases the id.
// It returns false when no such reservation exists, which includes a
// second Finish of the same message. Of several concurrent calls for one
// reservation, exactly one returns true.
func (q *Queue) Finish(ctx context.Context, msg *Message) (bool, error) {
	if msg == nil {
		return false, ErrNilMessage
	}

	removed, err := q.store.RemoveByID(ctx, q.keys.Reserved, msg.ID())
	if err != nil {
		return false, fmt.Errorf("failed to finish message: %w", err)
	}
	if !removed {
		metrics.MessagesFinishedTotal.WithLabelValues(q.name, "missing").Inc()
		q.logger.Debug("no reservation to finish", "id", msg.ID())
		return false, nil
	}

	q.releaseID(ctx, msg.ID())
	msg.setState(StateFinished)
	metrics.MessagesFinishedTotal.WithLabelValues(q.name, "removed").Inc()
	q.logger.Debug("message finished", "id", msg.ID())

	return true, nil
}

// Count returns the number of ready messages.
func (q *Queue) Count(ctx context.Context) (int64, error) {
	n, err := q.store.Len(ctx, q.keys.Ready)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}

	metrics.QueueDepth.WithLabelValues(q.name).Set(float64(n))
	return n, nil
}

// resolveTimeout maps DefaultTimeout (any negative value) to the configured default.
func (q *Queue) resolveTimeout(timeout time.Duration) time.Duration {
	if timeout < 0 {
		return q.opts.DefaultTimeout
	}
	return timeout
}

func (q *Queue) wait(ctx context.Context, mode string, timeout time.Duration, fetch wait.Fetch) ([]byte, error) {
	start := time.Now()
	raw, err := q.waiter.Wait(ctx, q.resolveTimeout(timeout), fetch)
	metrics.WaitLatency.WithLabelValues(q.name, mode).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to %s message: %w", mode, err)
	}
	if raw == nil {
		metrics.WaitTimeoutsTotal.WithLabelValues(q.name, mode).Inc()
		return nil, nil
	}

	return raw, nil
}

// decode turns a stored entry into a message in the given state.
func (q *Queue) decode(raw []byte, state State) (*Message, error) {
	entry, err := store.DecodeEntry(raw)
	if err != nil {
		metrics.MalformedEntriesTotal.WithLabelValues(q.name).Inc()
		q.logger.Warn("malformed entry in store", "state", state.String(), "error", err)
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}

	return restoreMessage(entry.ID, entry.Payload, entry.PublishedAt, state), nil
}

// releaseID deletes the dedup record of a message that left the store.
// A failure is logged rather than returned: the message is already out of
// the store and must still reach its caller. Until the record is removed,
// publishing the same id is ignored.
func (q *Queue) releaseID(ctx context.Context, id string) {
	if err := q.store.RemoveMember(ctx, q.keys.IDs, id); err != nil {
		q.logger.Error("failed to release message id", "id", id, "error", err)
	}
}
