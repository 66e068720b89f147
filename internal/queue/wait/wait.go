// Package wait turns "block until an entry arrives or the deadline passes"
// into calls against a store. Stores with native blocking are asked to block
// in whole-second slices; anything below a second, and every store without
// native blocking, is covered by polling with exponential backoff.
package wait

import (
	"context"
	"time"
)

// Fetch makes one attempt to obtain an entry.
// block == 0 means return immediately; block > 0 lets the store wait
// natively for up to block. It returns nil, nil when nothing was available.
type Fetch func(ctx context.Context, block time.Duration) ([]byte, error)

// Options configures a Coordinator.
type Options struct {
	// Blocking is true when the store honors the block argument of Fetch.
	Blocking bool

	// PollInterval is the first and smallest sleep between polls.
	PollInterval time.Duration

	// MaxPollInterval caps the exponential backoff between polls.
	MaxPollInterval time.Duration

	// BlockSlice caps a single native blocking call. A cancelled context is
	// noticed at the latest when the current slice ends.
	BlockSlice time.Duration
}

// Default values applied by New for unset options.
const (
	DefaultPollInterval    = 50 * time.Millisecond
	DefaultMaxPollInterval = time.Second
	DefaultBlockSlice      = time.Second
)

// Coordinator runs waits against a single store.
// It holds no per-wait state and is safe for concurrent use.
type Coordinator struct {
	opts Options
}

// New creates a Coordinator, filling in defaults for unset options.
func New(opts Options) *Coordinator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxPollInterval <= 0 {
		opts.MaxPollInterval = DefaultMaxPollInterval
	}
	if opts.MaxPollInterval < opts.PollInterval {
		opts.MaxPollInterval = opts.PollInterval
	}
	if opts.BlockSlice < time.Second {
		opts.BlockSlice = DefaultBlockSlice
	}
	opts.BlockSlice = opts.BlockSlice.Truncate(time.Second)

	return &Coordinator{opts: opts}
}

// Options returns the effective options.
func (c *Coordinator) Options() Options {
	return c.opts
}

// Wait calls fetch until it yields an entry or timeout elapses.
//
// A timeout of zero or less makes exactly one non-blocking attempt.
// Returns nil, nil on timeout, ctx.Err() if the caller's context ends first,
// and any fetch error unchanged.
func (c *Coordinator) Wait(ctx context.Context, timeout time.Duration, fetch Fetch) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if timeout <= 0 {
		return c.attempt(ctx, fetch, 0)
	}

	deadline := time.Now().Add(timeout)
	interval := c.opts.PollInterval

	for {
		block := c.blockFor(time.Until(deadline))

		entry, err := c.attempt(ctx, fetch, block)
		if err != nil || entry != nil {
			return entry, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		if block > 0 {
			// The store already waited; re-plan with what is left.
			continue
		}

		sleep := interval
		if sleep > remaining {
			sleep = remaining
		}
		if err := sleepContext(ctx, sleep); err != nil {
			return nil, err
		}

		interval *= 2
		if interval > c.opts.MaxPollInterval {
			interval = c.opts.MaxPollInterval
		}
	}
}

// blockFor returns how long the next fetch may block natively.
func (c *Coordinator) blockFor(remaining time.Duration) time.Duration {
	if !c.opts.Blocking || remaining < time.Second {
		return 0
	}
	block := remaining.Truncate(time.Second)
	if block > c.opts.BlockSlice {
		block = c.opts.BlockSlice
	}
	return block
}

// attempt runs one fetch, preferring the context error over a store error
// caused by the cancellation.
func (c *Coordinator) attempt(ctx context.Context, fetch Fetch, block time.Duration) ([]byte, error) {
	entry, err := fetch(ctx, block)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return entry, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
