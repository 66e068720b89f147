package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"jobqueue-go/internal/queue"
)

// messageOutput is the JSON line printed for a message.
type messageOutput struct {
	ID          string     `json:"id"`
	Payload     string     `json:"payload"`
	State       string     `json:"state"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

func toOutput(msg *queue.Message) messageOutput {
	out := messageOutput{
		ID:      msg.ID(),
		Payload: string(msg.Payload()),
		State:   msg.State().String(),
	}
	if t := msg.PublishedAt(); !t.IsZero() {
		out.PublishedAt = &t
	}
	return out
}

// withQueue opens the configured store, runs fn against the selected queue
// and closes the store again.
func withQueue(cmd *cobra.Command, opts *options, fn func(ctx context.Context, q *queue.Queue) error) error {
	ctx := cmd.Context()
	logger := NewLogger(&opts.cfg.Logger, cmd.ErrOrStderr())

	manager, err := openManager(ctx, opts.cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = manager.Close() }()

	q, err := manager.Queue(opts.queueName)
	if err != nil {
		return err
	}
	return fn(ctx, q)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	return enc.Encode(v)
}

func newPublishCommand(opts *options) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "publish <payload>",
		Short: "Publish a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueue(cmd, opts, func(ctx context.Context, q *queue.Queue) error {
				msg := q.NewMessage([]byte(args[0]), queue.WithID(id))
				if err := q.Publish(ctx, msg); err != nil {
					return err
				}
				return printJSON(cmd, map[string]string{
					"id":    msg.ID(),
					"state": msg.State().String(),
				})
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "message id (generated when empty)")
	return cmd
}

func newPeekCommand(opts *options) *cobra.Command {
	var (
		count    int
		reserved bool
	)

	cmd := &cobra.Command{
		Use:   "peek",
		Short: "Show messages without removing them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withQueue(cmd, opts, func(ctx context.Context, q *queue.Queue) error {
				peek := q.Peek
				if reserved {
					peek = q.PeekReserved
				}

				messages, err := peek(ctx, count)
				if err != nil {
					return err
				}
				for _, msg := range messages {
					if err := printJSON(cmd, toOutput(msg)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 10, "maximum number of messages")
	cmd.Flags().BoolVar(&reserved, "reserved", false, "show reserved messages instead of ready ones")
	return cmd
}

func newTakeCommand(opts *options) *cobra.Command {
	return newWaitCommand(opts, "take", "Remove and print the next message", (*queue.Queue).WaitAndTake)
}

func newReserveCommand(opts *options) *cobra.Command {
	return newWaitCommand(opts, "reserve", "Reserve and print the next message", (*queue.Queue).WaitAndReserve)
}

func newWaitCommand(opts *options, use, short string, fn func(*queue.Queue, context.Context, time.Duration) (*queue.Message, error)) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withQueue(cmd, opts, func(ctx context.Context, q *queue.Queue) error {
				msg, err := fn(q, ctx, timeout)
				if err != nil {
					return err
				}
				if msg == nil {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "no message")
					return nil
				}
				return printJSON(cmd, toOutput(msg))
			})
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", queue.DefaultTimeout, "how long to wait (negative uses queue.default_timeout)")
	return cmd
}

func newFinishCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "finish <id>",
		Short: "Finish a reserved message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueue(cmd, opts, func(ctx context.Context, q *queue.Queue) error {
				finished, err := q.Finish(ctx, queue.NewMessage(nil, queue.WithID(args[0])))
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]bool{
					"finished": finished,
				})
			})
		},
	}
}

func newCountCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of ready messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withQueue(cmd, opts, func(ctx context.Context, q *queue.Queue) error {
				n, err := q.Count(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]int64{
					"count": n,
				})
			})
		},
	}
}
