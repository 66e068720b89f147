package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"jobqueue-go/internal/queue"
)

const (
	defaultPeekCount = 10
	maxPeekCount     = 1000
)

// QueueHandler handles HTTP requests for queue operations.
type QueueHandler struct {
	manager *queue.Manager
	// maxWait caps the timeout a client may ask take/reserve to wait.
	maxWait time.Duration
	logger  *slog.Logger
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(manager *queue.Manager, maxWait time.Duration, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{
		manager: manager,
		maxWait: maxWait,
		logger:  logger,
	}
}

// PublishRequest is the body of POST /v1/queues/:name/messages.
type PublishRequest struct {
	ID      string  `json:"id,omitempty"`
	Payload *string `json:"payload"`
}

// PublishResponse reports the id and resulting state of a publish.
type PublishResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// MessageResponse is the JSON form of a message.
type MessageResponse struct {
	ID          string     `json:"id"`
	Payload     string     `json:"payload"`
	State       string     `json:"state"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

func toMessageResponse(msg *queue.Message) MessageResponse {
	resp := MessageResponse{
		ID:      msg.ID(),
		Payload: string(msg.Payload()),
		State:   msg.State().String(),
	}
	if t := msg.PublishedAt(); !t.IsZero() {
		resp.PublishedAt = &t
	}
	return resp
}

// Publish handles POST /v1/queues/:name/messages
// A duplicate id is not an error: the response state stays "new".
func (h *QueueHandler) Publish(c *fiber.Ctx) error {
	q, err := h.queue(c)
	if err != nil {
		return ValidationError(c, err.Error())
	}

	var req PublishRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Debug("failed to parse publish body", "error", err)
		return BadRequest(c, "invalid request body")
	}
	if req.Payload == nil {
		return ValidationError(c, "payload is required")
	}

	msg := q.NewMessage([]byte(*req.Payload), queue.WithID(req.ID))
	if err := q.Publish(c.UserContext(), msg); err != nil {
		h.logger.Error("failed to publish message", "error", err, "queue", q.Name(), "id", msg.ID())
		return InternalError(c, "failed to publish message")
	}

	return Accepted(c, PublishResponse{
		ID:    msg.ID(),
		State: msg.State().String(),
	})
}

// Peek handles GET /v1/queues/:name/messages?count=N
func (h *QueueHandler) Peek(c *fiber.Ctx) error {
	return h.peek(c, (*queue.Queue).Peek)
}

// PeekReserved handles GET /v1/queues/:name/reserved?count=N
func (h *QueueHandler) PeekReserved(c *fiber.Ctx) error {
	return h.peek(c, (*queue.Queue).PeekReserved)
}

func (h *QueueHandler) peek(c *fiber.Ctx, fn func(*queue.Queue, context.Context, int) ([]*queue.Message, error)) error {
	q, err := h.queue(c)
	if err != nil {
		return ValidationError(c, err.Error())
	}

	count := c.QueryInt("count", defaultPeekCount)
	if count < 0 || count > maxPeekCount {
		return ValidationError(c, fmt.Sprintf("count must be between 0 and %d", maxPeekCount))
	}

	messages, err := fn(q, c.UserContext(), count)
	if err != nil {
		h.logger.Error("failed to peek messages", "error", err, "queue", q.Name())
		return InternalError(c, "failed to peek messages")
	}

	resp := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		resp = append(resp, toMessageResponse(msg))
	}

	return Success(c, resp)
}

// Take handles POST /v1/queues/:name/take?timeout=1s
// Returns 204 when no message arrived in time.
func (h *QueueHandler) Take(c *fiber.Ctx) error {
	return h.wait(c, "take", (*queue.Queue).WaitAndTake)
}

// Reserve handles POST /v1/queues/:name/reserve?timeout=1s
// Returns 204 when no message arrived in time.
func (h *QueueHandler) Reserve(c *fiber.Ctx) error {
	return h.wait(c, "reserve", (*queue.Queue).WaitAndReserve)
}

func (h *QueueHandler) wait(c *fiber.Ctx, op string, fn func(*queue.Queue, context.Context, time.Duration) (*queue.Message, error)) error {
	q, err := h.queue(c)
	if err != nil {
		return ValidationError(c, err.Error())
	}

	timeout, err := h.parseTimeout(c.Query("timeout"))
	if err != nil {
		return ValidationError(c, err.Error())
	}

	ctx, cancel := waitContext(c)
	defer cancel()

	msg, err := fn(q, ctx, timeout)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			h.logger.Debug(op+" aborted", "queue", q.Name())
			return Error(c, fiber.StatusServiceUnavailable, ErrCodeUnavailable, "server is shutting down")
		}
		h.logger.Error("failed to "+op+" message", "error", err, "queue", q.Name())
		return InternalError(c, "failed to "+op+" message")
	}
	if msg == nil {
		return NoContent(c)
	}

	return Success(c, toMessageResponse(msg))
}

// Finish handles DELETE /v1/queues/:name/reserved/:id
func (h *QueueHandler) Finish(c *fiber.Ctx) error {
	q, err := h.queue(c)
	if err != nil {
		return ValidationError(c, err.Error())
	}

	id := utils.CopyString(c.Params("id"))
	if id == "" {
		return ValidationError(c, "message id is required")
	}

	finished, err := q.Finish(c.UserContext(), queue.NewMessage(nil, queue.WithID(id)))
	if err != nil {
		h.logger.Error("failed to finish message", "error", err, "queue", q.Name(), "id", id)
		return InternalError(c, "failed to finish message")
	}

	return Success(c, map[string]bool{
		"finished": finished,
	})
}

// Count handles GET /v1/queues/:name/count
func (h *QueueHandler) Count(c *fiber.Ctx) error {
	q, err := h.queue(c)
	if err != nil {
		return ValidationError(c, err.Error())
	}

	n, err := q.Count(c.UserContext())
	if err != nil {
		h.logger.Error("failed to count messages", "error", err, "queue", q.Name())
		return InternalError(c, "failed to count messages")
	}

	return Success(c, map[string]int64{
		"count": n,
	})
}

func (h *QueueHandler) queue(c *fiber.Ctx) (*queue.Queue, error) {
	// Params point into the request buffer, which fasthttp reuses.
	q, err := h.manager.Queue(utils.CopyString(c.Params("name")))
	if err != nil {
		if errors.Is(err, queue.ErrEmptyName) {
			return nil, errors.New("queue name is required")
		}
		return nil, err
	}
	return q, nil
}

// waitContext derives the context of a take or reserve wait. It is
// cancelled when the server shuts down, so pending waits return before
// the listener stops. A client that disconnects is not detected: its wait
// runs until the timeout, bounded by maxWait.
func waitContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(c.UserContext())
	stop := context.AfterFunc(c.Context(), cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// parseTimeout accepts a Go duration ("1.5s") or a number of seconds ("2").
// An empty value selects the queue's default timeout.
func (h *QueueHandler) parseTimeout(raw string) (time.Duration, error) {
	if raw == "" {
		return queue.DefaultTimeout, nil
	}

	timeout, err := time.ParseDuration(raw)
	if err != nil {
		seconds, convErr := strconv.ParseFloat(raw, 64)
		if convErr != nil {
			return 0, fmt.Errorf("invalid timeout %q", raw)
		}
		timeout = time.Duration(seconds * float64(time.Second))
	}

	if timeout < 0 {
		return 0, errors.New("timeout must not be negative")
	}
	if h.maxWait > 0 && timeout > h.maxWait {
		return 0, fmt.Errorf("timeout must not exceed %s", h.maxWait)
	}
	return timeout, nil
}
