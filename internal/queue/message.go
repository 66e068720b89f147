package queue

import (
	"crypto/rand"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"jobqueue-go/internal/config"
)

// State is the lifecycle position of a message as last observed by its holder.
type State int32

const (
	// StateNew is a message that has not been stored, or whose publish was deduplicated.
	StateNew State = iota
	// StatePublished is a message waiting in the ready list.
	StatePublished
	// StateReserved is a message handed to a consumer that has not finished it yet.
	StateReserved
	// StateFinished is a message whose stored record has been deleted.
	StateFinished
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StatePublished:
		return "published"
	case StateReserved:
		return "reserved"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// IDGenerator returns a fresh, non-empty message id.
type IDGenerator func() string

// NewUUID generates a random UUIDv4 string.
func NewUUID() string {
	return uuid.New().String()
}

var (
	ulidMu      sync.Mutex
	ulidEntropy io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewULID generates a ULID that sorts after every ULID previously returned
// by this process within the same millisecond.
func NewULID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()

	ms := ulid.Timestamp(time.Now())
	id, err := ulid.New(ms, ulidEntropy)
	if err != nil {
		// Monotonic overflow; fall back to plain random entropy.
		id, err = ulid.New(ms, rand.Reader)
		if err != nil {
			return NewUUID()
		}
	}
	return id.String()
}

// GeneratorFor returns the id generator for a configured id format.
// Unknown formats use UUIDs.
func GeneratorFor(format config.IDFormat) IDGenerator {
	if format == config.IDFormatULID {
		return NewULID
	}
	return NewUUID
}

// Message is a unit of work carried by a queue.
// The id and payload never change after construction; the state is updated
// by the queue operations that act on the message.
type Message struct {
	id          string
	payload     []byte
	publishedAt time.Time
	state       atomic.Int32
}

// MessageOption customizes NewMessage.
type MessageOption func(*messageOptions)

type messageOptions struct {
	id    string
	newID IDGenerator
}

// WithID sets an explicit id. An empty id is ignored.
func WithID(id string) MessageOption {
	return func(o *messageOptions) {
		o.id = id
	}
}

// WithIDGenerator sets the generator used when no explicit id is given.
func WithIDGenerator(gen IDGenerator) MessageOption {
	return func(o *messageOptions) {
		if gen != nil {
			o.newID = gen
		}
	}
}

// NewMessage creates a message in StateNew.
// The payload is copied. Without WithID a UUID is generated.
func NewMessage(payload []byte, opts ...MessageOption) *Message {
	o := messageOptions{newID: NewUUID}
	for _, opt := range opts {
		opt(&o)
	}

	id := o.id
	if id == "" {
		id = o.newID()
	}

	return &Message{
		id:      id,
		payload: cloneBytes(payload),
	}
}

// restoreMessage rebuilds a message read back from the store.
func restoreMessage(id string, payload []byte, publishedAt time.Time, state State) *Message {
	m := &Message{
		id:          id,
		payload:     payload,
		publishedAt: publishedAt,
	}
	m.setState(state)
	return m
}

// ID returns the message id.
func (m *Message) ID() string {
	return m.id
}

// Payload returns a copy of the payload.
func (m *Message) Payload() []byte {
	return cloneBytes(m.payload)
}

// PublishedAt returns when the message entered the ready list.
// Zero for messages that have not been read back from the store.
func (m *Message) PublishedAt() time.Time {
	return m.publishedAt
}

// State returns the last observed state.
func (m *Message) State() State {
	return State(m.state.Load())
}

func (m *Message) setState(s State) {
	m.state.Store(int32(s))
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
