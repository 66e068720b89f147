package queue

import "errors"

var (
	// ErrEmptyName is returned when a queue is created without a name.
	ErrEmptyName = errors.New("queue name must not be empty")

	// ErrNilStore is returned when a queue is created without a store.
	ErrNilStore = errors.New("queue store must not be nil")

	// ErrNilMessage is returned when an operation is given a nil message.
	ErrNilMessage = errors.New("message must not be nil")
)
