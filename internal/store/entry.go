package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedEntry is returned when stored bytes cannot be decoded into an Entry.
var ErrMalformedEntry = errors.New("malformed queue entry")

// Entry is the stored form of a queued message.
type Entry struct {
	// ID is the message identifier, also used as the deduplication key.
	ID string `json:"id"`

	// Payload is the opaque message body.
	Payload []byte `json:"payload"`

	// PublishedAt is when the producer published the message.
	PublishedAt time.Time `json:"published_at"`
}

// EncodeEntry serializes an entry for storage.
func EncodeEntry(e *Entry) ([]byte, error) {
	if e.ID == "" {
		return nil, fmt.Errorf("failed to encode entry: %w: empty id", ErrMalformedEntry)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry: %w", err)
	}
	return data, nil
}

// DecodeEntry parses stored bytes back into an Entry.
func DecodeEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEntry, err)
	}
	if e.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrMalformedEntry)
	}
	return &e, nil
}

// EntryID extracts only the id from stored bytes.
func EntryID(data []byte) (string, error) {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEntry, err)
	}
	if head.ID == "" {
		return "", fmt.Errorf("%w: empty id", ErrMalformedEntry)
	}
	return head.ID, nil
}
