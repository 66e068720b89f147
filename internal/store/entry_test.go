package store

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeEntry(t *testing.T) {
	published := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	data, err := EncodeEntry(&Entry{ID: "job-1", Payload: []byte("hello"), PublishedAt: published})
	if err != nil {
		t.Fatalf("EncodeEntry error: %v", err)
	}

	entry, err := DecodeEntry(data)
	if err != nil {
		t.Fatalf("DecodeEntry error: %v", err)
	}
	if entry.ID != "job-1" {
		t.Errorf("ID = %q, want %q", entry.ID, "job-1")
	}
	if string(entry.Payload) != "hello" {
		t.Errorf("Payload = %q, want %q", entry.Payload, "hello")
	}
	if !entry.PublishedAt.Equal(published) {
		t.Errorf("PublishedAt = %v, want %v", entry.PublishedAt, published)
	}
}

func TestDecodeEntry_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "definitely not json"},
		{name: "missing id", data: `{"payload":"aGk="}`},
		{name: "empty id", data: `{"id":"","payload":"aGk="}`},
		{name: "bad payload encoding", data: `{"id":"x","payload":"%%%"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEntry([]byte(tt.data))
			if !errors.Is(err, ErrMalformedEntry) {
				t.Errorf("DecodeEntry(%q) error = %v, want ErrMalformedEntry", tt.data, err)
			}
		})
	}
}

func TestEncodeEntry_EmptyID(t *testing.T) {
	_, err := EncodeEntry(&Entry{Payload: []byte("x")})
	if !errors.Is(err, ErrMalformedEntry) {
		t.Errorf("EncodeEntry error = %v, want ErrMalformedEntry", err)
	}
}

func TestEntryID(t *testing.T) {
	data, _ := EncodeEntry(&Entry{ID: "abc", Payload: []byte("p")})

	id, err := EntryID(data)
	if err != nil {
		t.Fatalf("EntryID error: %v", err)
	}
	if id != "abc" {
		t.Errorf("EntryID = %q, want %q", id, "abc")
	}

	if _, err := EntryID([]byte("{")); !errors.Is(err, ErrMalformedEntry) {
		t.Errorf("EntryID error = %v, want ErrMalformedEntry", err)
	}
}
