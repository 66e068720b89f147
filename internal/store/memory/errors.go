package memory

import "errors"

// ErrStoreClosed is returned when using a store after Close.
var ErrStoreClosed = errors.New("store is closed")
