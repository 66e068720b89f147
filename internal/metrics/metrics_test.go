package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveStorage(t *testing.T) {
	success := StorageOperationsTotal.WithLabelValues("test", "op", "success")
	failure := StorageOperationsTotal.WithLabelValues("test", "op", "failure")
	beforeSuccess := testutil.ToFloat64(success)
	beforeFailure := testutil.ToFloat64(failure)

	var err error
	ObserveStorage("test", "op", time.Now(), &err)

	err = errors.New("boom")
	ObserveStorage("test", "op", time.Now(), &err)

	if got := testutil.ToFloat64(success) - beforeSuccess; got != 1 {
		t.Errorf("success count delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(failure) - beforeFailure; got != 1 {
		t.Errorf("failure count delta = %v, want 1", got)
	}
}

func TestObserveStorage_NilPointer(t *testing.T) {
	success := StorageOperationsTotal.WithLabelValues("test", "nil", "success")
	before := testutil.ToFloat64(success)

	ObserveStorage("test", "nil", time.Now(), nil)

	if got := testutil.ToFloat64(success) - before; got != 1 {
		t.Errorf("success count delta = %v, want 1", got)
	}
}
