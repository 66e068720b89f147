// Package integration contains end-to-end tests for the job queue.
// The queue scenarios run against every store that is available: memory and
// an in-process Redis always, PostgreSQL when JOBQUEUE_TEST_POSTGRES_URL is set.
package integration

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "jobqueue Integration Suite")
}
