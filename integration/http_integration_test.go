package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"jobqueue-go/internal/api"
	"jobqueue-go/internal/config"
	"jobqueue-go/internal/queue"
	memorystore "jobqueue-go/internal/store/memory"
)

// apiResponse mirrors the API envelope with a raw data field.
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *api.APIError   `json:"error"`
}

// doRequest performs an HTTP request against the in-process server.
func doRequest(server *api.Server, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return server.App().Test(req, 10_000)
}

// parseResponse parses the JSON envelope and decodes its data into target.
func parseResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	return json.Unmarshal(envelope.Data, target)
}

var _ = Describe("HTTP Integration Tests", Ordered, func() {
	var (
		server     *api.Server
		reservedID string
	)

	BeforeAll(func() {
		logger := quietLogger()
		cfg := config.Default()
		manager := queue.NewManager(memorystore.NewStore(), queue.Options{
			PollInterval:    10 * time.Millisecond,
			MaxPollInterval: 50 * time.Millisecond,
			DefaultTimeout:  time.Second,
		}, logger)

		server = api.NewServer(api.ServerDeps{
			Config:       &cfg.Server,
			Logger:       logger,
			Health:       manager,
			QueueHandler: api.NewQueueHandler(manager, 5*time.Second, logger),
		})
	})

	Describe("Health Check", func() {
		It("should return healthy status", func() {
			resp, err := doRequest(server, "GET", "/healthz", nil)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("Queue API", func() {
		It("should accept a published message", func() {
			resp, err := doRequest(server, "POST", "/v1/queues/orders/messages", map[string]string{
				"id":      "order-42",
				"payload": "ship it",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

			var result api.PublishResponse
			Expect(parseResponse(resp, &result)).To(Succeed())
			Expect(result.ID).To(Equal("order-42"))
			Expect(result.State).To(Equal("published"))
		})

		It("should ignore a duplicate publish", func() {
			resp, err := doRequest(server, "POST", "/v1/queues/orders/messages", map[string]string{
				"id":      "order-42",
				"payload": "ship it",
			})
			Expect(err).NotTo(HaveOccurred())

			var result api.PublishResponse
			Expect(parseResponse(resp, &result)).To(Succeed())
			Expect(result.State).To(Equal("new"))
		})

		It("should peek the published message", func() {
			resp, err := doRequest(server, "GET", "/v1/queues/orders/messages?count=10", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var messages []api.MessageResponse
			Expect(parseResponse(resp, &messages)).To(Succeed())
			Expect(messages).To(HaveLen(1))
			Expect(messages[0].Payload).To(Equal("ship it"))
		})

		It("should reserve the message", func() {
			resp, err := doRequest(server, "POST", "/v1/queues/orders/reserve?timeout=1s", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var msg api.MessageResponse
			Expect(parseResponse(resp, &msg)).To(Succeed())
			Expect(msg.State).To(Equal("reserved"))
			reservedID = msg.ID
		})

		It("should report no content when nothing is ready", func() {
			resp, err := doRequest(server, "POST", "/v1/queues/orders/take?timeout=200ms", nil)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
		})

		It("should finish the reservation once", func() {
			resp, err := doRequest(server, "DELETE", "/v1/queues/orders/reserved/"+reservedID, nil)
			Expect(err).NotTo(HaveOccurred())

			var result map[string]bool
			Expect(parseResponse(resp, &result)).To(Succeed())
			Expect(result["finished"]).To(BeTrue())

			resp, err = doRequest(server, "DELETE", "/v1/queues/orders/reserved/"+reservedID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(parseResponse(resp, &result)).To(Succeed())
			Expect(result["finished"]).To(BeFalse())
		})

		It("should reject an invalid timeout", func() {
			resp, err := doRequest(server, "POST", "/v1/queues/orders/take?timeout=never", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			defer resp.Body.Close()
			var envelope apiResponse
			Expect(json.NewDecoder(resp.Body).Decode(&envelope)).To(Succeed())
			Expect(envelope.Error.Code).To(Equal(api.ErrCodeValidationFailed))
		})
	})
})
