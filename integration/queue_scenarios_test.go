package integration

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	goredis "github.com/redis/go-redis/v9"

	"jobqueue-go/internal/queue"
	"jobqueue-go/internal/store"
	memorystore "jobqueue-go/internal/store/memory"
	postgresstore "jobqueue-go/internal/store/postgres"
	redisstore "jobqueue-go/internal/store/redis"
)

// storeFactory opens a fresh store and returns a cleanup function.
type storeFactory func() (store.Store, func())

func memoryFactory() (store.Store, func()) {
	st := memorystore.NewStore()
	return st, func() { _ = st.Close() }
}

func redisFactory() (store.Store, func()) {
	mr, err := miniredis.Run()
	Expect(err).NotTo(HaveOccurred())

	st := redisstore.NewStoreWithClient(goredis.NewClient(&goredis.Options{
		Addr:                  mr.Addr(),
		ContextTimeoutEnabled: true,
	}))
	return st, func() {
		_ = st.Close()
		mr.Close()
	}
}

func postgresFactory() (store.Store, func()) {
	url := os.Getenv("JOBQUEUE_TEST_POSTGRES_URL")
	if url == "" {
		Skip("JOBQUEUE_TEST_POSTGRES_URL not set")
	}

	ctx := context.Background()
	db, err := postgresstore.NewDBFromURL(ctx, url)
	Expect(err).NotTo(HaveOccurred())
	Expect(db.RunMigrations(ctx)).To(Succeed())

	st := postgresstore.NewStore(db)
	return st, func() { _ = st.Close() }
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

var _ = Describe("Queue scenarios on the memory store", func() {
	describeScenarios(memoryFactory)
})

var _ = Describe("Queue scenarios on the redis store", func() {
	describeScenarios(redisFactory)
})

var _ = Describe("Queue scenarios on the postgres store", func() {
	describeScenarios(postgresFactory)
})

func describeScenarios(newStore storeFactory) {
	var (
		q       *queue.Queue
		cleanup func()
		ctx     context.Context
	)

	BeforeEach(func() {
		cleanup = nil

		var st store.Store
		st, cleanup = newStore()
		ctx = context.Background()

		var err error
		q, err = queue.New("test", st, queue.Options{
			// Unique prefix keeps shared stores isolated between specs
			KeyPrefix:       fmt.Sprintf("it-%d", time.Now().UnixNano()),
			PollInterval:    10 * time.Millisecond,
			MaxPollInterval: 100 * time.Millisecond,
			DefaultTimeout:  time.Second,
		}, quietLogger())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if cleanup != nil {
			cleanup()
		}
	})

	Context("when a message is published without an id", func() {
		It("is delivered with the same payload by waitAndTake", func() {
			Expect(q.Publish(ctx, q.NewMessage([]byte("Yeah, tell someone it works!")))).To(Succeed())

			start := time.Now()
			msg, err := q.WaitAndTake(ctx, time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(msg).NotTo(BeNil())
			Expect(string(msg.Payload())).To(Equal("Yeah, tell someone it works!"))
			Expect(msg.ID()).NotTo(BeEmpty())
			Expect(msg.State()).To(Equal(queue.StateFinished))
			Expect(time.Since(start)).To(BeNumerically("<", time.Second))
		})
	})

	Context("when the queue is empty", func() {
		It("waitAndTake returns nothing after the timeout", func() {
			start := time.Now()
			msg, err := q.WaitAndTake(ctx, time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(msg).To(BeNil())
			Expect(time.Since(start)).To(BeNumerically(">=", time.Second))
			Expect(time.Since(start)).To(BeNumerically("<", 3*time.Second))
		})

		It("peek returns an empty list", func() {
			messages, err := q.Peek(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(messages).NotTo(BeNil())
			Expect(messages).To(BeEmpty())
		})
	})

	Context("when the same id is published twice", func() {
		It("delivers the message only once", func() {
			first := queue.NewMessage([]byte("payload"), queue.WithID("test.message"))
			second := queue.NewMessage([]byte("payload"), queue.WithID("test.message"))
			Expect(q.Publish(ctx, first)).To(Succeed())
			Expect(q.Publish(ctx, second)).To(Succeed())
			Expect(first.State()).To(Equal(queue.StatePublished))
			Expect(second.State()).To(Equal(queue.StateNew))

			msg, err := q.WaitAndTake(ctx, time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(msg).NotTo(BeNil())
			Expect(msg.ID()).To(Equal("test.message"))

			msg, err = q.WaitAndTake(ctx, time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(msg).To(BeNil())
		})
	})

	Context("when two messages are published", func() {
		It("peek shows the first one without consuming it", func() {
			Expect(q.Publish(ctx, q.NewMessage([]byte("First message")))).To(Succeed())
			Expect(q.Publish(ctx, q.NewMessage([]byte("Another message")))).To(Succeed())

			for i := 0; i < 2; i++ {
				messages, err := q.Peek(ctx, 1)
				Expect(err).NotTo(HaveOccurred())
				Expect(messages).To(HaveLen(1))
				Expect(string(messages[0].Payload())).To(Equal("First message"))
				Expect(messages[0].State()).To(Equal(queue.StatePublished))
			}
		})
	})

	Context("when a message is reserved", func() {
		It("leaves the ready list and is finished exactly once", func() {
			published := q.NewMessage([]byte("First message"))
			Expect(q.Publish(ctx, published)).To(Succeed())

			reserved, err := q.WaitAndReserve(ctx, time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(reserved).NotTo(BeNil())
			Expect(reserved.ID()).To(Equal(published.ID()))
			Expect(reserved.State()).To(Equal(queue.StateReserved))

			messages, err := q.Peek(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(messages).To(BeEmpty())

			finished, err := q.Finish(ctx, published)
			Expect(err).NotTo(HaveOccurred())
			Expect(finished).To(BeTrue())
			Expect(published.State()).To(Equal(queue.StateFinished))

			finished, err = q.Finish(ctx, reserved)
			Expect(err).NotTo(HaveOccurred())
			Expect(finished).To(BeFalse())
		})
	})

	Context("when many consumers compete", func() {
		It("delivers every message exactly once", func() {
			const total = 40
			for i := 0; i < total; i++ {
				msg := queue.NewMessage([]byte("job"), queue.WithID(fmt.Sprintf("job-%d", i)))
				Expect(q.Publish(ctx, msg)).To(Succeed())
			}

			var (
				mu   sync.Mutex
				seen = make(map[string]int)
				wg   sync.WaitGroup
			)
			for w := 0; w < 4; w++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					for {
						msg, err := q.WaitAndReserve(ctx, 200*time.Millisecond)
						Expect(err).NotTo(HaveOccurred())
						if msg == nil {
							return
						}
						mu.Lock()
						seen[msg.ID()]++
						mu.Unlock()

						finished, err := q.Finish(ctx, msg)
						Expect(err).NotTo(HaveOccurred())
						Expect(finished).To(BeTrue())
					}
				}()
			}
			wg.Wait()

			Expect(seen).To(HaveLen(total))
			for id, n := range seen {
				Expect(n).To(Equal(1), "message %s delivered %d times", id, n)
			}
		})
	})
}
