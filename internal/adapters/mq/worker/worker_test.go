package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/festrank/internal/adapters/mq/queue"
	"github.com/okian/festrank/internal/adapters/mq/worker"
	"github.com/okian/festrank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPool(t *testing.T) {
	_ = logger.Init()
	ctx := context.Background()

	Convey("Given a pool reading from a queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		var (
			mu   sync.Mutex
			seen = map[string]bool{}
		)
		handler := worker.HandlerFunc(func(ctx context.Context, j queue.Job) error {
			mu.Lock()
			defer mu.Unlock()
			seen[j.SubmissionID] = true
			if j.SubmissionID == "bad" {
				return errors.New("extractor down")
			}
			return nil
		})
		pool := worker.NewPool(q, handler, worker.WithWorkers(3), worker.WithJobTimeout(time.Second))
		So(pool.Size(), ShouldEqual, 3)
		pool.Start(ctx)

		Convey("When jobs are enqueued and the pool shuts down", func() {
			for _, id := range []string{"a", "b", "bad", "c"} {
				So(q.Enqueue(ctx, queue.Job{SubmissionID: id}), ShouldBeNil)
			}
			So(pool.Shutdown(ctx), ShouldBeNil)

			Convey("Then every job should have been handled, failures included", func() {
				mu.Lock()
				defer mu.Unlock()
				So(len(seen), ShouldEqual, 4)
				So(seen["bad"], ShouldBeTrue)
				So(q.IsClosed(), ShouldBeTrue)
			})
		})
	})

	Convey("Given a handler that honours its deadline", t, func() {
		q := queue.NewInMemoryQueue()
		done := make(chan error, 1)
		handler := worker.HandlerFunc(func(ctx context.Context, j queue.Job) error {
			<-ctx.Done()
			done <- ctx.Err()
			return ctx.Err()
		})
		pool := worker.NewPool(q, handler, worker.WithWorkers(1), worker.WithJobTimeout(20*time.Millisecond))
		pool.Start(ctx)
		So(q.Enqueue(ctx, queue.Job{SubmissionID: "slow"}), ShouldBeNil)

		Convey("Then the job context should expire", func() {
			So(errors.Is(<-done, context.DeadlineExceeded), ShouldBeTrue)
			So(pool.Shutdown(ctx), ShouldBeNil)
		})
	})
}
