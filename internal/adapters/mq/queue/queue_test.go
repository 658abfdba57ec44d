package queue_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/festrank/internal/adapters/mq/queue"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryQueue(t *testing.T) {
	ctx := context.Background()

	Convey("Given a queue with capacity 2", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(2))

		Convey("When enqueuing within capacity", func() {
			So(q.Enqueue(ctx, queue.Job{SubmissionID: "a"}), ShouldBeNil)
			So(q.Enqueue(ctx, queue.Job{SubmissionID: "b"}), ShouldBeNil)

			Convey("Then jobs should come out in order with a timestamp", func() {
				So(q.Len(), ShouldEqual, 2)
				first := <-q.Dequeue()
				So(first.SubmissionID, ShouldEqual, "a")
				So(first.EnqueuedAt.IsZero(), ShouldBeFalse)
			})

			Convey("And a third job should be rejected", func() {
				err := q.Enqueue(ctx, queue.Job{SubmissionID: "c"})
				So(errors.Is(err, queue.ErrFull), ShouldBeTrue)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			So(errors.Is(q.Enqueue(cctx, queue.Job{}), context.Canceled), ShouldBeTrue)
		})

		Convey("When the queue is closed", func() {
			_ = q.Enqueue(ctx, queue.Job{SubmissionID: "left"})
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)

			Convey("Then enqueue should fail and buffered jobs still drain", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(errors.Is(q.Enqueue(ctx, queue.Job{}), queue.ErrClosed), ShouldBeTrue)
				j, ok := <-q.Dequeue()
				So(ok, ShouldBeTrue)
				So(j.SubmissionID, ShouldEqual, "left")
				_, ok = <-q.Dequeue()
				So(ok, ShouldBeFalse)
			})
		})
	})
}
