// Package savequeue coalesces label save requests into batches with at most
// one batch in flight.
//
// A [Queue] is either Idle or Flushing. Enqueueing while Idle starts a flush
// of the pending set. Enqueueing while Flushing only accumulates ids; when the
// in-flight batch completes, the accumulated set is flushed next. No id is
// dropped and no failed save is retried.
//
// Usage:
//
//	q := savequeue.New(ctx, persister, savequeue.Options{Concurrency: 4, Bus: bus})
//	q.Enqueue("image-1", "image-2")
//	if err := q.Wait(ctx); err != nil {
//	    return err
//	}
package savequeue
