// Package event provides a pub-sub event bus that lets the session, the save
// queue, the job poller and the CLI observe each other without direct
// dependencies.
//
// # Main Types
//
//   - [Event]: Interface that all events implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub dispatcher, safe for concurrent use
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Job:
//   - [JobStartedEvent]: a job was launched or rerun
//   - [JobStatusChangedEvent]: the poller observed a new status
//   - [JobSucceededEvent]: a watched job finished successfully
//
// Save queue:
//   - [SaveFlushedEvent]: one batch of label saves completed
//
// Workflow:
//   - [StageChangedEvent]: the resolved workflow stage changed
//   - [CategoriesSyncedEvent]: all sources were remapped
//   - [RankingUpdatedEvent]: the review order was recomputed
//   - [CertaintyUnavailableEvent]: no certainty metric could be offered
//   - [AnnotationsChangedEvent]: a store watcher saw annotation files change
//
// Handlers run synchronously on the publishing goroutine. A panicking handler
// is logged and does not stop delivery to the remaining handlers.
//
// # Basic Usage
//
//	bus := event.NewBus(logger)
//	bus.Subscribe(event.TypeJobSucceeded, func(e event.Event) {
//	    done := e.(event.JobSucceededEvent)
//	    fmt.Println("job finished:", done.JobID)
//	})
//	bus.Publish(event.NewJobSucceededEvent("job-1", 3))
package event
