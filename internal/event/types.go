package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "job.succeeded", "savequeue.flushed")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeJobStarted           = "job.started"
	TypeJobStatusChanged     = "job.status_changed"
	TypeJobSucceeded         = "job.succeeded"
	TypeSaveFlushed          = "savequeue.flushed"
	TypeStageChanged         = "workflow.stage_changed"
	TypeCategoriesSynced     = "categories.synchronized"
	TypeRankingUpdated       = "ranking.updated"
	TypeAnnotationsChanged   = "annotations.changed"
	TypeCertaintyUnavailable = "certainty.unavailable"
)

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Job Events
// -----------------------------------------------------------------------------

// JobStartedEvent is emitted when a training/inference job is launched or rerun.
type JobStartedEvent struct {
	baseEvent
	JobID string
	Rerun bool
}

// NewJobStartedEvent creates a JobStartedEvent.
func NewJobStartedEvent(jobID string, rerun bool) JobStartedEvent {
	return JobStartedEvent{
		baseEvent: newBaseEvent(TypeJobStarted),
		JobID:     jobID,
		Rerun:     rerun,
	}
}

// JobStatusChangedEvent is emitted by the poller whenever an observed status
// differs from the previous one.
type JobStatusChangedEvent struct {
	baseEvent
	JobID     string
	OldStatus string
	NewStatus string
}

// NewJobStatusChangedEvent creates a JobStatusChangedEvent.
func NewJobStatusChangedEvent(jobID, oldStatus, newStatus string) JobStatusChangedEvent {
	return JobStatusChangedEvent{
		baseEvent: newBaseEvent(TypeJobStatusChanged),
		JobID:     jobID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
	}
}

// JobSucceededEvent is emitted once per watched job when it reaches success.
type JobSucceededEvent struct {
	baseEvent
	JobID string
	Polls int // number of status requests made before success
}

// NewJobSucceededEvent creates a JobSucceededEvent.
func NewJobSucceededEvent(jobID string, polls int) JobSucceededEvent {
	return JobSucceededEvent{
		baseEvent: newBaseEvent(TypeJobSucceeded),
		JobID:     jobID,
		Polls:     polls,
	}
}

// -----------------------------------------------------------------------------
// Save Queue Events
// -----------------------------------------------------------------------------

// SaveFlushedEvent is emitted after every flushed batch.
type SaveFlushedEvent struct {
	baseEvent
	BatchID string
	Saved   []string
	Skipped []string
	Failed  map[string]error
}

// NewSaveFlushedEvent creates a SaveFlushedEvent.
func NewSaveFlushedEvent(batchID string, saved, skipped []string, failed map[string]error) SaveFlushedEvent {
	return SaveFlushedEvent{
		baseEvent: newBaseEvent(TypeSaveFlushed),
		BatchID:   batchID,
		Saved:     saved,
		Skipped:   skipped,
		Failed:    failed,
	}
}

// -----------------------------------------------------------------------------
// Workflow Events
// -----------------------------------------------------------------------------

// StageChangedEvent is emitted when annotation loading resolves a different
// workflow stage than the session had before.
type StageChangedEvent struct {
	baseEvent
	Epoch     int
	FromStage string
	ToStage   string
}

// NewStageChangedEvent creates a StageChangedEvent.
func NewStageChangedEvent(epoch int, from, to string) StageChangedEvent {
	return StageChangedEvent{
		baseEvent: newBaseEvent(TypeStageChanged),
		Epoch:     epoch,
		FromStage: from,
		ToStage:   to,
	}
}

// CategoriesSyncedEvent is emitted after every source was remapped against the
// canonical registry.
type CategoriesSyncedEvent struct {
	baseEvent
	Categories int
	Images     int
}

// NewCategoriesSyncedEvent creates a CategoriesSyncedEvent.
func NewCategoriesSyncedEvent(categories, images int) CategoriesSyncedEvent {
	return CategoriesSyncedEvent{
		baseEvent:  newBaseEvent(TypeCategoriesSynced),
		Categories: categories,
		Images:     images,
	}
}

// RankingUpdatedEvent is emitted after the review order was recomputed.
type RankingUpdatedEvent struct {
	baseEvent
	Records          int
	AverageCertainty float64
}

// NewRankingUpdatedEvent creates a RankingUpdatedEvent.
func NewRankingUpdatedEvent(records int, average float64) RankingUpdatedEvent {
	return RankingUpdatedEvent{
		baseEvent:        newBaseEvent(TypeRankingUpdated),
		Records:          records,
		AverageCertainty: average,
	}
}

// AnnotationsChangedEvent is emitted by store watchers when annotation files
// change outside the session.
type AnnotationsChangedEvent struct {
	baseEvent
	Path string
}

// NewAnnotationsChangedEvent creates an AnnotationsChangedEvent.
func NewAnnotationsChangedEvent(path string) AnnotationsChangedEvent {
	return AnnotationsChangedEvent{
		baseEvent: newBaseEvent(TypeAnnotationsChanged),
		Path:      path,
	}
}

// CertaintyUnavailableEvent is emitted when the job descriptor lists no
// certainty metrics.
type CertaintyUnavailableEvent struct {
	baseEvent
	Image string
}

// NewCertaintyUnavailableEvent creates a CertaintyUnavailableEvent.
func NewCertaintyUnavailableEvent(image string) CertaintyUnavailableEvent {
	return CertaintyUnavailableEvent{
		baseEvent: newBaseEvent(TypeCertaintyUnavailable),
		Image:     image,
	}
}
