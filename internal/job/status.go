package job

import (
	"slices"
	"time"
)

// Status is the lifecycle state of an externally executed job.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the job will not change status again.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job server status codes.
const (
	CodeInactive = 0
	CodeQueued   = 1
	CodeRunning  = 2
	CodeSuccess  = 3
	CodeError    = 4
	CodeCanceled = 5
)

// StatusFromCode maps a job server status code to a Status.
func StatusFromCode(code int) Status {
	switch code {
	case CodeRunning:
		return StatusRunning
	case CodeSuccess:
		return StatusSucceeded
	case CodeError, CodeCanceled:
		return StatusFailed
	default:
		return StatusPending
	}
}

// Job is a job record as returned by the job store.
type Job struct {
	ID      string    `json:"_id"`
	Title   string    `json:"title,omitempty"`
	Type    string    `json:"type,omitempty"`
	Code    int       `json:"status"`
	Updated time.Time `json:"updated"`
	Kwargs  Kwargs    `json:"kwargs"`
}

// Kwargs holds the launch arguments recorded on a job.
type Kwargs struct {
	ContainerArgs []string `json:"container_args,omitempty"`
}

// Status returns the lifecycle state of j.
func (j Job) Status() Status {
	return StatusFromCode(j.Code)
}

// References reports whether id is one of the container arguments.
func (j Job) References(id string) bool {
	return id != "" && slices.Contains(j.Kwargs.ContainerArgs, id)
}

// FindPrevious returns the most recently updated running or succeeded job that
// was launched for folderID. jobs are expected newest first; among equal
// update times the earlier entry wins.
func FindPrevious(jobs []Job, folderID string) (Job, bool) {
	var best Job
	found := false
	for _, j := range jobs {
		s := j.Status()
		if s != StatusRunning && s != StatusSucceeded {
			continue
		}
		if !j.References(folderID) {
			continue
		}
		if !found || j.Updated.After(best.Updated) {
			best = j
			found = true
		}
	}
	return best, found
}
