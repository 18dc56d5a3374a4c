// Package workflow derives the current step of the labeling workflow from the
// names of the annotations in the store, and picks which annotations play the
// labels and predictions roles.
package workflow

import (
	"regexp"
	"strconv"
	"sync"
)

// Stage is a step of the labeling workflow.
type Stage int

const (
	// SuperpixelSegmentation: no training run has produced annotations yet.
	SuperpixelSegmentation Stage = iota
	// InitialLabeling: superpixels exist and await the first labels.
	InitialLabeling
	// GuidedLabeling: predictions exist and are reviewed least certain first.
	GuidedLabeling
)

// MaxStage is the last stage; later epochs stay in it.
const MaxStage = GuidedLabeling

// NoEpoch is the epoch before any training run.
const NoEpoch = -1

func (s Stage) String() string {
	switch s {
	case SuperpixelSegmentation:
		return "SuperpixelSegmentation"
	case InitialLabeling:
		return "InitialLabeling"
	case GuidedLabeling:
		return "GuidedLabeling"
	default:
		return "Stage(" + strconv.Itoa(int(s)) + ")"
	}
}

var epochPattern = regexp.MustCompile(`(?i)epoch (\d+)`)

// EpochOf returns the epoch number embedded in an annotation name.
func EpochOf(name string) (int, bool) {
	m := epochPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		// digits that overflow int
		return 0, false
	}
	return n, true
}

// StageFor maps an effective epoch to its stage: min(epoch+1, MaxStage).
func StageFor(epoch int) Stage {
	if epoch < NoEpoch {
		epoch = NoEpoch
	}
	return min(Stage(epoch+1), MaxStage)
}

// Resolve returns the highest epoch marker among names (NoEpoch when there is
// none) and the stage it implies.
func Resolve(names []string) (int, Stage) {
	r := NewResolver()
	r.Observe(names...)
	return r.Result()
}

// Resolver accumulates annotation names across items. Create one per load.
// It is safe for concurrent use.
type Resolver struct {
	mu    sync.Mutex
	epoch int
}

// NewResolver returns a resolver at NoEpoch.
func NewResolver() *Resolver {
	return &Resolver{epoch: NoEpoch}
}

// Observe folds names into the effective epoch.
func (r *Resolver) Observe(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if n, ok := EpochOf(name); ok && n > r.epoch {
			r.epoch = n
		}
	}
}

// Result returns the effective epoch and stage.
func (r *Resolver) Result() (int, Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch, StageFor(r.epoch)
}
