package recovery

import (
	"time"

	"github.com/yoyostream/transcoderd/internal/schedule"
)

// State is where an artifact is in the recovery pipeline.
type State string

const (
	StateGrowing   State = "growing"
	StateStalled   State = "stalled"
	StatePlayable  State = "playable"
	StateCorrupt   State = "corrupt"
	StateRepaired  State = "repaired"
	StateFinalized State = "finalized"
)

// Kind says which fix an artifact needs.
type Kind string

const (
	KindTemp         Kind = "temp"
	KindWrongEndTime Kind = "wrong_end_time"
)

// Channel is a recording directory root for one channel.
type Channel struct {
	ID          string
	Name        string
	StoragePath string
	// Record is nil for channels found by directory scan. Those get no
	// end-time check.
	Record *schedule.Config
}

// Artifact is a recording file found by a sweep.
type Artifact struct {
	Path    string
	Channel Channel
	Kind    Kind
	Size    int64
	ModTime time.Time
	State   State
}
