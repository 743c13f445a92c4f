package modeling

import (
	"sort"
	"time"
)

// State is the position of a run in its cycle.
type State int

const (
	Idle State = iota
	Preparing
	Slewing
	Settling
	Imaging
	Solving
	Submitting
	Finalizing
)

var stateNames = [...]string{"idle", "preparing", "slewing", "settling", "imaging", "solving", "submitting", "finalizing"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Progress is emitted on every state change.
type Progress struct {
	RunID string `json:"runId"`
	Mode  string `json:"mode"`
	State State  `json:"-"`
	Phase string `json:"state"`

	// Index is the 0-based point being worked on.
	Index int `json:"index"`
	Total int `json:"total"`

	Slewed    int `json:"slewed"`
	Imaged    int `json:"imaged"`
	Solved    int `json:"solved"`
	Processed int `json:"processed"`

	Elapsed time.Duration `json:"elapsed"`
	ETA     time.Duration `json:"eta"`
}

// estimateRemaining extrapolates the median point duration over the points
// not yet started.
func estimateRemaining(durations []time.Duration, remaining int) time.Duration {
	if len(durations) == 0 || remaining <= 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := len(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return median * time.Duration(remaining)
}
