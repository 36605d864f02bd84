package pipeline

import "time"

// State is where a source document is in its processing lifecycle.
type State int

// Document states.
const (
	StatePending State = iota
	StateDownloading
	StateExtracting
	StateCompleted
	StateFailed
	StateSkipped
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDownloading:
		return "downloading"
	case StateExtracting:
		return "extracting"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// DocumentReport describes what happened to one source document.
type DocumentReport struct {
	Err        error
	URL        string
	State      State
	References int
	Duplicates int
	NewRecords int
	Rejected   int
	Found      int
	NotFound   int
	Fallbacks  int
	Duration   time.Duration
}

// RunSummary aggregates the reports of a run. Documents keeps the input
// order.
type RunSummary struct {
	Documents  []DocumentReport
	Completed  int
	Failed     int
	Skipped    int
	References int
	Duplicates int
	NewRecords int
	Rejected   int
	NotFound   int
	Fallbacks  int
	Duration   time.Duration
}

func (s *RunSummary) add(report DocumentReport) {
	switch report.State {
	case StateCompleted:
		s.Completed++
	case StateFailed:
		s.Failed++
	case StateSkipped:
		s.Skipped++
	}

	s.References += report.References
	s.Duplicates += report.Duplicates
	s.NewRecords += report.NewRecords
	s.Rejected += report.Rejected
	s.NotFound += report.NotFound
	s.Fallbacks += report.Fallbacks
}
