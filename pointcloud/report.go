package pointcloud

import "github.com/samber/lo"

// Status is the per-point outcome of a pass that can fail locally.
type Status uint8

const (
	// StatusOK means the point was processed.
	StatusOK Status = iota
	// StatusDegenerateInput means the neighborhood was too small.
	StatusDegenerateInput
	// StatusRankDeficient means the local system had no well defined solution.
	StatusRankDeficient
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDegenerateInput:
		return "degenerate input"
	case StatusRankDeficient:
		return "rank deficient"
	default:
		return "unknown"
	}
}

// Report describes the outcome of a per-point pass. Failed points keep their
// previous value (an absent normal stays absent).
type Report struct {
	Processed       int
	DegenerateInput []int
	RankDeficient   []int
}

// NewReport builds a report from per-point statuses; statuses[j] belongs to indices[j].
func NewReport(indices []int, statuses []Status) Report {
	pick := func(want Status) []int {
		return lo.FilterMap(indices, func(idx, j int) (int, bool) {
			return idx, statuses[j] == want
		})
	}
	return Report{
		Processed:       len(indices),
		DegenerateInput: pick(StatusDegenerateInput),
		RankDeficient:   pick(StatusRankDeficient),
	}
}

// Failed returns the number of points that could not be processed.
func (r Report) Failed() int {
	return len(r.DegenerateInput) + len(r.RankDeficient)
}

// Succeeded returns the number of points that were processed successfully.
func (r Report) Succeeded() int {
	return r.Processed - r.Failed()
}
