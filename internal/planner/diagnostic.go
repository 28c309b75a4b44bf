package planner

import "fmt"

// Kind classifies a swallowed failure.
type Kind string

// Diagnostic kinds.
const (
	KindMissingInput    Kind = "missing_input"
	KindUnparsableData  Kind = "unparsable_data"
	KindCacheCorruption Kind = "cache_corruption"
	KindWriteFailure    Kind = "write_failure"
	KindReplayFailure   Kind = "replay_failure"
)

// Diagnostic records a failure that was absorbed while still producing a plan.
type Diagnostic struct {
	Stage string
	Kind  Kind
	Err   error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s/%s: %v", d.Stage, d.Kind, d.Err)
}

type diagnostics struct {
	list []Diagnostic
}

func (d *diagnostics) add(stage string, kind Kind, err error) {
	d.list = append(d.list, Diagnostic{Stage: stage, Kind: kind, Err: err})
}

// Has reports whether any diagnostic of kind is present.
func (r Result) Has(kind Kind) bool {
	for _, d := range r.Diagnostics {
		if d.Kind == kind {
			return true
		}
	}
	return false
}
