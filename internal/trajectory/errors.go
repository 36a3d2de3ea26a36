package trajectory

import (
	"errors"
	"fmt"
)

// InputKind classifies a fault in the data handed to the analyzer
type InputKind string

// Input fault kinds
const (
	NoDataInWindow       InputKind = "no_data_in_window"
	NoValidFixes         InputKind = "no_valid_fixes"
	UnsortedTimestamps   InputKind = "unsorted_timestamps"
	ConflictingDuplicate InputKind = "conflicting_duplicate"
	UnparseableTimestamp InputKind = "unparseable_timestamp"
)

// InputError reports bad input data for one individual. Processing for that
// individual stops; other individuals are unaffected.
type InputError struct {
	Kind   InputKind
	Detail string
}

func (e *InputError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("input fault: %s", e.Kind)
	}
	return fmt.Sprintf("input fault: %s: %s", e.Kind, e.Detail)
}

// InvariantKind classifies an internal consistency violation
type InvariantKind string

// Invariant violation kinds
const (
	PauseTouchesStationary InvariantKind = "pause_touches_stationary"
	UnmatchedRunBoundaries InvariantKind = "unmatched_run_boundaries"
	TripBounds             InvariantKind = "trip_bounds"
	UnassignedState        InvariantKind = "unassigned_state"
	VisitBounds            InvariantKind = "visit_bounds"
)

// InvariantError reports an algorithm defect detected while processing a
// trajectory. The trajectory is abandoned rather than reported with
// inconsistent markers.
type InvariantError struct {
	Kind  InvariantKind
	Index int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated: %s at fix %d", e.Kind, e.Index)
}

// IsInputFault reports whether err wraps an *InputError
func IsInputFault(err error) bool {
	var target *InputError
	return errors.As(err, &target)
}

// IsInvariantViolation reports whether err wraps an *InvariantError
func IsInvariantViolation(err error) bool {
	var target *InvariantError
	return errors.As(err, &target)
}

func inputFault(kind InputKind, format string, args ...any) error {
	return &InputError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func invariant(kind InvariantKind, index int) error {
	return &InvariantError{Kind: kind, Index: index}
}
