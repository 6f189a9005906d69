// Package progress classifies a shipment's standing against a reference
// milestone by reading an ordered visual progress indicator plus corroborating
// date evidence.
package progress

import "fmt"

// VisualState is the rendered state of one progress marker.
type VisualState string

const (
	StateReached VisualState = "reached"
	StateNeutral VisualState = "neutral"
	StateUnknown VisualState = "unknown"
)

// Status is the classification outcome relative to the reference milestone.
type Status string

const (
	StatusBefore Status = "before"
	StatusAfter  Status = "after"
)

// Method names the rule that decided the classification, for auditability.
type Method string

const (
	MethodReferenceDate    Method = "reference_date"
	MethodClassProgression Method = "class_progression"
	MethodDateFallback     Method = "date_fallback"
)

// Marker is one positional indicator along the milestone sequence.
type Marker struct {
	Index int
	State VisualState
	// Date is the milestone's displayed date, empty when absent.
	Date string
}

// Corroborating is a marker known to occur strictly after the reference in
// domain order; a date on one of these proves the reference was passed even
// when the visual signal lags.
type Corroborating struct {
	Name    string
	HasDate bool
	Date    string
}

// Input is everything the classifier looks at.
type Input struct {
	Markers []Marker
	// ReferenceName labels the boundary milestone in errors and evidence.
	ReferenceName string
	// ReferenceIndex is the reference marker's position, or -1 when the
	// marker could not be located on the page.
	ReferenceIndex   int
	ReferenceHasDate bool
	Corroborating    []Corroborating
}

// Result records the decision and which rule fired.
type Result struct {
	Status   Status `json:"status"`
	Method   Method `json:"method"`
	Evidence string `json:"evidence"`
}

// ReferenceNotFoundError means the reference marker could not be located.
// This is distinct from, and never silently coerced into, "before".
// Stable code: reference_not_found.
type ReferenceNotFoundError struct {
	Name string
}

func (e *ReferenceNotFoundError) Error() string {
	return fmt.Sprintf("reference marker %q not found in progress indicator", e.Name)
}

// Code returns the stable error code for callers.
func (e *ReferenceNotFoundError) Code() string { return "reference_not_found" }

// Classify applies the precedence-ordered rules; the first match wins.
//
//  1. A concrete date at the reference is definitive: after.
//  2. The highest reached marker at or past the reference: after.
//  3. Dated evidence strictly downstream of the reference: after, even when
//     the visual signal is absent or lagging.
//  4. Otherwise: before.
func Classify(in Input) (Result, error) {
	if in.ReferenceIndex < 0 || in.ReferenceIndex >= len(in.Markers) {
		return Result{}, &ReferenceNotFoundError{Name: in.ReferenceName}
	}

	if in.ReferenceHasDate {
		return Result{
			Status:   StatusAfter,
			Method:   MethodReferenceDate,
			Evidence: fmt.Sprintf("reference marker %q carries a date", in.ReferenceName),
		}, nil
	}

	maxReached := -1
	for _, m := range in.Markers {
		if m.State == StateReached && m.Index > maxReached {
			maxReached = m.Index
		}
	}
	if maxReached >= in.ReferenceIndex {
		return Result{
			Status: StatusAfter,
			Method: MethodClassProgression,
			Evidence: fmt.Sprintf("max reached marker %d is at or past reference %d",
				maxReached, in.ReferenceIndex),
		}, nil
	}

	for _, c := range in.Corroborating {
		if c.HasDate {
			return Result{
				Status: StatusAfter,
				Method: MethodDateFallback,
				Evidence: fmt.Sprintf("downstream marker %q is dated %s despite visual signal at %d",
					c.Name, c.Date, maxReached),
			}, nil
		}
	}

	return Result{
		Status: StatusBefore,
		Method: MethodClassProgression,
		Evidence: fmt.Sprintf("max reached marker %d is before reference %d and no downstream dates exist",
			maxReached, in.ReferenceIndex),
	}, nil
}
