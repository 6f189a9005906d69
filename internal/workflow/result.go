package workflow

// AdvanceResult is the tagged union of advance outcomes, so illegal
// combinations (payload and error both set, missing fields on a success) are
// unrepresentable.
type AdvanceResult interface {
	advanceResult()
}

// Advanced means the transition was verified and the run moved one phase
// forward. LowConfidence marks the optimistic path taken when the step
// indicator was unreadable.
type Advanced struct {
	Phase         int  `json:"phase"`
	Observed      int  `json:"observed"`
	LowConfidence bool `json:"low_confidence,omitempty"`
}

// ContinuationNeeded is the normal pause/resume signal, not an error: the
// caller can resume later with only the run id plus the listed fields.
type ContinuationNeeded struct {
	Missing []string `json:"missing_fields"`
}

// AmbiguousTransition reports an observed ordinal that is neither the
// current phase nor the next one. A warning, not necessarily fatal.
type AmbiguousTransition struct {
	Phase    int `json:"phase"`
	Observed int `json:"observed"`
}

// Completed carries the terminal phase's result set.
type Completed struct {
	Payload interface{} `json:"payload"`
}

func (Advanced) advanceResult()            {}
func (ContinuationNeeded) advanceResult()  {}
func (AmbiguousTransition) advanceResult() {}
func (Completed) advanceResult()           {}
