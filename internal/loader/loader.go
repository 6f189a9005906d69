// Package loader implements the convergence content loader: a scroll/count
// loop for virtualized and infinite-scroll lists. Such lists rarely expose a
// total size, so growth-stability is the only reliable exhaustion signal.
package loader

import (
	"time"
)

// StopReason explains why a load loop ended. Absence of the target is an
// expected outcome, never an error.
type StopReason string

const (
	StopTargetReached StopReason = "target_reached"
	StopFound         StopReason = "found"
	StopMaxCycles     StopReason = "max_cycles_exceeded"
	StopExhausted     StopReason = "exhausted"
)

// Source is the minimal page capability the loop needs.
type Source interface {
	// CountVisible reports how many items are currently rendered.
	CountVisible() (int, error)
	// ScrollStep triggers loading of more content.
	ScrollStep() error
}

type targetKind int

const (
	kindExhaustive targetKind = iota
	kindExactCount
	kindFindID
)

// Target selects the loop's stop condition.
type Target struct {
	kind  targetKind
	count int
	probe func() (bool, error)
}

// ExactCount stops once at least n items are visible.
func ExactCount(n int) Target {
	return Target{kind: kindExactCount, count: n}
}

// FindID stops once the probe reports a match. The probe is re-run
// immediately after every scroll step, since a match can appear mid-cycle.
func FindID(probe func() (bool, error)) Target {
	return Target{kind: kindFindID, probe: probe}
}

// Exhaustive keeps scrolling until growth stabilizes.
func Exhaustive() Target {
	return Target{kind: kindExhaustive}
}

// Options bound the loop.
type Options struct {
	// StabilityThreshold is the number of consecutive no-growth cycles after
	// which the list counts as exhausted. Minimum 1.
	StabilityThreshold int
	// MaxCycles caps scroll iterations. Minimum 1.
	MaxCycles int
	// Pause between scroll steps, giving the page time to render.
	Pause time.Duration
}

// Result is always returned, even when the target was not reached; callers
// get best-effort data plus the diagnostic stop reason.
type Result struct {
	VisibleCount int        `json:"visible_count"`
	Cycles       int        `json:"cycles"`
	StopReason   StopReason `json:"stop_reason"`
}

// Load runs the convergence loop. The only error channel is Source failure
// (dead driver); "not found" and "list ended early" come back as Results.
func Load(src Source, target Target, opts Options) (Result, error) {
	if opts.StabilityThreshold < 1 {
		opts.StabilityThreshold = 1
	}
	if opts.MaxCycles < 1 {
		opts.MaxCycles = 1
	}

	visible, err := src.CountVisible()
	if err != nil {
		return Result{}, err
	}
	streak := 0
	cycle := 0

	for {
		if target.kind == kindExactCount && visible >= target.count {
			return Result{VisibleCount: visible, Cycles: cycle, StopReason: StopTargetReached}, nil
		}
		if target.kind == kindFindID {
			found, err := target.probe()
			if err != nil {
				return Result{}, err
			}
			if found {
				return Result{VisibleCount: visible, Cycles: cycle, StopReason: StopFound}, nil
			}
		}
		if cycle >= opts.MaxCycles {
			return Result{VisibleCount: visible, Cycles: cycle, StopReason: StopMaxCycles}, nil
		}

		if err := src.ScrollStep(); err != nil {
			return Result{}, err
		}
		// A FindID match can appear from the scroll itself; probe before the
		// count settles rather than waiting for the next cycle boundary.
		if target.kind == kindFindID {
			found, err := target.probe()
			if err != nil {
				return Result{}, err
			}
			if found {
				return Result{VisibleCount: visible, Cycles: cycle + 1, StopReason: StopFound}, nil
			}
		}
		if opts.Pause > 0 {
			time.Sleep(opts.Pause)
		}

		newVisible, err := src.CountVisible()
		if err != nil {
			return Result{}, err
		}
		if newVisible > visible {
			streak = 0
		} else {
			streak++
		}
		visible = newVisible
		cycle++

		if streak >= opts.StabilityThreshold {
			return Result{VisibleCount: visible, Cycles: cycle, StopReason: StopExhausted}, nil
		}
	}
}
