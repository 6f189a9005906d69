// Package workflow drives resumable multi-phase form submissions: per-phase
// field validation, action execution, and a verified transition with bounded
// retries.
package workflow

import (
	"errors"
	"fmt"
	"time"

	"portalflow-engine/internal/driver"
)

// maxTransitionRetries bounds re-fill/re-click cycles after the first
// transition attempt. Only the transition-verification step retries.
const maxTransitionRetries = 2

// EventSink receives workflow events (see internal/recorder).
type EventSink interface {
	Log(eventType, sessionID string, data interface{})
}

// Engine executes phase specs against a page driver and owns the run
// registry.
type Engine struct {
	runs   *Registry
	sink   EventSink
	settle time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithEventSink wires a flight recorder into the engine.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithSettleDelay sets the pause between clicking a transition and reading
// the step indicator.
func WithSettleDelay(d time.Duration) Option {
	return func(e *Engine) { e.settle = d }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		runs:   NewRegistry(),
		settle: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Runs exposes the run registry for callers resuming by id.
func (e *Engine) Runs() *Registry { return e.runs }

// Start creates a run at phase 1 for the given definition and session.
func (e *Engine) Start(def *Definition, sessionID string) *Run {
	r := e.runs.Create(def, sessionID)
	e.record("run_started", sessionID, map[string]interface{}{"run_id": r.ID, "workflow": def.Name})
	return r
}

func (e *Engine) record(event, sessionID string, data interface{}) {
	if e.sink != nil {
		e.sink.Log(event, sessionID, data)
	}
}

// transition verification states.
type verifyState int

const (
	stateAttempting verifyState = iota
	stateVerifying
	stateAdvanced
	stateRetryFill
	stateStuck
)

// Advance validates, fills, and attempts the pending phase's transition on d.
//
// Missing required fields return ContinuationNeeded without mutating the run.
// Fill and locate failures are fatal for this call (PhaseActionFailed). The
// transition is verified against the wizard's step indicator; an unchanged
// ordinal is retried (re-fill, re-click) up to maxTransitionRetries before
// PhaseStuck. Phases within one run execute strictly sequentially; the run's
// lock enforces that here.
func (e *Engine) Advance(d driver.PageDriver, run *Run, supplied map[string]string) (AdvanceResult, error) {
	run.mu.Lock()
	defer run.mu.Unlock()

	if run.completed {
		return nil, ErrRunCompleted
	}
	spec, ok := run.def.phase(run.currentPhase)
	if !ok {
		return nil, fmt.Errorf("workflow %s: no phase %d", run.def.Name, run.currentPhase)
	}

	if missing := run.missingLocked(spec, supplied); len(missing) > 0 {
		return ContinuationNeeded{Missing: missing}, nil
	}

	for k, v := range supplied {
		run.fields[k] = v
	}
	run.lastUsedAt = time.Now()

	if err := e.runPhaseActions(d, spec, run.fields); err != nil {
		return nil, err
	}

	if spec.Terminal {
		payload, err := spec.Collect(d)
		if err != nil {
			return nil, &PhaseActionFailedError{Phase: spec.Ordinal, Err: err}
		}
		run.completed = true
		e.runs.Remove(run.ID)
		e.record("run_completed", run.SessionID, map[string]interface{}{"run_id": run.ID, "workflow": run.def.Name})
		return Completed{Payload: payload}, nil
	}

	verify := run.def.verifier(spec)
	attempts := 0
	observed := 0
	lowConfidence := false

	state := stateAttempting
	for {
		switch state {
		case stateAttempting:
			if err := e.clickTransition(d, spec); err != nil {
				return nil, err
			}
			attempts++
			state = stateVerifying

		case stateVerifying:
			if e.settle > 0 {
				time.Sleep(e.settle)
			}
			var readable bool
			observed, readable = verify(d)
			switch {
			case !readable:
				// The indicator could not be read. Preserved source behavior:
				// assume the transition landed, but mark it low-confidence.
				observed = spec.Ordinal + 1
				lowConfidence = true
				state = stateAdvanced
			case observed == spec.Ordinal+1:
				state = stateAdvanced
			case observed == spec.Ordinal:
				if attempts > maxTransitionRetries {
					state = stateStuck
				} else {
					state = stateRetryFill
				}
			default:
				e.record("phase_ambiguous", run.SessionID, map[string]interface{}{
					"run_id": run.ID, "phase": spec.Ordinal, "observed": observed,
				})
				return AmbiguousTransition{Phase: spec.Ordinal, Observed: observed}, nil
			}

		case stateRetryFill:
			if err := e.runPhaseActions(d, spec, run.fields); err != nil {
				return nil, err
			}
			state = stateAttempting

		case stateAdvanced:
			run.currentPhase++
			e.record("phase_advanced", run.SessionID, map[string]interface{}{
				"run_id": run.ID, "phase": spec.Ordinal, "observed": observed,
				"attempts": attempts, "low_confidence": lowConfidence,
			})
			return Advanced{Phase: spec.Ordinal, Observed: observed, LowConfidence: lowConfidence}, nil

		case stateStuck:
			e.record("phase_stuck", run.SessionID, map[string]interface{}{
				"run_id": run.ID, "phase": spec.Ordinal, "attempts": attempts,
			})
			return nil, &PhaseStuckError{Phase: spec.Ordinal, Attempts: attempts}
		}
	}
}

// runPhaseActions executes the phase's fills, then its custom action when one
// is set. Any failure here is fatal for the advance call.
func (e *Engine) runPhaseActions(d driver.PageDriver, spec PhaseSpec, fields map[string]string) error {
	if err := e.runFills(d, spec, fields); err != nil {
		return err
	}
	if spec.Action != nil {
		if err := spec.Action(d, fields); err != nil {
			return &PhaseActionFailedError{Phase: spec.Ordinal, Err: err}
		}
	}
	return nil
}

// runFills types accumulated values into the phase's inputs. Fields without
// a value are skipped; a locate miss or driver failure is fatal.
func (e *Engine) runFills(d driver.PageDriver, spec PhaseSpec, fields map[string]string) error {
	for _, fill := range spec.Fills {
		value, ok := fields[fill.Field]
		if !ok {
			continue
		}
		ref, _, err := driver.FirstMatch(d, fill.Probes)
		if err != nil {
			return &PhaseActionFailedError{Phase: spec.Ordinal, Field: fill.Field, Err: err}
		}
		if ref == nil {
			return &PhaseActionFailedError{Phase: spec.Ordinal, Field: fill.Field, Err: errors.New("input element not found")}
		}
		if err := d.Type(ref, value); err != nil {
			return &PhaseActionFailedError{Phase: spec.Ordinal, Field: fill.Field, Err: err}
		}
	}
	return nil
}

func (e *Engine) clickTransition(d driver.PageDriver, spec PhaseSpec) error {
	ref, _, err := driver.FirstMatch(d, spec.Transition)
	if err != nil {
		return &PhaseActionFailedError{Phase: spec.Ordinal, Err: err}
	}
	if ref == nil {
		return &PhaseActionFailedError{Phase: spec.Ordinal, Err: errors.New("transition control not found")}
	}
	if err := d.Click(ref); err != nil {
		return &PhaseActionFailedError{Phase: spec.Ordinal, Err: err}
	}
	return nil
}
