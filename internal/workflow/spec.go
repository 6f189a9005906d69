package workflow

import (
	"fmt"

	"portalflow-engine/internal/driver"
)

// FieldFill binds a field name to the ordered probes locating its input
// element. Fills whose field has no accumulated value are skipped, which lets
// one phase spec cover optional inputs.
type FieldFill struct {
	Field  string
	Probes []driver.Probe
}

// PhaseSpec is one ordinal step of a multi-phase form submission: required
// inputs, an action sequence (fills then a transition), and an externally
// verifiable transition.
type PhaseSpec struct {
	Ordinal  int
	Required []string
	Fills    []FieldFill
	// Action runs after the fills, for phase work that is not a plain text
	// fill (virtualized pickers, date widgets). Re-run together with the
	// fills on transition retries.
	Action func(d driver.PageDriver, fields map[string]string) error
	// Transition locates the advancing control (next/submit button).
	// Unused on terminal phases.
	Transition []driver.Probe
	// Verify reads the observed step ordinal after the transition,
	// overriding the definition-wide indicator when set. ok=false means the
	// signal was unreadable.
	Verify func(d driver.PageDriver) (observed int, ok bool)
	// Terminal phases retrieve a result set via Collect instead of
	// transitioning.
	Terminal bool
	Collect  func(d driver.PageDriver) (interface{}, error)
}

// Definition is the ordered phase list for one workflow kind.
type Definition struct {
	Name   string
	Phases []PhaseSpec
	// ReadIndicator reads the wizard's step indicator: the progress signal
	// independent of any action's own return value.
	ReadIndicator func(d driver.PageDriver) (observed int, ok bool)
}

// NewDefinition validates the phase list: ordinals must run 1..N, only the
// last phase may be terminal, and the last phase must be terminal with a
// collector.
func NewDefinition(name string, readIndicator func(driver.PageDriver) (int, bool), phases ...PhaseSpec) (*Definition, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("workflow %s: at least one phase required", name)
	}
	for i, p := range phases {
		if p.Ordinal != i+1 {
			return nil, fmt.Errorf("workflow %s: phase %d has ordinal %d, want %d", name, i, p.Ordinal, i+1)
		}
		last := i == len(phases)-1
		if p.Terminal != last {
			return nil, fmt.Errorf("workflow %s: exactly the last phase must be terminal", name)
		}
		if last && p.Collect == nil {
			return nil, fmt.Errorf("workflow %s: terminal phase needs a collector", name)
		}
		if !last && len(p.Transition) == 0 {
			return nil, fmt.Errorf("workflow %s: phase %d needs a transition", name, p.Ordinal)
		}
	}
	if readIndicator == nil {
		return nil, fmt.Errorf("workflow %s: step indicator reader required", name)
	}
	return &Definition{Name: name, Phases: phases, ReadIndicator: readIndicator}, nil
}

func (d *Definition) phase(ordinal int) (PhaseSpec, bool) {
	if ordinal < 1 || ordinal > len(d.Phases) {
		return PhaseSpec{}, false
	}
	return d.Phases[ordinal-1], true
}

func (d *Definition) verifier(p PhaseSpec) func(driver.PageDriver) (int, bool) {
	if p.Verify != nil {
		return p.Verify
	}
	return d.ReadIndicator
}
