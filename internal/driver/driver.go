package driver

import (
	"errors"
	"time"
)

// ErrClosed is returned by driver operations after Close.
var ErrClosed = errors.New("driver: page driver closed")

// ElementRef is an opaque handle to a located element. A ref is only valid for
// the driver that produced it and may go stale when the page re-renders.
type ElementRef interface{}

// PageDriver is the capability the engine needs from a remote rendered page.
// Any DOM-automation backend satisfying it is substitutable.
//
// Find separates expected absence from genuine failure: a missing element
// yields ok=false with a nil error; a non-nil error means the driver itself
// failed (connection lost, page crashed) and the caller should not retry the
// probe.
type PageDriver interface {
	Navigate(url string) error
	Find(selector string) (ElementRef, bool, error)
	Click(ref ElementRef) error
	Type(ref ElementRef, text string) error
	ReadText(ref ElementRef) (string, error)
	CurrentURL() (string, error)
	Eval(js string) (interface{}, error)
	Close() error
}

// Probe is one named selector strategy in an ordered discovery chain.
type Probe struct {
	Name     string
	Selector string
}

// FirstMatch runs probes in order against the driver and returns the first
// element found, along with the name of the probe that matched. Probes that
// miss are skipped; a driver failure aborts the chain.
//
// New UI variants are handled by appending probes, not by branching callers.
func FirstMatch(d PageDriver, probes []Probe) (ElementRef, string, error) {
	for _, p := range probes {
		ref, ok, err := d.Find(p.Selector)
		if err != nil {
			return nil, "", err
		}
		if ok {
			return ref, p.Name, nil
		}
	}
	return nil, "", nil
}

// WaitFor polls Find until the selector is present or the timeout expires.
// Absence at timeout is reported as ok=false, not as an error.
func WaitFor(d PageDriver, selector string, timeout time.Duration) (ElementRef, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		ref, ok, err := d.Find(selector)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return ref, true, nil
		}
		if time.Now().After(deadline) {
			return nil, false, nil
		}
		time.Sleep(200 * time.Millisecond)
	}
}
