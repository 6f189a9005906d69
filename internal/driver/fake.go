package driver

import (
	"fmt"
	"sync"
)

// Fake is an in-memory PageDriver for tests. The page is modeled as a
// selector -> element map; tests script behavior through element hooks and an
// Eval function, then assert on the recorded interactions.
type Fake struct {
	mu         sync.Mutex
	url        string
	elements   map[string]*FakeElement
	evalFn     func(js string) (interface{}, error)
	findErr    error
	navErr     error
	closed     bool
	closeCount int
}

// FakeElement is one scriptable element on a Fake page.
type FakeElement struct {
	Selector string
	Text     string
	// Value records the last text typed into the element.
	Value      string
	ClickCount int
	TypeCount  int
	// OnClick runs after a click is recorded, outside the fake's lock, so it
	// may mutate the page (add/remove elements, change Eval results).
	OnClick func(f *Fake)
	OnType  func(f *Fake, text string)
	// ClickErr / TypeErr force interaction failures.
	ClickErr error
	TypeErr  error
}

func NewFake() *Fake {
	return &Fake{elements: make(map[string]*FakeElement)}
}

// SetElement installs (or replaces) an element at the given selector.
func (f *Fake) SetElement(selector string, el *FakeElement) *FakeElement {
	if el == nil {
		el = &FakeElement{}
	}
	el.Selector = selector
	f.mu.Lock()
	f.elements[selector] = el
	f.mu.Unlock()
	return el
}

// RemoveElement makes the selector miss on subsequent probes.
func (f *Fake) RemoveElement(selector string) {
	f.mu.Lock()
	delete(f.elements, selector)
	f.mu.Unlock()
}

// SetEvalFunc scripts Eval.
func (f *Fake) SetEvalFunc(fn func(js string) (interface{}, error)) {
	f.mu.Lock()
	f.evalFn = fn
	f.mu.Unlock()
}

// SetFindError makes every probe fail with err, simulating a dead driver.
func (f *Fake) SetFindError(err error) {
	f.mu.Lock()
	f.findErr = err
	f.mu.Unlock()
}

// SetNavigateError makes Navigate fail.
func (f *Fake) SetNavigateError(err error) {
	f.mu.Lock()
	f.navErr = err
	f.mu.Unlock()
}

// CloseCount reports how many times Close was invoked.
func (f *Fake) CloseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCount
}

// IsClosed reports whether the driver has been closed.
func (f *Fake) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) Navigate(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if f.navErr != nil {
		return f.navErr
	}
	f.url = url
	return nil
}

func (f *Fake) Find(selector string) (ElementRef, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, false, ErrClosed
	}
	if f.findErr != nil {
		return nil, false, f.findErr
	}
	el, ok := f.elements[selector]
	if !ok {
		return nil, false, nil
	}
	return el, true, nil
}

func (f *Fake) Click(ref ElementRef) error {
	el, err := f.fakeElement(ref)
	if err != nil {
		return err
	}
	f.mu.Lock()
	el.ClickCount++
	clickErr := el.ClickErr
	hook := el.OnClick
	f.mu.Unlock()
	if clickErr != nil {
		return clickErr
	}
	if hook != nil {
		hook(f)
	}
	return nil
}

func (f *Fake) Type(ref ElementRef, text string) error {
	el, err := f.fakeElement(ref)
	if err != nil {
		return err
	}
	f.mu.Lock()
	el.TypeCount++
	typeErr := el.TypeErr
	hook := el.OnType
	if typeErr == nil {
		el.Value = text
	}
	f.mu.Unlock()
	if typeErr != nil {
		return typeErr
	}
	if hook != nil {
		hook(f, text)
	}
	return nil
}

func (f *Fake) ReadText(ref ElementRef) (string, error) {
	el, err := f.fakeElement(ref)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return el.Text, nil
}

func (f *Fake) CurrentURL() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", ErrClosed
	}
	return f.url, nil
}

func (f *Fake) Eval(js string) (interface{}, error) {
	f.mu.Lock()
	fn := f.evalFn
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if fn == nil {
		return nil, nil
	}
	return fn(js)
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCount++
	return nil
}

func (f *Fake) fakeElement(ref ElementRef) (*FakeElement, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	el, ok := ref.(*FakeElement)
	if !ok {
		return nil, fmt.Errorf("element ref %T does not belong to the fake driver", ref)
	}
	return el, nil
}
