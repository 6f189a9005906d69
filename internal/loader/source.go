package loader

import (
	"fmt"
	"strings"
	"sync"

	"portalflow-engine/internal/driver"
)

// ScrollTargets names where the true scrollable element may live, in priority
// order. Empty entries are skipped; the heuristic scan always runs last, so
// the loader degrades gracefully when the portal's markup shifts.
type ScrollTargets struct {
	KnownID         string
	AttributeMarker string
	ClassName       string
}

// PageSource adapts a PageDriver to the loader's Source, counting rendered
// items with countJS (a JS function returning a number) and scrolling the
// discovered scrollable element one viewport per step.
type PageSource struct {
	d       driver.PageDriver
	countJS string

	mu           sync.Mutex
	scrollJS     string
	lastStrategy string
}

// NewPageSource builds a source for the given driver.
func NewPageSource(d driver.PageDriver, countJS string, targets ScrollTargets) *PageSource {
	return &PageSource{
		d:        d,
		countJS:  countJS,
		scrollJS: buildScrollJS(targets),
	}
}

func (s *PageSource) CountVisible() (int, error) {
	val, err := s.d.Eval(s.countJS)
	if err != nil {
		return 0, fmt.Errorf("count visible: %w", err)
	}
	n, ok := asInt(val)
	if !ok {
		return 0, fmt.Errorf("count visible: expected a number, got %T", val)
	}
	return n, nil
}

func (s *PageSource) ScrollStep() error {
	s.mu.Lock()
	js := s.scrollJS
	s.mu.Unlock()

	val, err := s.d.Eval(js)
	if err != nil {
		return fmt.Errorf("scroll step: %w", err)
	}
	if name, ok := val.(string); ok {
		s.mu.Lock()
		s.lastStrategy = name
		s.mu.Unlock()
	}
	return nil
}

// LastStrategy reports which discovery strategy located the scrollable
// element on the most recent step.
func (s *PageSource) LastStrategy() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStrategy
}

func buildScrollJS(t ScrollTargets) string {
	var candidates []string
	if t.KnownID != "" {
		candidates = append(candidates, fmt.Sprintf(
			`['known_id', () => document.getElementById(%q)]`, t.KnownID))
	}
	if t.AttributeMarker != "" {
		candidates = append(candidates, fmt.Sprintf(
			`['attribute_marker', () => document.querySelector('[%s]')]`, t.AttributeMarker))
	}
	if t.ClassName != "" {
		candidates = append(candidates, fmt.Sprintf(
			`['class_name', () => document.querySelector('.%s')]`, t.ClassName))
	}
	candidates = append(candidates, `['heuristic_scan', () => {
			for (const el of document.querySelectorAll('*')) {
				if (el.clientHeight > 0 && el.scrollHeight > el.clientHeight + 10) return el;
			}
			return document.scrollingElement;
		}]`)

	return fmt.Sprintf(`
	() => {
		const candidates = [
			%s
		];
		for (const [name, probe] of candidates) {
			let el = null;
			try { el = probe(); } catch (e) {}
			if (el) {
				el.scrollTop = el.scrollTop + el.clientHeight;
				return name;
			}
		}
		return '';
	}
	`, strings.Join(candidates, ",\n\t\t\t"))
}

func asInt(val interface{}) (int, bool) {
	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
