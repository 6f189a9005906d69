package loader

import (
	"errors"
	"strings"
	"testing"

	"portalflow-engine/internal/driver"
)

// scriptedSource grows by growthPerScroll each step up to limit.
type scriptedSource struct {
	visible         int
	growthPerScroll int
	limit           int
	scrolls         int
	countErr        error
	scrollErr       error
}

func (s *scriptedSource) CountVisible() (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	return s.visible, nil
}

func (s *scriptedSource) ScrollStep() error {
	if s.scrollErr != nil {
		return s.scrollErr
	}
	s.scrolls++
	s.visible += s.growthPerScroll
	if s.limit > 0 && s.visible > s.limit {
		s.visible = s.limit
	}
	return nil
}

func TestExactCountStopsAtTarget(t *testing.T) {
	src := &scriptedSource{growthPerScroll: 2}
	res, err := Load(src, ExactCount(5), Options{StabilityThreshold: 3, MaxCycles: 40})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.StopReason != StopTargetReached {
		t.Errorf("expected target_reached, got %s", res.StopReason)
	}
	if res.VisibleCount < 5 {
		t.Errorf("expected at least 5 visible, got %d", res.VisibleCount)
	}
}

func TestExhaustedAfterStabilityThreshold(t *testing.T) {
	src := &scriptedSource{visible: 7, growthPerScroll: 0}
	res, err := Load(src, Exhaustive(), Options{StabilityThreshold: 3, MaxCycles: 40})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.StopReason != StopExhausted {
		t.Errorf("expected exhausted, got %s", res.StopReason)
	}
	if res.Cycles != 3 {
		t.Errorf("a never-growing source must stop after exactly the threshold, got %d cycles", res.Cycles)
	}
	if res.VisibleCount != 7 {
		t.Errorf("expected 7 visible, got %d", res.VisibleCount)
	}
}

func TestExhaustiveStopsAfterListEnds(t *testing.T) {
	src := &scriptedSource{growthPerScroll: 4, limit: 10}
	res, err := Load(src, Exhaustive(), Options{StabilityThreshold: 2, MaxCycles: 40})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.StopReason != StopExhausted {
		t.Errorf("expected exhausted, got %s", res.StopReason)
	}
	if res.VisibleCount != 10 {
		t.Errorf("expected the full list, got %d", res.VisibleCount)
	}
}

func TestMaxCyclesIsNotAnError(t *testing.T) {
	src := &scriptedSource{growthPerScroll: 1}
	res, err := Load(src, Exhaustive(), Options{StabilityThreshold: 3, MaxCycles: 5})
	if err != nil {
		t.Fatalf("max cycles must return best-effort data, got error: %v", err)
	}
	if res.StopReason != StopMaxCycles {
		t.Errorf("expected max_cycles_exceeded, got %s", res.StopReason)
	}
	if res.Cycles != 5 {
		t.Errorf("expected 5 cycles, got %d", res.Cycles)
	}
}

func TestFindIDMatchMidCycle(t *testing.T) {
	src := &scriptedSource{growthPerScroll: 3}
	probes := 0
	target := FindID(func() (bool, error) {
		probes++
		// Appears only after the second scroll has happened.
		return src.scrolls >= 2, nil
	})

	res, err := Load(src, target, Options{StabilityThreshold: 3, MaxCycles: 40})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.StopReason != StopFound {
		t.Errorf("expected found, got %s", res.StopReason)
	}
	// The probe must run right after each scroll step, so the match is seen
	// at scroll 2, not at a later cycle boundary.
	if src.scrolls != 2 {
		t.Errorf("expected detection immediately after scroll 2, got %d scrolls", src.scrolls)
	}
	if probes == 0 {
		t.Fatal("probe never ran")
	}
}

func TestFindIDAbsenceIsExhaustedNotError(t *testing.T) {
	src := &scriptedSource{visible: 4}
	res, err := Load(src, FindID(func() (bool, error) { return false, nil }), Options{StabilityThreshold: 2, MaxCycles: 40})
	if err != nil {
		t.Fatalf("absent target must not be an error: %v", err)
	}
	if res.StopReason != StopExhausted {
		t.Errorf("expected exhausted, got %s", res.StopReason)
	}
}

func TestSourceFailurePropagates(t *testing.T) {
	src := &scriptedSource{scrollErr: errors.New("driver gone")}
	if _, err := Load(src, Exhaustive(), Options{StabilityThreshold: 2, MaxCycles: 10}); err == nil {
		t.Fatal("expected driver failure to propagate")
	}
}

func TestPageSourceCounts(t *testing.T) {
	fake := driver.NewFake()
	fake.SetEvalFunc(func(js string) (interface{}, error) {
		if strings.Contains(js, "candidates") {
			return "attribute_marker", nil
		}
		return float64(12), nil
	})

	src := NewPageSource(fake, `() => document.querySelectorAll('tr.row').length`, ScrollTargets{
		AttributeMarker: "data-virtual-grid",
	})

	n, err := src.CountVisible()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 12 {
		t.Errorf("expected 12, got %d", n)
	}

	if err := src.ScrollStep(); err != nil {
		t.Fatalf("scroll: %v", err)
	}
	if src.LastStrategy() != "attribute_marker" {
		t.Errorf("expected attribute_marker strategy, got %q", src.LastStrategy())
	}
}

func TestBuildScrollJSOrdersProbes(t *testing.T) {
	js := buildScrollJS(ScrollTargets{KnownID: "grid", ClassName: "scroll-area"})

	idPos := strings.Index(js, "known_id")
	classPos := strings.Index(js, "class_name")
	scanPos := strings.Index(js, "heuristic_scan")
	if idPos == -1 || classPos == -1 || scanPos == -1 {
		t.Fatalf("missing probe in generated JS:\n%s", js)
	}
	if !(idPos < classPos && classPos < scanPos) {
		t.Error("probes must keep priority order: id, class, heuristic")
	}
	if strings.Contains(js, "attribute_marker") {
		t.Error("empty attribute marker must be skipped")
	}
}
