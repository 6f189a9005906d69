package portal

import (
	"errors"
	"strings"
	"testing"

	"portalflow-engine/internal/driver"
	"portalflow-engine/internal/progress"
)

// trackingPage scripts a fake milestone bar serving the given JSON.
func trackingPage(milestonesJSON string) *driver.Fake {
	fake := driver.NewFake()
	fake.SetElement("#milestone-bar", nil)
	fake.SetEvalFunc(func(js string) (interface{}, error) {
		return milestonesJSON, nil
	})
	return fake
}

func TestInquireAfterByClassProgression(t *testing.T) {
	fake := trackingPage(`[
		{"name":"Discharged","classes":"milestone milestone-done","date":""},
		{"name":"Gate Out","classes":"milestone milestone-done","date":""},
		{"name":"Delivered","classes":"milestone milestone-pending","date":""}
	]`)
	s := NewStatusInquiry(testConfig())

	res, err := s.Inquire(fake, "MSKU1234567", "Gate Out")
	if err != nil {
		t.Fatalf("inquire: %v", err)
	}
	if res.Status != progress.StatusAfter || res.Method != progress.MethodClassProgression {
		t.Errorf("expected after/class_progression, got %s/%s", res.Status, res.Method)
	}

	url, _ := fake.CurrentURL()
	if !strings.Contains(url, "container=MSKU1234567") {
		t.Errorf("tracking URL must carry the container number, got %q", url)
	}
}

func TestInquireBeforeReference(t *testing.T) {
	fake := trackingPage(`[
		{"name":"Discharged","classes":"milestone milestone-done","date":""},
		{"name":"Gate Out","classes":"milestone milestone-pending","date":""},
		{"name":"Delivered","classes":"milestone milestone-pending","date":""}
	]`)
	s := NewStatusInquiry(testConfig())

	res, err := s.Inquire(fake, "MSKU1234567", "Gate Out")
	if err != nil {
		t.Fatalf("inquire: %v", err)
	}
	if res.Status != progress.StatusBefore {
		t.Errorf("expected before, got %s (%s)", res.Status, res.Evidence)
	}
}

func TestInquireDatedDownstreamWinsOverVisuals(t *testing.T) {
	fake := trackingPage(`[
		{"name":"Discharged","classes":"milestone milestone-done","date":""},
		{"name":"Gate Out","classes":"milestone milestone-pending","date":""},
		{"name":"Delivered","classes":"milestone milestone-pending","date":"2026-08-01"}
	]`)
	s := NewStatusInquiry(testConfig())

	res, err := s.Inquire(fake, "MSKU1234567", "Gate Out")
	if err != nil {
		t.Fatalf("inquire: %v", err)
	}
	if res.Status != progress.StatusAfter || res.Method != progress.MethodDateFallback {
		t.Errorf("expected after/date_fallback, got %s/%s", res.Status, res.Method)
	}
}

func TestInquireReferenceDateIsDefinitive(t *testing.T) {
	fake := trackingPage(`[
		{"name":"Discharged","classes":"milestone milestone-pending","date":""},
		{"name":"Gate Out","classes":"milestone milestone-pending","date":"2026-07-30"}
	]`)
	s := NewStatusInquiry(testConfig())

	res, err := s.Inquire(fake, "MSKU1234567", "gate out")
	if err != nil {
		t.Fatalf("inquire: %v", err)
	}
	if res.Status != progress.StatusAfter || res.Method != progress.MethodReferenceDate {
		t.Errorf("expected after/reference_date, got %s/%s", res.Status, res.Method)
	}
}

func TestInquireUnknownReference(t *testing.T) {
	fake := trackingPage(`[
		{"name":"Discharged","classes":"milestone milestone-done","date":""}
	]`)
	s := NewStatusInquiry(testConfig())

	_, err := s.Inquire(fake, "MSKU1234567", "Customs Cleared")
	var notFound *progress.ReferenceNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ReferenceNotFoundError, got %v", err)
	}
	if notFound.Name != "Customs Cleared" {
		t.Errorf("error must carry the reference name, got %q", notFound.Name)
	}
}

func TestInquireDetectsExpiredSession(t *testing.T) {
	fake := trackingPage(`[]`)
	fake.SetElement(".session-timeout-dialog", nil)
	s := NewStatusInquiry(testConfig())

	_, err := s.Inquire(fake, "MSKU1234567", "Gate Out")
	if !errors.Is(err, ErrSessionLost) {
		t.Errorf("expected ErrSessionLost, got %v", err)
	}
}

func TestVisualStateMapping(t *testing.T) {
	cases := []struct {
		classes string
		want    progress.VisualState
	}{
		{"milestone milestone-done", progress.StateReached},
		{"milestone completed", progress.StateReached},
		{"milestone milestone-pending", progress.StateNeutral},
		{"milestone shimmer", progress.StateUnknown},
		{"", progress.StateUnknown},
	}
	for _, c := range cases {
		if got := visualState(c.classes); got != c.want {
			t.Errorf("visualState(%q) = %s, want %s", c.classes, got, c.want)
		}
	}
}
