package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"portalflow-engine/internal/config"
	"portalflow-engine/internal/driver"
	"portalflow-engine/internal/pool"
	"portalflow-engine/internal/workflow"
)

func testCfg() config.Config {
	cfg := config.DefaultConfig()
	cfg.Portal.BaseURL = "https://portal.test"
	cfg.Portal.SettleTimeout = "50ms"
	cfg.Portal.BootTimeout = "100ms"
	cfg.Loader.StabilityThreshold = 2
	cfg.Loader.MaxCycles = 5
	cfg.Loader.ScrollPause = "1ms"
	return cfg
}

type stubAuth struct {
	d driver.PageDriver
}

func (a stubAuth) Login(context.Context, string, pool.Credentials) (driver.PageDriver, error) {
	return a.d, nil
}

// wizardPage scripts a complete booking wizard: a step indicator advanced by
// the next button, phase inputs, a pre-rendered container option, and a slot
// list for the confirmation step.
func wizardPage() *driver.Fake {
	fake := driver.NewFake()
	step := fake.SetElement("#booking-wizard .step.active", &driver.FakeElement{Text: "Step 1 of 3"})
	fake.SetElement("#service-type", nil)
	fake.SetElement("#booking-date", nil)
	fake.SetElement("#container-picker", nil)
	fake.SetElement(`#container-options li[data-container="MSKU1234567"]`, nil)
	fake.SetElement("#available-slots", nil)

	current := 1
	fake.SetElement("#booking-wizard .btn-next", &driver.FakeElement{
		OnClick: func(*driver.Fake) {
			current++
			step.Text = fmt.Sprintf("Step %d of 3", current)
		},
	})

	fake.SetEvalFunc(func(js string) (interface{}, error) {
		switch {
		case strings.Contains(js, "candidates"):
			return "known_id", nil
		case strings.Contains(js, "available-slots"):
			return `[{"label":"08:00 - 09:00","value":"slot-0800"}]`, nil
		default:
			return 5, nil
		}
	})
	return fake
}

func newTestServer(t *testing.T, d driver.PageDriver) (*Server, *pool.Pool) {
	t.Helper()
	p := pool.New(stubAuth{d: d}, time.Minute)
	eng := workflow.NewEngine(workflow.WithSettleDelay(0))
	srv, err := NewServer(testCfg(), p, eng)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv, p
}

func acquire(t *testing.T, srv *Server, identity string) string {
	t.Helper()
	out, err := srv.ExecuteTool("acquire-session", map[string]interface{}{"identity": identity})
	if err != nil {
		t.Fatalf("acquire-session: %v", err)
	}
	payload := out.(map[string]interface{})
	return payload["session"].(map[string]interface{})["id"].(string)
}

func TestSessionToolRoundTrip(t *testing.T) {
	srv, p := newTestServer(t, wizardPage())

	id := acquire(t, srv, "ops-team")
	if id == "" {
		t.Fatal("expected a session id")
	}

	out, err := srv.ExecuteTool("acquire-session", map[string]interface{}{"identity": "ops-team"})
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	payload := out.(map[string]interface{})
	if payload["reused"] != true {
		t.Error("second acquire for the same identity must reuse")
	}

	out, err = srv.ExecuteTool("list-sessions", nil)
	if err != nil {
		t.Fatalf("list-sessions: %v", err)
	}
	sessions := out.(map[string]interface{})["sessions"].([]pool.SessionInfo)
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}

	if _, err := srv.ExecuteTool("release-session", map[string]interface{}{
		"session_id": id,
		"keep_alive": false,
	}); err != nil {
		t.Fatalf("release-session: %v", err)
	}
	if p.Len() != 0 {
		t.Errorf("expected empty pool after close, got %d", p.Len())
	}
}

func TestBookingAdvanceFullRun(t *testing.T) {
	srv, _ := newTestServer(t, wizardPage())
	id := acquire(t, srv, "ops-team")

	// Phase 1: service selection.
	out, err := srv.ExecuteTool("booking-advance", map[string]interface{}{
		"session_id": id,
		"fields":     map[string]interface{}{"service_type": "drop-off"},
	})
	if err != nil {
		t.Fatalf("phase 1: %v", err)
	}
	p1 := out.(map[string]interface{})
	if p1["advanced"] != true {
		t.Fatalf("expected advanced, got %v", p1)
	}
	runID := p1["run_id"].(string)

	// Phase 2 with a missing field pauses the run.
	out, err = srv.ExecuteTool("booking-advance", map[string]interface{}{
		"session_id": id,
		"run_id":     runID,
		"fields":     map[string]interface{}{"booking_date": "2026-09-01"},
	})
	if err != nil {
		t.Fatalf("phase 2 pause: %v", err)
	}
	p2 := out.(map[string]interface{})
	if p2["continuation"] != true {
		t.Fatalf("expected continuation, got %v", p2)
	}
	missing := p2["missing_fields"].([]string)
	if len(missing) != 1 || missing[0] != "container_no" {
		t.Errorf("expected exactly container_no missing, got %v", missing)
	}

	// Resume with the missing field.
	out, err = srv.ExecuteTool("booking-advance", map[string]interface{}{
		"session_id": id,
		"run_id":     runID,
		"fields": map[string]interface{}{
			"booking_date": "2026-09-01",
			"container_no": "MSKU1234567",
		},
	})
	if err != nil {
		t.Fatalf("phase 2 resume: %v", err)
	}
	if out.(map[string]interface{})["advanced"] != true {
		t.Fatalf("expected advanced, got %v", out)
	}

	// Phase 3: confirmation collects slots and finishes the run.
	out, err = srv.ExecuteTool("booking-advance", map[string]interface{}{
		"session_id": id,
		"run_id":     runID,
	})
	if err != nil {
		t.Fatalf("phase 3: %v", err)
	}
	done := out.(map[string]interface{})
	if done["completed"] != true {
		t.Fatalf("expected completion, got %v", done)
	}

	// The run is gone; resuming it is an error.
	if _, err := srv.ExecuteTool("booking-advance", map[string]interface{}{
		"session_id": id,
		"run_id":     runID,
	}); err == nil {
		t.Error("expected an error resuming a completed run")
	}
}

func TestBookingAdvanceRejectsForeignRun(t *testing.T) {
	srv, _ := newTestServer(t, wizardPage())
	id := acquire(t, srv, "ops-team")

	out, err := srv.ExecuteTool("booking-advance", map[string]interface{}{
		"session_id": id,
		"fields":     map[string]interface{}{"service_type": "drop-off"},
	})
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	runID := out.(map[string]interface{})["run_id"].(string)

	other := acquire(t, srv, "other-team")
	if _, err := srv.ExecuteTool("booking-advance", map[string]interface{}{
		"session_id": other,
		"run_id":     runID,
	}); err == nil || !strings.Contains(err.Error(), "different session") {
		t.Errorf("expected a session-mismatch error, got %v", err)
	}
}

func TestFlowToolsRequireKnownSession(t *testing.T) {
	srv, _ := newTestServer(t, wizardPage())

	_, err := srv.ExecuteTool("container-lookup", map[string]interface{}{"session_id": "nope"})
	var invalid *pool.SessionInvalidError
	if !errors.As(err, &invalid) {
		t.Errorf("expected SessionInvalidError, got %v", err)
	}
}

func TestStatusInquiryEvictsExpiredSession(t *testing.T) {
	fake := wizardPage()
	fake.SetElement("#session-expired", nil)
	srv, p := newTestServer(t, fake)
	id := acquire(t, srv, "ops-team")

	_, err := srv.ExecuteTool("status-inquiry", map[string]interface{}{
		"session_id":   id,
		"container_no": "MSKU1234567",
		"reference":    "Gate Out",
	})
	var expired *pool.SessionExpiredError
	if !errors.As(err, &expired) {
		t.Fatalf("expected SessionExpiredError, got %v", err)
	}
	if expired.SessionID != id {
		t.Errorf("error must name the evicted session, got %q", expired.SessionID)
	}
	if _, ok := p.Get(id); ok {
		t.Error("expired session must be evicted from the pool")
	}
}
