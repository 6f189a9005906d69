package mcp

import (
	"errors"
	"fmt"
	"testing"

	"portalflow-engine/internal/pool"
	"portalflow-engine/internal/portal"
	"portalflow-engine/internal/progress"
	"portalflow-engine/internal/workflow"
)

func TestErrorCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&pool.AuthError{Identity: "ops", Err: errors.New("denied")}, "auth_failed"},
		{&pool.SessionExpiredError{SessionID: "s1"}, "session_expired"},
		{&pool.SessionInvalidError{SessionID: "s1"}, "session_invalid"},
		{&workflow.PhaseStuckError{Phase: 2, Attempts: 3}, "phase_stuck"},
		{&workflow.PhaseActionFailedError{Phase: 1, Err: errors.New("gone")}, "phase_action_failed"},
		{&progress.ReferenceNotFoundError{Name: "Gate Out"}, "reference_not_found"},
		{pool.ErrPoolFull, "pool_full"},
		{workflow.ErrRunCompleted, "run_completed"},
		{portal.ErrSessionLost, "session_expired"},
		{fmt.Errorf("wrapped: %w", &workflow.PhaseStuckError{Phase: 1}), "phase_stuck"},
		{errors.New("boom"), "internal"},
	}
	for _, c := range cases {
		if got := errorCode(c.err); got != c.want {
			t.Errorf("errorCode(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestGetFieldsArg(t *testing.T) {
	args := map[string]interface{}{
		"fields": map[string]interface{}{
			"container_no": "MSKU1234567",
			"slot_count":   3.0, // JSON numbers decode as float64
		},
	}
	fields := getFieldsArg(args, "fields")
	if fields["container_no"] != "MSKU1234567" {
		t.Errorf("string value mangled: %q", fields["container_no"])
	}
	if fields["slot_count"] != "3" {
		t.Errorf("numeric value must stringify, got %q", fields["slot_count"])
	}

	if got := getFieldsArg(map[string]interface{}{}, "fields"); got != nil {
		t.Errorf("missing key must yield nil, got %v", got)
	}
}

func TestGetArgHelpers(t *testing.T) {
	args := map[string]interface{}{
		"name": "ops",
		"pin":  true,
		"n":    7,
	}
	if getStringArg(args, "name") != "ops" {
		t.Error("string arg")
	}
	if getStringArg(args, "missing") != "" {
		t.Error("missing string arg must be empty")
	}
	if !getBoolArg(args, "pin", false) {
		t.Error("bool arg")
	}
	if getBoolArg(args, "n", true) != true {
		t.Error("non-bool falls back")
	}
}
