package mcp

import (
	"context"
	"fmt"

	"portalflow-engine/internal/pool"
	"portalflow-engine/internal/portal"
	"portalflow-engine/internal/workflow"
)

// BookingAdvanceTool drives the appointment wizard one phase at a time. Omit
// run_id to start a new run; resume by passing the run_id back with the
// missing fields.
type BookingAdvanceTool struct {
	pool    *pool.Pool
	engine  *workflow.Engine
	booking *portal.Booking
	def     *workflow.Definition
}

func (t *BookingAdvanceTool) Name() string { return "booking-advance" }
func (t *BookingAdvanceTool) Description() string {
	return `Advance an appointment booking wizard by one phase.

Without run_id a new booking run starts on the session's page. Each call
supplies field values for the pending phase; when required fields are
missing the response lists them and the run waits, resumable with just
run_id plus those fields.

Phases: 1 service selection (service_type), 2 details (container_no,
booking_date), 3 confirmation returning available slots.

Returns one of:
- {run_id, phase, continuation: true, missing_fields}
- {run_id, phase, advanced: true, observed, low_confidence}
- {run_id, phase, ambiguous: true, observed}
- {run_id, completed: true, slots}`
}
func (t *BookingAdvanceTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "Authenticated session driving the wizard",
			},
			"run_id": map[string]interface{}{
				"type":        "string",
				"description": "Existing run to resume; omit to start a new booking",
			},
			"fields": map[string]interface{}{
				"type":        "object",
				"description": "Field values for the pending phase",
			},
		},
		"required": []string{"session_id"},
	}
}
func (t *BookingAdvanceTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	sess, err := liveSession(t.pool, getStringArg(args, "session_id"))
	if err != nil {
		return nil, err
	}

	var run *workflow.Run
	if runID := getStringArg(args, "run_id"); runID != "" {
		var ok bool
		run, ok = t.engine.Runs().Get(runID)
		if !ok {
			return nil, fmt.Errorf("unknown run: %s", runID)
		}
		if run.SessionID != sess.ID {
			return nil, fmt.Errorf("run %s belongs to a different session", runID)
		}
	} else {
		if err := t.booking.Open(sess.Driver()); err != nil {
			return nil, mapSessionLoss(t.pool, sess.ID, err)
		}
		run = t.engine.Start(t.def, sess.ID)
	}

	res, err := t.engine.Advance(sess.Driver(), run, getFieldsArg(args, "fields"))
	if err != nil {
		return nil, err
	}

	switch r := res.(type) {
	case workflow.ContinuationNeeded:
		return map[string]interface{}{
			"run_id":         run.ID,
			"phase":          run.CurrentPhase(),
			"continuation":   true,
			"missing_fields": r.Missing,
		}, nil
	case workflow.Advanced:
		return map[string]interface{}{
			"run_id":         run.ID,
			"phase":          run.CurrentPhase(),
			"advanced":       true,
			"observed":       r.Observed,
			"low_confidence": r.LowConfidence,
		}, nil
	case workflow.AmbiguousTransition:
		return map[string]interface{}{
			"run_id":    run.ID,
			"phase":     r.Phase,
			"ambiguous": true,
			"observed":  r.Observed,
		}, nil
	case workflow.Completed:
		return map[string]interface{}{
			"run_id":    run.ID,
			"completed": true,
			"slots":     r.Payload,
		}, nil
	default:
		return nil, fmt.Errorf("unexpected advance result %T", res)
	}
}

// ContainerLookupTool reads the virtualized container grid.
type ContainerLookupTool struct {
	pool   *pool.Pool
	lookup *portal.ContainerLookup
}

func (t *ContainerLookupTool) Name() string { return "container-lookup" }
func (t *ContainerLookupTool) Description() string {
	return `Retrieve container rows from the portal's virtualized grid.

With container_no the grid is scrolled until that row renders (found=false
when the list exhausts without it). Without container_no the full grid is
loaded to exhaustion.

Returns: {rows | row, found, load: {visible_count, cycles, stop_reason}}.`
}
func (t *ContainerLookupTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "Authenticated session to read with",
			},
			"container_no": map[string]interface{}{
				"type":        "string",
				"description": "Specific container to locate; omit to list all rows",
			},
		},
		"required": []string{"session_id"},
	}
}
func (t *ContainerLookupTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	sess, err := liveSession(t.pool, getStringArg(args, "session_id"))
	if err != nil {
		return nil, err
	}

	if number := getStringArg(args, "container_no"); number != "" {
		row, res, err := t.lookup.Find(sess.Driver(), number)
		if err != nil {
			return nil, mapSessionLoss(t.pool, sess.ID, err)
		}
		return map[string]interface{}{
			"row":   row,
			"found": row != nil,
			"load":  res,
		}, nil
	}

	rows, res, err := t.lookup.List(sess.Driver())
	if err != nil {
		return nil, mapSessionLoss(t.pool, sess.ID, err)
	}
	return map[string]interface{}{
		"rows": rows,
		"load": res,
	}, nil
}

// StatusInquiryTool classifies a container's progress against a reference
// milestone.
type StatusInquiryTool struct {
	pool   *pool.Pool
	status *portal.StatusInquiry
	sink   EventSink
}

func (t *StatusInquiryTool) Name() string { return "status-inquiry" }
func (t *StatusInquiryTool) Description() string {
	return `Classify whether a container has passed a reference milestone.

Reads the tracking page's milestone bar and applies precedence rules:
a date at the reference, then visual progression, then dated downstream
milestones. An unlocatable reference is an error (reference_not_found),
never silently "before".

Returns: {result: {status, method, evidence}}.`
}
func (t *StatusInquiryTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "Authenticated session to read with",
			},
			"container_no": map[string]interface{}{
				"type":        "string",
				"description": "Container to look up on the tracking page",
			},
			"reference": map[string]interface{}{
				"type":        "string",
				"description": "Reference milestone name (case-insensitive)",
			},
		},
		"required": []string{"session_id", "container_no", "reference"},
	}
}
func (t *StatusInquiryTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	sess, err := liveSession(t.pool, getStringArg(args, "session_id"))
	if err != nil {
		return nil, err
	}
	containerNo := getStringArg(args, "container_no")
	reference := getStringArg(args, "reference")
	if containerNo == "" || reference == "" {
		return nil, fmt.Errorf("container_no and reference are required")
	}

	res, err := t.status.Inquire(sess.Driver(), containerNo, reference)
	if err != nil {
		return nil, mapSessionLoss(t.pool, sess.ID, err)
	}
	if t.sink != nil {
		t.sink.Log("classification", sess.ID, map[string]interface{}{
			"container": containerNo,
			"reference": reference,
			"status":    res.Status,
			"method":    res.Method,
		})
	}
	return map[string]interface{}{"result": res}, nil
}
