package mcp

import (
	"errors"
	"fmt"

	"portalflow-engine/internal/pool"
	"portalflow-engine/internal/portal"
	"portalflow-engine/internal/workflow"
)

func getStringArg(args map[string]interface{}, key string) string {
	val, ok := args[key]
	if !ok {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// getBoolArg extracts a boolean argument with default.
func getBoolArg(args map[string]interface{}, key string, fallback bool) bool {
	val, ok := args[key]
	if !ok {
		return fallback
	}
	if b, ok := val.(bool); ok {
		return b
	}
	return fallback
}

// getFieldsArg extracts a string-valued object argument (form field values).
func getFieldsArg(args map[string]interface{}, key string) map[string]string {
	raw, ok := args[key].(map[string]interface{})
	if !ok {
		return nil
	}
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			fields[k] = s
		} else {
			fields[k] = fmt.Sprintf("%v", v)
		}
	}
	return fields
}

// errorCode maps the typed error taxonomy onto the stable codes tool callers
// branch on.
func errorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	switch {
	case errors.Is(err, pool.ErrPoolFull):
		return "pool_full"
	case errors.Is(err, workflow.ErrRunCompleted):
		return "run_completed"
	case errors.Is(err, portal.ErrSessionLost):
		return "session_expired"
	default:
		return "internal"
	}
}

// mapSessionLoss converts the portal's expired-interstitial signal into the
// session recovery contract: the pooled session is evicted so the next
// acquire logs in fresh.
func mapSessionLoss(p *pool.Pool, sessionID string, err error) error {
	if errors.Is(err, portal.ErrSessionLost) {
		p.MarkLost(sessionID)
		return &pool.SessionExpiredError{SessionID: sessionID}
	}
	return err
}

// liveSession resolves a pooled session id, touching it on success.
func liveSession(p *pool.Pool, sessionID string) (*pool.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	s, ok := p.Get(sessionID)
	if !ok {
		return nil, &pool.SessionInvalidError{SessionID: sessionID}
	}
	p.Touch(sessionID)
	return s, nil
}
