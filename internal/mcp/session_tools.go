package mcp

import (
	"context"
	"fmt"

	"portalflow-engine/internal/pool"
)

type AcquireSessionTool struct {
	pool *pool.Pool
}

func (t *AcquireSessionTool) Name() string { return "acquire-session" }
func (t *AcquireSessionTool) Description() string {
	return `Acquire an authenticated portal session for an identity.

Reuses a live pooled session when one exists; otherwise performs a fresh
portal login. Sessions idle past their TTL are evicted in the background,
so hold the returned session_id, not the session.

Returns: {session: {id, identity, status, ...}, reused}.`
}
func (t *AcquireSessionTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"identity": map[string]interface{}{
				"type":        "string",
				"description": "Portal account identity (pool key)",
			},
			"username": map[string]interface{}{
				"type":        "string",
				"description": "Portal login username",
			},
			"password": map[string]interface{}{
				"type":        "string",
				"description": "Portal login password",
			},
			"pin": map[string]interface{}{
				"type":        "boolean",
				"description": "Exempt the session from TTL eviction",
			},
		},
		"required": []string{"identity"},
	}
}
func (t *AcquireSessionTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	identity := getStringArg(args, "identity")
	if identity == "" {
		return nil, fmt.Errorf("identity is required")
	}
	creds := pool.Credentials{
		Username: getStringArg(args, "username"),
		Password: getStringArg(args, "password"),
	}

	sess, reused, err := t.pool.Acquire(ctx, identity, creds, getBoolArg(args, "pin", false))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"session": map[string]interface{}{
			"id":       sess.ID,
			"identity": sess.Identity,
			"status":   sess.Status(),
			"pinned":   sess.Pinned(),
		},
		"reused": reused,
	}, nil
}

type ReleaseSessionTool struct {
	pool *pool.Pool
}

func (t *ReleaseSessionTool) Name() string { return "release-session" }
func (t *ReleaseSessionTool) Description() string {
	return `Release a session back to the pool or close it outright.

keep_alive=true returns the session for reuse by later acquires of the same
identity; keep_alive=false closes the browser page immediately.

Returns: {released: true, kept_alive}.`
}
func (t *ReleaseSessionTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "Session to release",
			},
			"keep_alive": map[string]interface{}{
				"type":        "boolean",
				"description": "Keep the session pooled for reuse (default true)",
			},
		},
		"required": []string{"session_id"},
	}
}
func (t *ReleaseSessionTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	id := getStringArg(args, "session_id")
	if id == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	keepAlive := getBoolArg(args, "keep_alive", true)
	t.pool.Release(id, keepAlive)
	return map[string]interface{}{"released": true, "kept_alive": keepAlive}, nil
}

type ListSessionsTool struct {
	pool *pool.Pool
}

func (t *ListSessionsTool) Name() string { return "list-sessions" }
func (t *ListSessionsTool) Description() string {
	return `List all pooled portal sessions with their status and idle times.

Returns: {sessions: [{id, identity, status, pinned, created_at, last_used_at}]}.`
}
func (t *ListSessionsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListSessionsTool) Execute(context.Context, map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"sessions": t.pool.List()}, nil
}
