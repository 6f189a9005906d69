package pool

import (
	"context"
	"sync"
	"time"

	"portalflow-engine/internal/driver"

	"github.com/google/uuid"
)

// Session statuses.
const (
	StatusActive  = "active"
	StatusExpired = "expired"
	StatusClosed  = "closed"
)

// Credentials authenticate one portal identity.
type Credentials struct {
	Username string
	Password string
}

// Authenticator logs an identity into the portal and returns a driver bound to
// the authenticated page. Implementations must close any partially created
// driver before returning an error, so a failed login never leaks a browser.
type Authenticator interface {
	Login(ctx context.Context, identity string, creds Credentials) (driver.PageDriver, error)
}

// EventSink receives pool lifecycle events (see internal/recorder).
type EventSink interface {
	Log(eventType, sessionID string, data interface{})
}

// Session wraps one authenticated, long-lived page driver for one identity.
// The session is the driver's exclusive owner: removal from the pool implies
// the driver is closed, exactly once, on every code path.
type Session struct {
	ID        string
	Identity  string
	CreatedAt time.Time

	drv       driver.PageDriver
	closeOnce sync.Once

	mu         sync.Mutex
	lastUsedAt time.Time
	pinned     bool
	status     string
}

// Driver returns the underlying page driver. Callers must not close it;
// lifetime belongs to the pool.
func (s *Session) Driver() driver.PageDriver { return s.drv }

// Status returns the session status: active, expired, or closed.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastUsedAt returns the last touch time.
func (s *Session) LastUsedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsedAt
}

// Pinned reports whether the session is exempt from TTL eviction.
func (s *Session) Pinned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pinned
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsedAt = time.Now()
	s.mu.Unlock()
}

func (s *Session) liveWithin(ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return false
	}
	if s.pinned {
		return true
	}
	return time.Since(s.lastUsedAt) <= ttl
}

// closeDriver releases the driver exactly once and marks the session.
func (s *Session) closeDriver(status string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.status = status
		s.mu.Unlock()
		_ = s.drv.Close()
	})
}

// Pool owns the identity -> Session map: creation, reuse, TTL eviction.
//
// The map is the only structure touched by concurrent callers, so all map
// mutations happen under one mutex; the slow authentication call runs outside
// it (check-auth-recheck). A late duplicate login for an identity is discarded
// in favor of whichever session was inserted first.
type Pool struct {
	auth Authenticator
	ttl  time.Duration
	max  int
	sink EventSink

	mu         sync.Mutex
	byIdentity map[string]*Session
	byID       map[string]*Session
}

// Option configures a Pool.
type Option func(*Pool)

// WithEventSink wires a flight recorder into the pool.
func WithEventSink(sink EventSink) Option {
	return func(p *Pool) { p.sink = sink }
}

// WithMaxSessions bounds the number of pooled sessions. Zero means unlimited.
func WithMaxSessions(n int) Option {
	return func(p *Pool) { p.max = n }
}

// New creates a pool. ttl is the idle time after which unpinned sessions are
// eligible for eviction.
func New(auth Authenticator, ttl time.Duration, opts ...Option) *Pool {
	p := &Pool{
		auth:       auth,
		ttl:        ttl,
		byIdentity: make(map[string]*Session),
		byID:       make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) record(event, sessionID string, data interface{}) {
	if p.sink != nil {
		p.sink.Log(event, sessionID, data)
	}
}

// Acquire returns a live session for identity, reusing a pooled one when
// possible. reused=true means the caller got an existing session.
func (p *Pool) Acquire(ctx context.Context, identity string, creds Credentials, pin bool) (*Session, bool, error) {
	p.mu.Lock()
	if s := p.byIdentity[identity]; s != nil {
		if s.liveWithin(p.ttl) {
			s.touch()
			if pin {
				s.mu.Lock()
				s.pinned = true
				s.mu.Unlock()
			}
			p.mu.Unlock()
			p.record("session_reused", s.ID, map[string]interface{}{"identity": identity})
			return s, true, nil
		}
		// Stale entry: forget it now, close it after the lock is dropped.
		p.removeLocked(s)
		defer s.closeDriver(StatusExpired)
	}
	if p.max > 0 && len(p.byID) >= p.max {
		p.mu.Unlock()
		return nil, false, ErrPoolFull
	}
	p.mu.Unlock()

	drv, err := p.auth.Login(ctx, identity, creds)
	if err != nil {
		return nil, false, &AuthError{Identity: identity, Err: err}
	}

	p.mu.Lock()
	if existing := p.byIdentity[identity]; existing != nil && existing.liveWithin(p.ttl) {
		// Another caller won the login race; keep the first-inserted session.
		existing.touch()
		p.mu.Unlock()
		_ = drv.Close()
		p.record("session_reused", existing.ID, map[string]interface{}{"identity": identity, "duplicate_login_discarded": true})
		return existing, true, nil
	}

	now := time.Now()
	s := &Session{
		ID:         uuid.NewString(),
		Identity:   identity,
		CreatedAt:  now,
		drv:        drv,
		lastUsedAt: now,
		pinned:     pin,
		status:     StatusActive,
	}
	p.byIdentity[identity] = s
	p.byID[s.ID] = s
	p.mu.Unlock()

	p.record("session_created", s.ID, map[string]interface{}{"identity": identity, "pinned": pin})
	return s, false, nil
}

// Get returns the session for id when still pooled.
func (p *Pool) Get(id string) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.byID[id]
	return s, ok
}

// Touch updates last_used_at for the session.
func (p *Pool) Touch(id string) {
	p.mu.Lock()
	s, ok := p.byID[id]
	p.mu.Unlock()
	if ok {
		s.touch()
	}
}

// Release returns a session to the pool (keepAlive=true) or closes and
// removes it immediately regardless of TTL (keepAlive=false).
func (p *Pool) Release(id string, keepAlive bool) {
	p.mu.Lock()
	s, ok := p.byID[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	if keepAlive {
		p.mu.Unlock()
		s.touch()
		return
	}
	p.removeLocked(s)
	p.mu.Unlock()

	s.closeDriver(StatusClosed)
	p.record("session_released", s.ID, map[string]interface{}{"identity": s.Identity})
}

// MarkLost evicts a session whose driver lost authentication (an observed
// "session expired" page), so the next Acquire for that identity logs in
// fresh. This is the automatic session-recovery contract.
func (p *Pool) MarkLost(id string) {
	p.mu.Lock()
	s, ok := p.byID[id]
	if ok {
		p.removeLocked(s)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	s.closeDriver(StatusExpired)
	p.record("session_lost", s.ID, map[string]interface{}{"identity": s.Identity})
}

// Sweep evicts and closes every unpinned session whose idle time exceeds the
// TTL. Safe to call concurrently with Acquire and Touch. Returns the number
// of sessions evicted.
func (p *Pool) Sweep() int {
	p.mu.Lock()
	var victims []*Session
	for _, s := range p.byID {
		if s.Pinned() {
			continue
		}
		if time.Since(s.LastUsedAt()) > p.ttl {
			victims = append(victims, s)
		}
	}
	for _, s := range victims {
		p.removeLocked(s)
	}
	p.mu.Unlock()

	for _, s := range victims {
		s.closeDriver(StatusExpired)
		p.record("session_evicted", s.ID, map[string]interface{}{"identity": s.Identity})
	}
	return len(victims)
}

// RunSweeper sweeps on the given interval until ctx is done.
func (p *Pool) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep()
		}
	}
}

// Len returns the number of pooled sessions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byID)
}

// List returns lightweight metadata for all pooled sessions.
func (p *Pool) List() []SessionInfo {
	p.mu.Lock()
	sessions := make([]*Session, 0, len(p.byID))
	for _, s := range p.byID {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, SessionInfo{
			ID:         s.ID,
			Identity:   s.Identity,
			Status:     s.Status(),
			Pinned:     s.Pinned(),
			CreatedAt:  s.CreatedAt,
			LastUsedAt: s.LastUsedAt(),
		})
	}
	return infos
}

// SessionInfo is public metadata for one pooled session.
type SessionInfo struct {
	ID         string    `json:"id"`
	Identity   string    `json:"identity"`
	Status     string    `json:"status"`
	Pinned     bool      `json:"pinned"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// CloseAll closes every session, pinned or not. Deterministic teardown for
// shutdown and tests.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	victims := make([]*Session, 0, len(p.byID))
	for _, s := range p.byID {
		victims = append(victims, s)
	}
	p.byIdentity = make(map[string]*Session)
	p.byID = make(map[string]*Session)
	p.mu.Unlock()

	for _, s := range victims {
		s.closeDriver(StatusClosed)
	}
}

// removeLocked drops s from both maps. Caller holds p.mu.
func (p *Pool) removeLocked(s *Session) {
	if p.byIdentity[s.Identity] == s {
		delete(p.byIdentity, s.Identity)
	}
	delete(p.byID, s.ID)
}
