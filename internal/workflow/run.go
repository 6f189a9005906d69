package workflow

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Run tracks progress through one multi-phase submission. It references its
// session by id only: the session's lifetime is independent and may outlive
// the run.
type Run struct {
	ID        string
	SessionID string
	CreatedAt time.Time

	def *Definition

	mu           sync.Mutex
	currentPhase int
	fields       map[string]string
	lastUsedAt   time.Time
	completed    bool
}

func newRun(def *Definition, sessionID string) *Run {
	now := time.Now()
	return &Run{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		CreatedAt:    now,
		def:          def,
		currentPhase: 1,
		fields:       make(map[string]string),
		lastUsedAt:   now,
	}
}

// CurrentPhase returns the ordinal of the pending phase. It only ever moves
// forward, one step at a time, after a verified transition.
func (r *Run) CurrentPhase() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentPhase
}

// Completed reports whether the terminal phase has finished.
func (r *Run) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

// Fields returns a copy of the accumulated field values.
func (r *Run) Fields() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// missingLocked lists required fields absent from supplied ∪ accumulated,
// sorted for deterministic resumption messages. Caller holds r.mu.
func (r *Run) missingLocked(spec PhaseSpec, supplied map[string]string) []string {
	var missing []string
	for _, name := range spec.Required {
		if _, ok := r.fields[name]; ok {
			continue
		}
		if _, ok := supplied[name]; ok {
			continue
		}
		missing = append(missing, name)
	}
	sort.Strings(missing)
	return missing
}

// Registry maps run id -> Run so callers can resume with only the run id
// plus the missing field subset. In-memory, process-scoped.
type Registry struct {
	mu   sync.Mutex
	runs map[string]*Run
}

func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*Run)}
}

func (g *Registry) Create(def *Definition, sessionID string) *Run {
	r := newRun(def, sessionID)
	g.mu.Lock()
	g.runs[r.ID] = r
	g.mu.Unlock()
	return r
}

func (g *Registry) Get(id string) (*Run, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.runs[id]
	return r, ok
}

// Remove forgets a run (terminal completion or caller abandonment).
func (g *Registry) Remove(id string) {
	g.mu.Lock()
	delete(g.runs, id)
	g.mu.Unlock()
}

func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.runs)
}
