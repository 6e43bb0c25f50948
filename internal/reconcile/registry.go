package reconcile

import (
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/finance-ledger/internal/domain"
)

// Registry keeps the open imports of all users, keyed by import id.
type Registry struct {
	mu        sync.RWMutex
	deps      Deps
	workflows map[string]*Workflow
}

// NewRegistry creates a registry whose workflows share deps.
func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, workflows: make(map[string]*Workflow)}
}

// Start opens a new import for userID.
func (r *Registry) Start(userID string) *Workflow {
	w := New(userID, r.deps)
	r.mu.Lock()
	r.workflows[w.ID()] = w
	r.mu.Unlock()
	return w
}

// Get returns the user's import. Imports of other users are reported as
// not found.
func (r *Registry) Get(userID, id string) (*Workflow, error) {
	r.mu.RLock()
	w, ok := r.workflows[id]
	r.mu.RUnlock()
	if !ok || w.UserID() != userID {
		return nil, domain.NewNotFoundError("import", id)
	}
	return w, nil
}

// List returns the user's imports, most recently touched first.
func (r *Registry) List(userID string) []View {
	r.mu.RLock()
	var views []View
	for _, w := range r.workflows {
		if w.UserID() == userID {
			views = append(views, w.View())
		}
	}
	r.mu.RUnlock()
	sort.Slice(views, func(i, j int) bool { return views[i].UpdatedAt.After(views[j].UpdatedAt) })
	return views
}

// Discard drops an import.
func (r *Registry) Discard(userID, id string) error {
	if _, err := r.Get(userID, id); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.workflows, id)
	r.mu.Unlock()
	return nil
}

// Prune drops imports untouched since before cutoff and returns how many
// went.
func (r *Registry) Prune(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, w := range r.workflows {
		if w.lastTouched().Before(cutoff) {
			delete(r.workflows, id)
			n++
		}
	}
	return n
}
