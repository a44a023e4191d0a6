// Package registry holds the process-wide shared state of the orchestrator:
// live external-process handles and prepared download records. Both maps are
// mutated from concurrent connection handlers and are guarded internally;
// no raw map access is exposed.
package registry

import "sync"

// Handle is a live external-process reference that can be force-terminated.
type Handle interface {
	Kill() error
}

// ProcessRegistry tracks live process handles keyed by download identifier.
// At most one handle exists per identifier at a time.
type ProcessRegistry struct {
	mu    sync.Mutex
	procs map[string]Handle
}

// NewProcessRegistry creates an empty process registry.
func NewProcessRegistry() *ProcessRegistry {
	return &ProcessRegistry{procs: make(map[string]Handle)}
}

// Register associates a handle with a download identifier, replacing any
// previous handle for the same identifier.
func (r *ProcessRegistry) Register(id string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.procs[id] = h
}

// Unregister removes the handle for the identifier. Called on natural
// process exit; removal is idempotent so it tolerates racing with KillAll.
func (r *ProcessRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.procs, id)
}

// KillAll force-terminates every live handle and clears the registry,
// returning how many handles were killed. Used for global cancellation.
func (r *ProcessRegistry) KillAll() int {
	r.mu.Lock()
	procs := r.procs
	r.procs = make(map[string]Handle)
	r.mu.Unlock()

	for _, h := range procs {
		// Kill errors are ignored: the process may have exited on its own
		// between the snapshot and the kill.
		_ = h.Kill()
	}

	return len(procs)
}

// Len returns the number of live handles.
func (r *ProcessRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.procs)
}
