package activities

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownActivity marks an activity name with no registration. The
// interpreter treats it as a definition error: fatal, never retried.
var ErrUnknownActivity = errors.New("unknown activity")

// Handler is one invocable operation. Params arrive fully interpolated;
// the returned map is written under the step's outputPath.
type Handler func(ctx context.Context, params map[string]any) (map[string]any, error)

type Activity struct {
	Name        string
	Description string
	Handler     Handler
}

// Registry is the lookup from activity name to operation. It is populated
// once at process start and read concurrently by every workflow run.
type Registry struct {
	mu         sync.RWMutex
	activities map[string]Activity
}

func NewRegistry() *Registry {
	return &Registry{activities: make(map[string]Activity)}
}

func (r *Registry) Register(a Activity) error {
	if a.Name == "" {
		return fmt.Errorf("activity requires a name")
	}
	if a.Handler == nil {
		return fmt.Errorf("activity %q requires a handler", a.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.activities[a.Name]; exists {
		return fmt.Errorf("activity %q is already registered", a.Name)
	}
	r.activities[a.Name] = a
	return nil
}

func (r *Registry) Lookup(name string) (Activity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.activities[name]
	return a, ok
}

// Invoke runs one attempt of the named activity. Retry wrapping is the
// substrate's job, not the registry's.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	a, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownActivity, name)
	}
	return a.Handler(ctx, params)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.activities))
	for n := range r.activities {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
