package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Registry manages tool registration and execution.
type Registry struct {
	tools       map[string]Tool
	mu          sync.RWMutex
	validator   Validator
	rateLimiter *ToolRateLimiter // nil = no rate limiting
}

func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]Tool),
		validator: NewSchemaValidator(),
	}
}

// SetValidator replaces the parameter validator. nil disables validation.
func (r *Registry) SetValidator(v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validator = v
}

// SetRateLimiter enables per-job tool rate limiting.
func (r *Registry) SetRateLimiter(rl *ToolRateLimiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rateLimiter = rl
}

// Register adds a tool to the registry. Names are unique; registering a
// taken name returns ErrToolExists and leaves the existing tool in place.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if name == "" {
		return fmt.Errorf("register tool: empty name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrToolExists, name)
	}
	if p, ok := r.validator.(schemaPreparer); ok {
		if err := p.Prepare(tool); err != nil {
			return err
		}
	}
	r.tools[name] = tool
	return nil
}

// MustRegister is Register for startup wiring where a duplicate is a bug.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Unregister removes a tool by name. Removing an unknown name is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[name]; !ok {
		slog.Debug("tool unregister: not registered", "tool", name)
		return
	}
	delete(r.tools, name)
	if p, ok := r.validator.(schemaPreparer); ok {
		p.Forget(name)
	}
	slog.Info("tool unregistered", "tool", name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns a snapshot of registered tools sorted by name.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// List returns all registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs a tool by name.
//
// Order of checks: unknown name (*NotFoundError), parameter validation
// (*ValidationError), per-job rate limit. The tool body runs only when all
// pass. Its result and error are returned unchanged; Finish is not
// interpreted here.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, ec *ExecContext) (*Result, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	validator := r.validator
	limiter := r.rateLimiter
	r.mu.RUnlock()

	if !ok {
		return nil, &NotFoundError{Name: name, Suggestion: suggestName(name, r.List())}
	}

	if validator != nil {
		if err := validator.Validate(tool, args); err != nil {
			return nil, err
		}
	}

	if limiter != nil && ec != nil && ec.Job.ID != "" {
		if err := limiter.Allow(ec.Job.ID); err != nil {
			return nil, err
		}
	}

	if ec != nil {
		ctx = WithExecContext(ctx, ec)
	}

	start := time.Now()
	result, err := tool.Execute(ctx, args)
	duration := time.Since(start)

	slog.Debug("tool executed",
		"tool", name,
		"duration_ms", duration.Milliseconds(),
		"is_error", err != nil || (result != nil && result.IsError),
	)

	return result, err
}
