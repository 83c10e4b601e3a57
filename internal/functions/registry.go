package functions

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"agentgate/internal/core"
)

// Registry maps function names to their handlers. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	functions map[string]core.Function
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{functions: make(map[string]core.Function)}
}

// Register adds fn under its name. Empty and duplicate names are rejected.
func (r *Registry) Register(fn core.Function) error {
	if fn == nil || fn.Name() == "" {
		return core.NewInvalidFunctionError("function name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.functions[fn.Name()]; exists {
		return core.NewInvalidFunctionError(fmt.Sprintf("function %s is already registered", fn.Name()))
	}
	r.functions[fn.Name()] = fn
	slog.Debug("function registered", "name", fn.Name())
	return nil
}

// Get returns the function registered under name, or a FUNCTION_NOT_FOUND error
func (r *Registry) Get(name string) (core.Function, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.functions[name]
	if !ok {
		return nil, core.NewFunctionNotFoundError(name)
	}
	return fn, nil
}

// Lookup resolves names in order and fails on the first unknown one
func (r *Registry) Lookup(names []string) ([]core.Function, error) {
	if len(names) == 0 {
		return nil, nil
	}
	resolved := make([]core.Function, 0, len(names))
	for _, name := range names {
		fn, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, fn)
	}
	return resolved, nil
}

// List returns the metadata of every registered function sorted by name
func (r *Registry) List() []core.FunctionSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]core.FunctionSpec, 0, len(r.functions))
	for _, fn := range r.functions {
		specs = append(specs, core.SpecOf(fn))
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Len returns the number of registered functions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.functions)
}

// builtins holds constructors registered by init() in this package
var builtins []func() core.Function

func registerBuiltin(constructor func() core.Function) {
	builtins = append(builtins, constructor)
}

// LoadBuiltins registers every built-in function into r
func LoadBuiltins(r *Registry) error {
	for _, constructor := range builtins {
		if err := r.Register(constructor()); err != nil {
			return err
		}
	}
	slog.Info("functions loaded", "count", r.Len())
	return nil
}
