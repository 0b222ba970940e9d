package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"shop-sync-service/internal/models"
)

// Handler runs one named function with its raw params
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// knownFunctions is the closed set of function names a job may call
var knownFunctions = map[models.FunctionName]struct{}{
	models.FunctionSyncAllShops:         {},
	models.FunctionSyncShopOrders:       {},
	models.FunctionCleanupNotifications: {},
	models.FunctionCleanupExecutions:    {},
	models.FunctionExpireStaleTokens:    {},
}

// FunctionRegistry maps function names to handlers
type FunctionRegistry struct {
	mu       sync.RWMutex
	handlers map[models.FunctionName]Handler
}

// NewFunctionRegistry creates an empty registry
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{handlers: make(map[models.FunctionName]Handler)}
}

// Register binds a handler to one of the known function names
func (r *FunctionRegistry) Register(name models.FunctionName, handler Handler) error {
	if _, ok := knownFunctions[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFunctionName, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
	return nil
}

// Lookup returns the handler of a function
func (r *FunctionRegistry) Lookup(name models.FunctionName) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	return handler, nil
}

// Names lists the registered functions
func (r *FunctionRegistry) Names() []models.FunctionName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]models.FunctionName, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
