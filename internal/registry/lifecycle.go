package registry

import (
	"context"
	"sync"

	"github.com/rzpsarthak13/holdthis/internal/core"
)

// LifecycleHook is notified when a topic is materialized.
// Hooks run synchronously after the table exists and before the topic is
// registered; an error fails the initialization and leaves the topic
// unregistered.
type LifecycleHook interface {
	OnTopicInit(ctx context.Context, schema core.TopicSchema) error
}

// LifecycleHookFunc adapts a function to LifecycleHook.
type LifecycleHookFunc func(ctx context.Context, schema core.TopicSchema) error

// OnTopicInit calls f.
func (f LifecycleHookFunc) OnTopicInit(ctx context.Context, schema core.TopicSchema) error {
	if f == nil {
		return nil
	}
	return f(ctx, schema)
}

// LifecycleManager holds the hooks of one store.
type LifecycleManager struct {
	mu    sync.RWMutex
	hooks []LifecycleHook
}

// NewLifecycleManager creates a new lifecycle manager.
func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{
		hooks: make([]LifecycleHook, 0),
	}
}

// RegisterHook adds a hook. Hooks are executed in the order they were registered.
func (lm *LifecycleManager) RegisterHook(hook LifecycleHook) {
	if hook == nil {
		return
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.hooks = append(lm.hooks, hook)
}

// ExecuteInitHooks runs every registered hook in order and stops at the
// first error.
func (lm *LifecycleManager) ExecuteInitHooks(ctx context.Context, schema core.TopicSchema) error {
	lm.mu.RLock()
	hooks := make([]LifecycleHook, len(lm.hooks))
	copy(hooks, lm.hooks)
	lm.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook.OnTopicInit(ctx, schema); err != nil {
			return err
		}
	}
	return nil
}

// HookCount returns the number of registered hooks.
func (lm *LifecycleManager) HookCount() int {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return len(lm.hooks)
}
