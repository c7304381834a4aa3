package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/exp/slog"

	"github.com/rzpsarthak13/holdthis/internal/registry"
)

// Factory builds the sink for one notification type.
type Factory func(ctx context.Context, config registry.InternalNotifyConfig, logger *slog.Logger) (Sink, error)

var (
	// factoryRegistry stores all registered sink factories.
	factoryRegistry = make(map[string]Factory)

	// factoryRegistryMutex protects the factory registry from concurrent access.
	factoryRegistryMutex sync.RWMutex
)

func init() {
	RegisterFactory(registry.NotifyNone, func(context.Context, registry.InternalNotifyConfig, *slog.Logger) (Sink, error) {
		return Noop{}, nil
	})
	RegisterFactory(registry.NotifyMemory, func(_ context.Context, config registry.InternalNotifyConfig, _ *slog.Logger) (Sink, error) {
		return NewMemorySink(config.BufferSize), nil
	})
	RegisterFactory(registry.NotifyRedis, func(ctx context.Context, config registry.InternalNotifyConfig, logger *slog.Logger) (Sink, error) {
		return DialRedisSink(ctx, config.Redis, logger)
	})
	RegisterFactory(registry.NotifyKafka, func(_ context.Context, config registry.InternalNotifyConfig, logger *slog.Logger) (Sink, error) {
		writer, err := NewKafkaWriter(config.Kafka)
		if err != nil {
			return nil, err
		}
		return NewKafkaSink(writer, logger), nil
	})
}

// RegisterFactory registers the factory for a notification type.
// Panics if the type is empty or already registered.
func RegisterFactory(notifyType string, factory Factory) {
	if factory == nil {
		panic("factory cannot be nil")
	}
	if notifyType == "" {
		panic("factory type cannot be empty")
	}

	factoryRegistryMutex.Lock()
	defer factoryRegistryMutex.Unlock()

	if _, exists := factoryRegistry[notifyType]; exists {
		panic(fmt.Sprintf("factory for type %q is already registered", notifyType))
	}
	factoryRegistry[notifyType] = factory
}

// Create builds the sink selected by config.Type. An empty type yields Noop.
func Create(ctx context.Context, config registry.InternalNotifyConfig, logger *slog.Logger) (Sink, error) {
	notifyType := config.Type
	if notifyType == "" {
		notifyType = registry.NotifyNone
	}

	factoryRegistryMutex.RLock()
	factory, exists := factoryRegistry[notifyType]
	factoryRegistryMutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported notify type: %s", notifyType)
	}

	sink, err := factory(ctx, config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s sink: %w", notifyType, err)
	}
	return sink, nil
}

// RegisteredTypes returns the registered notification types in sorted order.
func RegisteredTypes() []string {
	factoryRegistryMutex.RLock()
	defer factoryRegistryMutex.RUnlock()

	types := make([]string, 0, len(factoryRegistry))
	for t := range factoryRegistry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
