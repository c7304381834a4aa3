package holdthis

import "context"

// Topic is a store handle bound to a single topic.
type Topic struct {
	store *Store
	name  string
}

// Name returns the topic name.
func (t *Topic) Name() string {
	return t.name
}

// Set writes value under key immediately.
func (t *Topic) Set(ctx context.Context, key string, value interface{}, opts ...SetOption) (Result, error) {
	return t.store.Set(ctx, t.name, key, value, opts...)
}

// Get returns the visible records matching key.
func (t *Topic) Get(ctx context.Context, key string) ([]Record, error) {
	return t.store.Get(ctx, t.name, key)
}

// SetBuffered queues a write on the store's buffered writer.
func (t *Topic) SetBuffered(ctx context.Context, key string, value interface{}, opts ...SetOption) (Future, error) {
	return t.store.SetBuffered(ctx, t.name, key, value, opts...)
}
