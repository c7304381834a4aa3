package holdthis

import (
	"time"

	"github.com/rzpsarthak13/holdthis/internal/store"
)

// SetOption configures a single write.
type SetOption func(*store.SetOptions)

// WithTTL expires the value d after it is written. A zero TTL is valid: the
// value is stored but never visible to reads. A negative TTL is ignored.
func WithTTL(d time.Duration) SetOption {
	return func(o *store.SetOptions) {
		o.TTL = &d
	}
}

// WithJSON stores the value as plain JSON. It is faster for plain data but
// maps with non-string keys, dates and big integers come back as generic JSON.
func WithJSON() SetOption {
	return func(o *store.SetOptions) {
		o.JSON = true
	}
}

func applySetOptions(opts []SetOption) store.SetOptions {
	var o store.SetOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
