package holdthis

import (
	"time"

	"github.com/rzpsarthak13/holdthis/internal/codec"
	"github.com/rzpsarthak13/holdthis/internal/core"
	"github.com/rzpsarthak13/holdthis/internal/futures"
	"github.com/rzpsarthak13/holdthis/internal/ttl"
)

type (
	// Record is a single key/value pair returned by Get.
	Record = core.Record

	// Result is the outcome of an immediate write.
	Result = core.SetResult

	// Statement is a prepared write, executed by SetBulk.
	Statement = core.Statement

	// TopicSchema describes a materialized topic.
	TopicSchema = core.TopicSchema

	// FlushResult is delivered to every buffered write once its batch completes.
	FlushResult = core.FlushResult

	// FlushEvent describes a completed flush of the buffered writer.
	FlushEvent = core.FlushEvent

	// FlushTrigger identifies what caused a flush.
	FlushTrigger = core.FlushTrigger

	// FlushObserver receives flush events.
	FlushObserver = core.FlushObserver

	// Future resolves once a buffered write has been committed or rolled back.
	Future = futures.Future[FlushResult]

	// Clock is the time source used for TTL.
	Clock = ttl.Clock

	// ManualClock is a Clock that only moves when told to.
	ManualClock = ttl.ManualClock

	// Map is an ordered map whose keys may be of any supported type. Go maps
	// without string keys are returned from Get as a Map sorted by key.
	Map = codec.Map

	// Pair is one entry of a Map.
	Pair = codec.Pair

	// Set is an ordered collection of distinct values.
	Set = codec.Set

	// Func is the source text of a function, stored and returned as text.
	Func = codec.Func
)

// MaxDepth is the deepest nesting of a structured value Set accepts.
const MaxDepth = codec.MaxDepth

const (
	TriggerThreshold = core.TriggerThreshold
	TriggerTimeout   = core.TriggerTimeout
	TriggerManual    = core.TriggerManual
	TriggerClose     = core.TriggerClose
)

// NewManualClock returns a clock frozen at now.
func NewManualClock(now time.Time) *ManualClock {
	return ttl.NewManualClock(now)
}
