package holdthis

import (
	"github.com/rzpsarthak13/holdthis/internal/core"
	"github.com/rzpsarthak13/holdthis/internal/write"
)

// Errors returned by the store. Match them with errors.Is.
var (
	ErrSchemaConflict       = core.ErrSchemaConflict
	ErrConstraint           = core.ErrConstraint
	ErrSerialization        = core.ErrSerialization
	ErrEngine               = core.ErrEngine
	ErrInvalidTopic         = core.ErrInvalidTopic
	ErrBufferClosed         = write.ErrBufferClosed
	ErrStoreClosed          = core.ErrStoreClosed
	ErrConnectionNotExposed = core.ErrConnectionNotExposed
)
