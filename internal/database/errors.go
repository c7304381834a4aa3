package database

import (
	"errors"
	"fmt"

	"github.com/rzpsarthak13/holdthis/internal/core"
)

// EngineError is returned for every failure reported by the storage engine.
// It matches core.ErrEngine, and core.ErrConstraint when the engine rejected
// the statement for violating a constraint.
type EngineError struct {
	Op         string
	Err        error
	Constraint bool
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s failed: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) Is(target error) bool {
	switch target {
	case core.ErrEngine:
		return true
	case core.ErrConstraint:
		return e.Constraint
	}
	return false
}

// IsConstraint reports whether err is a constraint violation raised by the
// engine.
func IsConstraint(err error) bool {
	return errors.Is(err, core.ErrConstraint)
}
