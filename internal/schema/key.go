package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rzpsarthak13/holdthis/internal/core"
)

const (
	// KeySeparator separates the segments of a composite key.
	KeySeparator = ":"

	// Wildcard is the segment value that matches any column value on read.
	Wildcard = "*"

	// DefaultTopic is used when a caller passes an empty topic name.
	DefaultTopic = "topic"

	// DefaultKey is used when a caller passes an empty key.
	DefaultKey = "key"
)

var topicPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]{0,62}$`)

// SplitKey splits a composite key into its segments.
// Empty segments are kept as empty values; an empty key becomes ["key"].
func SplitKey(key string) []string {
	if key == "" {
		key = DefaultKey
	}
	return strings.Split(key, KeySeparator)
}

// JoinKey reassembles key segments into a composite key.
func JoinKey(segments []string) string {
	return strings.Join(segments, KeySeparator)
}

// IsWildcard reports whether key is the bare wildcard, which matches every
// record of a topic regardless of arity.
func IsWildcard(key string) bool {
	return key == Wildcard
}

// IsWildcardSegment reports whether a single segment is left unbound on read.
func IsWildcardSegment(segment string) bool {
	return segment == Wildcard
}

// NormalizeTopic returns the topic name to use, applying the default for
// empty names, and validates it.
func NormalizeTopic(name string) (string, error) {
	if name == "" {
		name = DefaultTopic
	}
	if err := ValidateTopic(name); err != nil {
		return "", err
	}
	return name, nil
}

// ValidateTopic checks that a topic name is safe to use as a table identifier.
func ValidateTopic(name string) error {
	if !topicPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", core.ErrInvalidTopic, name)
	}
	return nil
}
