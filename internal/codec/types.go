package codec

// Pair is one entry of a Map.
type Pair struct {
	Key   interface{}
	Value interface{}
}

// Map is an insertion-ordered map whose keys may be of any supported type.
// Use it for values with non-string keys or where entry order matters.
type Map []Pair

// Get returns the value stored under key, compared with ==.
// Keys that are not comparable never match.
func (m Map) Get(key interface{}) (interface{}, bool) {
	for _, pair := range m {
		if comparableEqual(pair.Key, key) {
			return pair.Value, true
		}
	}
	return nil, false
}

// Set is an ordered collection of distinct values.
type Set []interface{}

// Has reports whether the set contains v, compared with ==.
func (s Set) Has(v interface{}) bool {
	for _, member := range s {
		if comparableEqual(member, v) {
			return true
		}
	}
	return false
}

// Func is the source text of a function. It is stored and returned as text
// and never evaluated.
type Func string

func comparableEqual(a, b interface{}) (equal bool) {
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()
	return a == b
}
