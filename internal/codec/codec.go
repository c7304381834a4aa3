// Package codec converts values that are not plain strings to and from the
// text stored in a topic's value column.
//
// Encoded values are a closed, tagged JSON envelope {"$t": tag, "$v": payload}
// applied recursively. Decoding only ever interprets the fixed tag grammar;
// stored text is never evaluated as code.
package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"net/url"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/rzpsarthak13/holdthis/internal/core"
)

// Envelope tags.
const (
	TagNull     = "null"
	TagBool     = "bool"
	TagString   = "str"
	TagInt      = "int"
	TagInt8     = "int8"
	TagInt16    = "int16"
	TagInt32    = "int32"
	TagInt64    = "int64"
	TagUint     = "uint"
	TagUint8    = "uint8"
	TagUint16   = "uint16"
	TagUint32   = "uint32"
	TagUint64   = "uint64"
	TagFloat32  = "float32"
	TagFloat64  = "float64"
	TagBigInt   = "bigint"
	TagDate     = "date"
	TagDuration = "duration"
	TagBytes    = "bytes"
	TagArray    = "arr"
	TagObject   = "obj"
	TagMap      = "map"
	TagSet      = "set"
	TagRegexp   = "regexp"
	TagURL      = "url"
	TagFunc     = "func"
	TagJSON     = "json"
)

// EncodeOptions controls how values are encoded.
type EncodeOptions struct {
	// IsJSON encodes the value with encoding/json inside a single json
	// envelope. It is faster for plain data but extended types (maps with
	// non-string keys, dates, big integers, ...) come back as generic JSON.
	IsJSON bool
}

// MaxDepth is the deepest nesting Encode accepts. Cyclic values always hit it.
const MaxDepth = 1000

type node struct {
	T string      `json:"$t"`
	V interface{} `json:"$v,omitempty"`
}

type rawNode struct {
	T *string         `json:"$t"`
	V json.RawMessage `json:"$v"`
}

var (
	intTags = map[reflect.Kind]string{
		reflect.Int:   TagInt,
		reflect.Int8:  TagInt8,
		reflect.Int16: TagInt16,
		reflect.Int32: TagInt32,
		reflect.Int64: TagInt64,
	}
	uintTags = map[reflect.Kind]string{
		reflect.Uint:   TagUint,
		reflect.Uint8:  TagUint8,
		reflect.Uint16: TagUint16,
		reflect.Uint32: TagUint32,
		reflect.Uint64: TagUint64,
	}
)

// Encode converts v to its stored text. Plain strings are stored verbatim
// and reported as not serialized; every other value is encoded.
func Encode(v interface{}, opts EncodeOptions) (string, bool, error) {
	if s, ok := v.(string); ok {
		return s, false, nil
	}

	var n node
	if opts.IsJSON {
		raw, err := json.Marshal(v)
		if err != nil {
			return "", false, fmt.Errorf("%w: %v", core.ErrSerialization, err)
		}
		n = node{T: TagJSON, V: json.RawMessage(raw)}
	} else {
		var err error
		if n, err = encodeNode(v, 0); err != nil {
			return "", false, err
		}
	}

	data, err := json.Marshal(n)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", core.ErrSerialization, err)
	}
	return string(data), true, nil
}

// Decode converts stored text back to a value. Text that was not serialized
// is returned unchanged.
func Decode(stored string, serialized bool) (interface{}, error) {
	if !serialized {
		return stored, nil
	}
	return decodeNode([]byte(stored))
}

func encodeNode(v interface{}, depth int) (node, error) {
	if depth > MaxDepth {
		return node{}, fmt.Errorf("%w: value is nested deeper than %d levels or is cyclic", core.ErrSerialization, MaxDepth)
	}

	switch x := v.(type) {
	case nil:
		return node{T: TagNull}, nil
	case bool:
		return node{T: TagBool, V: x}, nil
	case string:
		return node{T: TagString, V: x}, nil
	case int:
		return node{T: TagInt, V: x}, nil
	case int8:
		return node{T: TagInt8, V: x}, nil
	case int16:
		return node{T: TagInt16, V: x}, nil
	case int32:
		return node{T: TagInt32, V: x}, nil
	case int64:
		return node{T: TagInt64, V: x}, nil
	case uint:
		return node{T: TagUint, V: x}, nil
	case uint8:
		return node{T: TagUint8, V: x}, nil
	case uint16:
		return node{T: TagUint16, V: x}, nil
	case uint32:
		return node{T: TagUint32, V: x}, nil
	case uint64:
		return node{T: TagUint64, V: x}, nil
	case float32:
		return node{T: TagFloat32, V: floatPayload(float64(x))}, nil
	case float64:
		return node{T: TagFloat64, V: floatPayload(x)}, nil
	case *big.Int:
		if x == nil {
			return node{T: TagNull}, nil
		}
		return node{T: TagBigInt, V: x.String()}, nil
	case time.Time:
		return node{T: TagDate, V: x.Format(time.RFC3339Nano)}, nil
	case time.Duration:
		return node{T: TagDuration, V: int64(x)}, nil
	case []byte:
		return node{T: TagBytes, V: base64.StdEncoding.EncodeToString(x)}, nil
	case *regexp.Regexp:
		if x == nil {
			return node{T: TagNull}, nil
		}
		return node{T: TagRegexp, V: x.String()}, nil
	case *url.URL:
		if x == nil {
			return node{T: TagNull}, nil
		}
		return node{T: TagURL, V: x.String()}, nil
	case Func:
		return node{T: TagFunc, V: string(x)}, nil
	case json.RawMessage:
		if !json.Valid(x) {
			return node{}, fmt.Errorf("%w: invalid raw JSON", core.ErrSerialization)
		}
		return node{T: TagJSON, V: x}, nil
	case Map:
		pairs := make([][2]node, 0, len(x))
		for _, pair := range x {
			encoded, err := encodePair(pair.Key, pair.Value, depth+1)
			if err != nil {
				return node{}, err
			}
			pairs = append(pairs, encoded)
		}
		return node{T: TagMap, V: pairs}, nil
	case Set:
		members, err := encodeList(len(x), func(i int) interface{} { return x[i] }, depth+1)
		if err != nil {
			return node{}, err
		}
		return node{T: TagSet, V: members}, nil
	case []interface{}:
		items, err := encodeList(len(x), func(i int) interface{} { return x[i] }, depth+1)
		if err != nil {
			return node{}, err
		}
		return node{T: TagArray, V: items}, nil
	case map[string]interface{}:
		fields := make(map[string]node, len(x))
		for key, value := range x {
			encoded, err := encodeNode(value, depth+1)
			if err != nil {
				return node{}, err
			}
			fields[key] = encoded
		}
		return node{T: TagObject, V: fields}, nil
	}

	return encodeReflect(reflect.ValueOf(v), depth)
}

// encodeReflect handles named types and composite values not covered by the
// concrete cases of encodeNode.
func encodeReflect(rv reflect.Value, depth int) (node, error) {
	switch kind := rv.Kind(); kind {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return node{T: TagNull}, nil
		}
		return encodeNode(rv.Elem().Interface(), depth+1)
	case reflect.Bool:
		return node{T: TagBool, V: rv.Bool()}, nil
	case reflect.String:
		return node{T: TagString, V: rv.String()}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return node{T: intTags[kind], V: rv.Int()}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return node{T: uintTags[kind], V: rv.Uint()}, nil
	case reflect.Float32:
		return node{T: TagFloat32, V: floatPayload(rv.Float())}, nil
	case reflect.Float64:
		return node{T: TagFloat64, V: floatPayload(rv.Float())}, nil
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 && kind == reflect.Slice {
			return node{T: TagBytes, V: base64.StdEncoding.EncodeToString(rv.Bytes())}, nil
		}
		items, err := encodeList(rv.Len(), func(i int) interface{} { return rv.Index(i).Interface() }, depth+1)
		if err != nil {
			return node{}, err
		}
		return node{T: TagArray, V: items}, nil
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			fields := make(map[string]node, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				encoded, err := encodeNode(iter.Value().Interface(), depth+1)
				if err != nil {
					return node{}, err
				}
				fields[iter.Key().String()] = encoded
			}
			return node{T: TagObject, V: fields}, nil
		}
		return encodeGoMap(rv, depth)
	case reflect.Struct:
		raw, err := json.Marshal(rv.Interface())
		if err != nil {
			return node{}, fmt.Errorf("%w: %v", core.ErrSerialization, err)
		}
		return node{T: TagJSON, V: json.RawMessage(raw)}, nil
	case reflect.Invalid:
		return node{T: TagNull}, nil
	default:
		return node{}, fmt.Errorf("%w: unsupported type %s", core.ErrSerialization, rv.Type())
	}
}

// encodeGoMap encodes a map with non-string keys as ordered pairs. Go map
// iteration is random, so pairs are sorted by their encoded key.
func encodeGoMap(rv reflect.Value, depth int) (node, error) {
	type sortable struct {
		sortKey string
		pair    [2]node
	}

	entries := make([]sortable, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pair, err := encodePair(iter.Key().Interface(), iter.Value().Interface(), depth+1)
		if err != nil {
			return node{}, err
		}
		keyText, err := json.Marshal(pair[0])
		if err != nil {
			return node{}, fmt.Errorf("%w: %v", core.ErrSerialization, err)
		}
		entries = append(entries, sortable{sortKey: string(keyText), pair: pair})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].sortKey < entries[j].sortKey })

	pairs := make([][2]node, len(entries))
	for i, entry := range entries {
		pairs[i] = entry.pair
	}
	return node{T: TagMap, V: pairs}, nil
}

func encodePair(key, value interface{}, depth int) ([2]node, error) {
	k, err := encodeNode(key, depth)
	if err != nil {
		return [2]node{}, err
	}
	v, err := encodeNode(value, depth)
	if err != nil {
		return [2]node{}, err
	}
	return [2]node{k, v}, nil
}

func encodeList(n int, at func(i int) interface{}, depth int) ([]node, error) {
	items := make([]node, n)
	for i := 0; i < n; i++ {
		encoded, err := encodeNode(at(i), depth)
		if err != nil {
			return nil, err
		}
		items[i] = encoded
	}
	return items, nil
}

// floatPayload returns a JSON-encodable payload for f. JSON has no literal for
// non-finite numbers, so they are carried as strings.
func floatPayload(f float64) interface{} {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	default:
		return f
	}
}

func decodeNode(data []byte) (interface{}, error) {
	var raw rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %v", core.ErrSerialization, err)
	}
	if raw.T == nil {
		return nil, fmt.Errorf("%w: envelope has no tag", core.ErrSerialization)
	}

	tag := *raw.T
	switch tag {
	case TagNull:
		return nil, nil
	case TagBool:
		var b bool
		if err := unmarshalPayload(tag, raw.V, &b); err != nil {
			return nil, err
		}
		return b, nil
	case TagString:
		var s string
		if err := unmarshalPayload(tag, raw.V, &s); err != nil {
			return nil, err
		}
		return s, nil
	case TagInt, TagInt8, TagInt16, TagInt32, TagInt64:
		return decodeInt(tag, raw.V)
	case TagUint, TagUint8, TagUint16, TagUint32, TagUint64:
		return decodeUint(tag, raw.V)
	case TagFloat32:
		f, err := decodeFloat(tag, raw.V, 32)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case TagFloat64:
		return decodeFloat(tag, raw.V, 64)
	case TagBigInt:
		var s string
		if err := unmarshalPayload(tag, raw.V, &s); err != nil {
			return nil, err
		}
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("%w: invalid bigint %q", core.ErrSerialization, s)
		}
		return n, nil
	case TagDate:
		var s string
		if err := unmarshalPayload(tag, raw.V, &s); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid date: %v", core.ErrSerialization, err)
		}
		return t, nil
	case TagDuration:
		var n int64
		if err := unmarshalPayload(tag, raw.V, &n); err != nil {
			return nil, err
		}
		return time.Duration(n), nil
	case TagBytes:
		var s string
		if err := unmarshalPayload(tag, raw.V, &s); err != nil {
			return nil, err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid bytes: %v", core.ErrSerialization, err)
		}
		return b, nil
	case TagRegexp:
		var s string
		if err := unmarshalPayload(tag, raw.V, &s); err != nil {
			return nil, err
		}
		re, err := regexp.Compile(s)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid regexp: %v", core.ErrSerialization, err)
		}
		return re, nil
	case TagURL:
		var s string
		if err := unmarshalPayload(tag, raw.V, &s); err != nil {
			return nil, err
		}
		u, err := url.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid url: %v", core.ErrSerialization, err)
		}
		return u, nil
	case TagFunc:
		var s string
		if err := unmarshalPayload(tag, raw.V, &s); err != nil {
			return nil, err
		}
		return Func(s), nil
	case TagArray:
		return decodeList(tag, raw.V)
	case TagSet:
		items, err := decodeList(tag, raw.V)
		if err != nil {
			return nil, err
		}
		return Set(items), nil
	case TagObject:
		var fields map[string]json.RawMessage
		if err := unmarshalPayload(tag, raw.V, &fields); err != nil {
			return nil, err
		}
		out := make(map[string]interface{}, len(fields))
		for key, field := range fields {
			value, err := decodeNode(field)
			if err != nil {
				return nil, err
			}
			out[key] = value
		}
		return out, nil
	case TagMap:
		var pairs [][2]json.RawMessage
		if err := unmarshalPayload(tag, raw.V, &pairs); err != nil {
			return nil, err
		}
		out := make(Map, 0, len(pairs))
		for _, pair := range pairs {
			key, err := decodeNode(pair[0])
			if err != nil {
				return nil, err
			}
			value, err := decodeNode(pair[1])
			if err != nil {
				return nil, err
			}
			out = append(out, Pair{Key: key, Value: value})
		}
		return out, nil
	case TagJSON:
		var out interface{}
		if err := unmarshalPayload(tag, raw.V, &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown tag %q", core.ErrSerialization, tag)
	}
}

func unmarshalPayload(tag string, payload json.RawMessage, dest interface{}) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: %s envelope has no payload", core.ErrSerialization, tag)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("%w: invalid %s payload: %v", core.ErrSerialization, tag, err)
	}
	return nil
}

func decodeList(tag string, payload json.RawMessage) ([]interface{}, error) {
	var items []json.RawMessage
	if err := unmarshalPayload(tag, payload, &items); err != nil {
		return nil, err
	}
	out := make([]interface{}, len(items))
	for i, item := range items {
		value, err := decodeNode(item)
		if err != nil {
			return nil, err
		}
		out[i] = value
	}
	return out, nil
}

func decodeInt(tag string, payload json.RawMessage) (interface{}, error) {
	var n json.Number
	if err := unmarshalPayload(tag, payload, &n); err != nil {
		return nil, err
	}

	bits := map[string]int{TagInt: strconv.IntSize, TagInt8: 8, TagInt16: 16, TagInt32: 32, TagInt64: 64}[tag]
	i, err := strconv.ParseInt(n.String(), 10, bits)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s payload: %v", core.ErrSerialization, tag, err)
	}

	switch tag {
	case TagInt8:
		return int8(i), nil
	case TagInt16:
		return int16(i), nil
	case TagInt32:
		return int32(i), nil
	case TagInt64:
		return i, nil
	default:
		return int(i), nil
	}
}

func decodeUint(tag string, payload json.RawMessage) (interface{}, error) {
	var n json.Number
	if err := unmarshalPayload(tag, payload, &n); err != nil {
		return nil, err
	}

	bits := map[string]int{TagUint: strconv.IntSize, TagUint8: 8, TagUint16: 16, TagUint32: 32, TagUint64: 64}[tag]
	u, err := strconv.ParseUint(n.String(), 10, bits)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s payload: %v", core.ErrSerialization, tag, err)
	}

	switch tag {
	case TagUint8:
		return uint8(u), nil
	case TagUint16:
		return uint16(u), nil
	case TagUint32:
		return uint32(u), nil
	case TagUint64:
		return u, nil
	default:
		return uint(u), nil
	}
}

func decodeFloat(tag string, payload json.RawMessage, bits int) (float64, error) {
	if len(payload) > 0 && payload[0] == '"' {
		var s string
		if err := unmarshalPayload(tag, payload, &s); err != nil {
			return 0, err
		}
		switch s {
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		default:
			return 0, fmt.Errorf("%w: invalid %s payload %q", core.ErrSerialization, tag, s)
		}
	}

	var n json.Number
	if err := unmarshalPayload(tag, payload, &n); err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(n.String(), bits)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s payload: %v", core.ErrSerialization, tag, err)
	}
	return f, nil
}
