// Package bencode implements the bencoding codec used by .torrent files and
// tracker responses: signed integers, byte strings, lists, and
// insertion-ordered dictionaries, encoded and decoded as pure byte<->value
// conversions with no knowledge of torrent semantics.
package bencode

import "fmt"

// Kind identifies which of the four bencoded types a Value holds.
type Kind int

const (
	KindInt Kind = iota
	KindBytes
	KindList
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	default:
		return "invalid"
	}
}

// DictEntry is one key/value pair of a dictionary, in the order it was
// decoded (or inserted, for hand-built values).
type DictEntry struct {
	Key   string
	Value Value
}

// Value is a tagged union over the four bencoded kinds. Raw holds the exact
// byte span this value was decoded from, when it came from Decode; it is
// nil for values constructed directly (e.g. via the Int64/String helpers
// or a struct literal).
type Value struct {
	Kind  Kind
	Int   int64
	Bytes []byte
	List  []Value
	Dict  []DictEntry
	Raw   []byte
}

// Int64 returns v as an integer Value.
func Int64(n int64) Value { return Value{Kind: KindInt, Int: n} }

// String returns v as a byte-string Value holding s's bytes.
func String(s string) Value { return Value{Kind: KindBytes, Bytes: []byte(s)} }

// Get returns the value for key in a dict Value, and whether it was found.
// Get on a non-dict Value always reports not found.
func (v Value) Get(key string) (Value, bool) {
	if v.Kind != KindDict {
		return Value{}, false
	}
	for _, e := range v.Dict {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// GetString returns the bytes of a byte-string field, or an error if the
// key is absent or not a byte string.
func (v Value) GetString(key string) ([]byte, error) {
	val, ok := v.Get(key)
	if !ok {
		return nil, fmt.Errorf("bencode: missing key %q", key)
	}
	if val.Kind != KindBytes {
		return nil, fmt.Errorf("bencode: key %q is a %s, not a byte string", key, val.Kind)
	}
	return val.Bytes, nil
}

// GetInt returns an integer field, or an error if the key is absent or not
// an integer.
func (v Value) GetInt(key string) (int64, error) {
	val, ok := v.Get(key)
	if !ok {
		return 0, fmt.Errorf("bencode: missing key %q", key)
	}
	if val.Kind != KindInt {
		return 0, fmt.Errorf("bencode: key %q is a %s, not an integer", key, val.Kind)
	}
	return val.Int, nil
}

// Equal reports deep equality between two Values, ignoring Raw spans (which
// only make sense relative to a particular decode).
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindInt:
		return a.Int == b.Int
	case KindBytes:
		return string(a.Bytes) == string(b.Bytes)
	case KindList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !Equal(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if len(a.Dict) != len(b.Dict) {
			return false
		}
		for i := range a.Dict {
			if a.Dict[i].Key != b.Dict[i].Key || !Equal(a.Dict[i].Value, b.Dict[i].Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
