// Copyright 2025 Certen Protocol
//
// Package canon implements the canonical encoder: a deterministic,
// lossless structural normalization of heterogeneous event payloads.
// The encoder's output is the only thing the hasher ever sees.
package canon

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"
)

// ErrDepthExceeded is returned when an input nests deeper than maxDepth.
var ErrDepthExceeded = errors.New("canon: EncoderDepthExceeded")

// maxDepth bounds recursion through arrays and objects. Chosen generously
// above any legitimate on-chain payload shape (deepest observed is four
// levels: envelope -> payload -> leg -> field).
const maxDepth = 32

// Kind identifies the shape of a canonical Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindUInt
	KindBigInt
	KindFloat
	KindString
	KindBytes
	KindPDA
	KindArray
	KindObject
)

// Bytes is an explicit wrapper marking a []byte as an opaque blob. It is
// rendered as lowercase hex. Use PDA instead to mark a 32-byte
// program-derived-address-shaped value that should render as base58.
type Bytes []byte

// PDA is an explicit wrapper marking a 32-byte value as a program-derived
// address. Rendered as base58. Never inferred from length alone; callers
// tag it explicitly.
type PDA []byte

// Member is one entry of a canonical object, kept in sorted-key order.
type Member struct {
	Key   string
	Value Value
}

// Value is the recursive canonical form every encoder input is reduced
// to. Only a Value is ever passed to Stringify/Hash.
type Value struct {
	Kind    Kind
	Bool    bool
	Int     int64
	UInt    uint64
	BigInt  string // decimal, no sign ambiguity, used for u128/i128-shaped inputs
	Float   float64
	FloatOK bool // false when Float holds a non-finite textual form in Str instead
	Str     string
	Bytes   []byte
	Array   []Value
	Object  []Member
}

// String builds a canonical string Value directly, without going
// through Canonicalize. Used when composing a composite hash input out
// of already-canonical pieces (e.g. projectionHash, dedup fingerprint).
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// UIntVal builds a canonical unsigned-integer Value directly.
func UIntVal(u uint64) Value { return Value{Kind: KindUInt, UInt: u} }

// ObjectOf builds a canonical object Value from the given members,
// sorting them by key the same way Canonicalize does for decoded maps.
func ObjectOf(members ...Member) Value {
	sort.Slice(members, func(i, j int) bool { return members[i].Key < members[j].Key })
	return Value{Kind: KindObject, Object: members}
}

// Canonicalize reduces an arbitrary decoded input (as produced by
// encoding/json.Unmarshal into interface{}, plus the Bytes/PDA/*big.Int
// wrapper types) into a canonical Value.
func Canonicalize(v interface{}) (Value, error) {
	return canonicalize(v, 0)
}

func canonicalize(v interface{}, depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, ErrDepthExceeded
	}
	switch t := v.(type) {
	case nil:
		return Value{Kind: KindNull}, nil
	case bool:
		return Value{Kind: KindBool, Bool: t}, nil
	case string:
		return Value{Kind: KindString, Str: t}, nil
	case int:
		return Value{Kind: KindInt, Int: int64(t)}, nil
	case int8:
		return Value{Kind: KindInt, Int: int64(t)}, nil
	case int16:
		return Value{Kind: KindInt, Int: int64(t)}, nil
	case int32:
		return Value{Kind: KindInt, Int: int64(t)}, nil
	case int64:
		return Value{Kind: KindInt, Int: t}, nil
	case uint:
		return Value{Kind: KindUInt, UInt: uint64(t)}, nil
	case uint8:
		return Value{Kind: KindUInt, UInt: uint64(t)}, nil
	case uint16:
		return Value{Kind: KindUInt, UInt: uint64(t)}, nil
	case uint32:
		return Value{Kind: KindUInt, UInt: uint64(t)}, nil
	case uint64:
		return Value{Kind: KindUInt, UInt: t}, nil
	case *big.Int:
		if t == nil {
			return Value{Kind: KindNull}, nil
		}
		return Value{Kind: KindBigInt, BigInt: t.String()}, nil
	case json.Number:
		return canonicalizeJSONNumber(t)
	case float32:
		return canonicalizeFloat(float64(t)), nil
	case float64:
		return canonicalizeFloat(t), nil
	case Bytes:
		return Value{Kind: KindBytes, Bytes: append([]byte(nil), t...)}, nil
	case []byte:
		return Value{Kind: KindBytes, Bytes: append([]byte(nil), t...)}, nil
	case PDA:
		if len(t) != 32 {
			return Value{}, fmt.Errorf("canon: PDA value must be 32 bytes, got %d", len(t))
		}
		return Value{Kind: KindPDA, Bytes: append([]byte(nil), t...)}, nil
	case []interface{}:
		out := make([]Value, len(t))
		for i, elem := range t {
			cv, err := canonicalize(elem, depth+1)
			if err != nil {
				return Value{}, err
			}
			out[i] = cv
		}
		return Value{Kind: KindArray, Array: out}, nil
	case map[string]interface{}:
		return canonicalizeObject(t, depth)
	default:
		return Value{}, fmt.Errorf("canon: unsupported input type %T", v)
	}
}

func canonicalizeObject(m map[string]interface{}, depth int) (Value, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	members := make([]Member, 0, len(m))
	for _, k := range keys {
		cv, err := canonicalize(m[k], depth+1)
		if err != nil {
			return Value{}, err
		}
		members = append(members, Member{Key: k, Value: cv})
	}
	return Value{Kind: KindObject, Object: members}, nil
}

func canonicalizeFloat(f float64) Value {
	if isFinite(f) {
		return Value{Kind: KindFloat, Float: f, FloatOK: true}
	}
	// Non-finite floats become their textual form.
	switch {
	case f != f:
		return Value{Kind: KindFloat, Str: "NaN"}
	case f > 0:
		return Value{Kind: KindFloat, Str: "Infinity"}
	default:
		return Value{Kind: KindFloat, Str: "-Infinity"}
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) // excludes NaN and +-Inf
}

// canonicalizeJSONNumber handles values decoded with
// json.Decoder.UseNumber(), preferring an exact integer representation
// and falling back to the decimal-string BigInt form when the value does
// not fit an int64/uint64, so the projection never depends on host
// integer width.
func canonicalizeJSONNumber(n json.Number) (Value, error) {
	if i, err := n.Int64(); err == nil {
		return Value{Kind: KindInt, Int: i}, nil
	}
	s := n.String()
	if len(s) > 0 && s[0] != '-' {
		if u, ok := new(big.Int).SetString(s, 10); ok && u.IsUint64() {
			return Value{Kind: KindUInt, UInt: u.Uint64()}, nil
		}
	}
	if bi, ok := new(big.Int).SetString(s, 10); ok {
		return Value{Kind: KindBigInt, BigInt: bi.String()}, nil
	}
	f, err := n.Float64()
	if err != nil {
		return Value{}, fmt.Errorf("canon: invalid json.Number %q: %w", s, err)
	}
	return canonicalizeFloat(f), nil
}
