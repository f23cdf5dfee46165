// Package normalize maps the heterogeneous upstream documents onto the
// canonical snapshot fields. Every logical field is described by an ordered
// list of candidate key paths, evaluated in priority order.
package normalize

import (
	"math"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/spf13/cast"
)

// Path addresses a value through nested object keys.
type Path []string

// Candidates is an ordered list of paths; the first path holding a usable value wins.
type Candidates []Path

// Keys builds candidates from top-level key names.
func Keys(names ...string) Candidates {
	c := make(Candidates, 0, len(names))
	for _, n := range names {
		c = append(c, Path{n})
	}
	return c
}

// Paths builds candidates from explicit paths.
func Paths(paths ...Path) Candidates {
	return Candidates(paths)
}

// Raw returns the first non-null value found under any candidate.
func (c Candidates) Raw(data []byte) ([]byte, jsonparser.ValueType, bool) {
	for _, p := range c {
		v, t, _, err := jsonparser.Get(data, p...)
		if err != nil || t == jsonparser.NotExist || t == jsonparser.Null {
			continue
		}
		return v, t, true
	}
	return nil, jsonparser.NotExist, false
}

// String returns the first non-empty string (or number rendered as text).
func (c Candidates) String(data []byte) *string {
	for _, p := range c {
		v, t, _, err := jsonparser.Get(data, p...)
		if err != nil {
			continue
		}
		var s string
		switch t {
		case jsonparser.String:
			s, err = jsonparser.ParseString(v)
			if err != nil {
				continue
			}
		case jsonparser.Number:
			s = string(v)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return &s
		}
	}
	return nil
}

// Float returns the first value that is a number or a numeric string.
func (c Candidates) Float(data []byte) *float64 {
	for _, p := range c {
		v, t, _, err := jsonparser.Get(data, p...)
		if err != nil {
			continue
		}
		if f, ok := toFloat(v, t); ok {
			return &f
		}
	}
	return nil
}

// Int returns the first value that is an integral number or integral numeric string.
func (c Candidates) Int(data []byte) *int {
	f := c.Float(data)
	if f == nil || *f != math.Trunc(*f) {
		return nil
	}
	i := int(*f)
	return &i
}

// Int64 is like Int but for timestamps and other wide values. Absent values are zero.
func (c Candidates) Int64(data []byte) int64 {
	f := c.Float(data)
	if f == nil {
		return 0
	}
	return int64(*f)
}

func toFloat(v []byte, t jsonparser.ValueType) (float64, bool) {
	switch t {
	case jsonparser.Number:
		f, err := jsonparser.ParseFloat(v)
		return f, err == nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(v)
		if err != nil || strings.TrimSpace(s) == "" {
			return 0, false
		}
		f, err := cast.ToFloat64E(strings.TrimSpace(s))
		return f, err == nil
	default:
		return 0, false
	}
}

// Objects returns the object elements of the first array found under the
// candidates, or of data itself when data is an array.
func Objects(data []byte, c Candidates) [][]byte {
	arr := data
	if _, t, _, err := jsonparser.Get(data); err != nil || t != jsonparser.Array {
		v, t, ok := c.Raw(data)
		if !ok || t != jsonparser.Array {
			return [][]byte{}
		}
		arr = v
	}

	out := [][]byte{}
	_, _ = jsonparser.ArrayEach(arr, func(value []byte, t jsonparser.ValueType, _ int, _ error) {
		if t == jsonparser.Object {
			out = append(out, value)
		}
	})
	return out
}
