//go:build nojsonsimd

package jsonx

import stdjson "encoding/json"

func Marshal(v interface{}) ([]byte, error) {
	return stdjson.Marshal(v)
}

func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return stdjson.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v interface{}) error {
	return stdjson.Unmarshal(data, v)
}

func Valid(data []byte) bool {
	return stdjson.Valid(data)
}
