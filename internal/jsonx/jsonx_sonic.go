//go:build !nojsonsimd

package jsonx

import "github.com/bytedance/sonic"

var fastJSON = sonic.ConfigStd

func Marshal(v interface{}) ([]byte, error) {
	return fastJSON.Marshal(v)
}

func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return fastJSON.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v interface{}) error {
	return fastJSON.Unmarshal(data, v)
}

func Valid(data []byte) bool {
	return fastJSON.Valid(data)
}
