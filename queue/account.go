package queue

import (
	"encoding/base64"
	"fmt"

	"github.com/buger/jsonparser"
)

// DecodeAccountData turns the `data` value of a getAccountInfo response into
// raw bytes. Both the [payload, "base64"] pair and a bare base64 string are
// accepted.
func DecodeAccountData(raw []byte) ([]byte, error) {
	v, t, _, err := jsonparser.Get(raw)
	if err != nil {
		return nil, fmt.Errorf("account data: %w", err)
	}

	var payload, encoding string
	switch t {
	case jsonparser.String:
		payload, err = jsonparser.ParseString(v)
		if err != nil {
			return nil, fmt.Errorf("account data: %w", err)
		}
		encoding = "base64"
	case jsonparser.Array:
		payload, err = jsonparser.GetString(raw, "[0]")
		if err != nil {
			return nil, fmt.Errorf("account data payload: %w", err)
		}
		encoding, err = jsonparser.GetString(raw, "[1]")
		if err != nil {
			encoding = "base64"
		}
	default:
		return nil, fmt.Errorf("account data: unexpected %s", t)
	}

	if encoding != "base64" {
		return nil, fmt.Errorf("account data: unsupported encoding %q", encoding)
	}
	blob, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("account data: %w", err)
	}
	return blob, nil
}
