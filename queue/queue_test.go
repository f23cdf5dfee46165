package queue

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"math/rand"
	"strconv"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(b byte) []byte { return bytes.Repeat([]byte{b}, entrySize) }

func list(prefix []byte, entries ...[]byte) []byte {
	out := append([]byte{}, prefix...)
	n := make([]byte, lengthPrefixSize)
	binary.LittleEndian.PutUint32(n, uint32(len(entries)))
	out = append(out, n...)
	for _, e := range entries {
		out = append(out, e...)
	}
	return out
}

func TestPositionFound(t *testing.T) {
	blob := list([]byte{0xAA, 0xBB, 0xCC}, key(1), key(2), key(3))
	pos, ok := LengthPrefixDecoder{}.Position(blob, base58.Encode(key(3)))
	require.True(t, ok)
	assert.Equal(t, Position{Position: 3, Length: 3}, pos)
}

func TestLongestListIsPreferred(t *testing.T) {
	short := list(nil, key(9))
	long := list(nil, key(1), key(9), key(2))
	pos, ok := LengthPrefixDecoder{}.Position(append(short, long...), base58.Encode(key(9)))
	require.True(t, ok)
	assert.Equal(t, Position{Position: 2, Length: 3}, pos)
}

func TestMaxEntriesCapsCandidates(t *testing.T) {
	blob := list(nil, key(1), key(2), key(9))
	_, ok := LengthPrefixDecoder{MaxEntries: 2}.Position(blob, base58.Encode(key(9)))
	assert.False(t, ok)
}

func TestGarbageYieldsNoResult(t *testing.T) {
	target := base58.Encode(key(5))
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		blob := make([]byte, r.Intn(300))
		r.Read(blob)
		assert.NotPanics(t, func() {
			_, ok := LengthPrefixDecoder{}.Position(blob, target)
			assert.False(t, ok)
		})
	}

	for _, target := range []string{"", "not-base58-0OIl", base58.Encode([]byte("short"))} {
		_, ok := LengthPrefixDecoder{}.Position(list(nil, key(1)), target)
		assert.False(t, ok, target)
	}
	_, ok := LengthPrefixDecoder{}.Position(nil, target)
	assert.False(t, ok)
}

func TestDecodeAccountData(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("hello"))

	blob, err := DecodeAccountData([]byte(`["` + payload + `","base64"]`))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), blob)

	blob, err = DecodeAccountData([]byte(strconv.Quote(payload)))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), blob)

	for _, raw := range []string{`["abc","base58"]`, `["%%%","base64"]`, `{"x":1}`, `42`, ``, `[`} {
		_, err := DecodeAccountData([]byte(raw))
		assert.Error(t, err, raw)
	}
}
