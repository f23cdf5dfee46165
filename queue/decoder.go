// Package queue estimates a node's place in its market queue from the raw
// bytes of the market account. The layout is not described by any schema;
// the decoder is a heuristic and can be swapped for a better strategy.
package queue

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/mr-tron/base58"
)

const (
	lengthPrefixSize = 4
	entrySize        = 32
)

// Position is a 1-based place in a queue of Length entries.
type Position struct {
	Position int
	Length   int
}

// Decoder locates target inside an opaque account blob. ok is false when no
// result could be derived; implementations never panic on malformed input.
type Decoder interface {
	Position(blob []byte, target string) (pos Position, ok bool)
}

// LengthPrefixDecoder looks for a little-endian uint32 count followed by
// that many 32-byte public keys, at every offset of the blob, and searches
// the candidate lists longest first.
type LengthPrefixDecoder struct {
	// MaxEntries caps the count accepted as a list length. Zero means no cap
	// beyond what fits in the blob.
	MaxEntries int
}

type candidate struct {
	offset int
	count  int
}

func (d LengthPrefixDecoder) Position(blob []byte, target string) (Position, bool) {
	if target == "" || len(blob) < lengthPrefixSize+entrySize {
		return Position{}, false
	}
	// base58 is canonical for 32-byte keys, so raw entries compare directly
	want, err := base58.Decode(target)
	if err != nil || len(want) != entrySize {
		return Position{}, false
	}

	for _, c := range d.candidates(blob) {
		start := c.offset + lengthPrefixSize
		for i := 0; i < c.count; i++ {
			entry := blob[start+i*entrySize : start+(i+1)*entrySize]
			if bytes.Equal(entry, want) {
				return Position{Position: i + 1, Length: c.count}, true
			}
		}
	}
	return Position{}, false
}

// candidates returns every plausible length-prefixed list, longest first.
func (d LengthPrefixDecoder) candidates(blob []byte) []candidate {
	var out []candidate
	for off := 0; off+lengthPrefixSize <= len(blob); off++ {
		n := int(binary.LittleEndian.Uint32(blob[off : off+lengthPrefixSize]))
		if n <= 0 || (d.MaxEntries > 0 && n > d.MaxEntries) {
			continue
		}
		remaining := len(blob) - off - lengthPrefixSize
		if n > remaining/entrySize {
			continue
		}
		out = append(out, candidate{offset: off, count: n})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].count > out[j].count
	})
	return out
}
