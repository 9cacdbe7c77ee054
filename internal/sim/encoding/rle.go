package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Plot-state run-length codec for snapshots. The grid is serialized in
// sorted coordinate order, which groups whole regions of identical states
// into single runs, so the encoded form is a handful of bytes for any
// realistic farm.
//
// Wire form: base64(raw) of repeated uvarint pairs (run-1, id). Run comes
// first and is stored minus one since a zero-length run cannot occur.

func EncodeRLE(ids []uint16) string {
	var buf bytes.Buffer
	for i := 0; i < len(ids); {
		id := ids[i]
		j := i + 1
		for j < len(ids) && ids[j] == id {
			j++
		}
		appendUvarint(&buf, uint64(j-i-1))
		appendUvarint(&buf, uint64(id))
		i = j
	}
	return base64.RawStdEncoding.EncodeToString(buf.Bytes())
}

func DecodeRLE(b64 string) ([]uint16, error) {
	raw, err := base64.RawStdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}

	var out []uint16
	r := bytes.NewReader(raw)
	for r.Len() > 0 {
		run, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("truncated run length")
		}
		id, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("truncated id")
		}
		if id > 0xFFFF {
			return nil, fmt.Errorf("id %d out of range", id)
		}
		for n := uint64(0); n <= run; n++ {
			out = append(out, uint16(id))
		}
	}
	return out, nil
}

func appendUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}
