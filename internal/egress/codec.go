package egress

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds one framed record on the egress socket. WriteRecord
// rejects a record whose encoded body is larger, and ReadRecord rejects a
// length prefix above it.
const MaxFrameSize = 16 << 20

// WriteRecord frames and writes one record: a big-endian length prefix
// followed by the protobuf body.
func WriteRecord(w io.Writer, rec *Record) error {
	body, err := Encode(rec)
	if err != nil {
		return err
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("frame too large: %d", len(body))
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadRecord reads one framed record written by WriteRecord.
func ReadRecord(r *bufio.Reader) (*Record, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	sz := binary.BigEndian.Uint32(header)
	if sz == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	if sz > MaxFrameSize {
		return nil, fmt.Errorf("frame too large: %d", sz)
	}
	body := make([]byte, int(sz))
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return Decode(body)
}
