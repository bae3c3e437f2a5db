// Package counters provides read and publish access to the shared counters
// values file through which subscriber progress is made visible to the media
// driver and to flow-control observers in other processes.
package counters

import (
	"fmt"
	"os"

	"conduit/internal/logbuffer"

	"golang.org/x/sys/unix"
)

// CounterLength is the spacing of counter slots in the values file, two
// cache lines so that independently updated counters never false-share.
const CounterLength = 128

// ValueOffset is the offset of the 64-bit value within a counter slot.
const ValueOffset = 0

// Reader is a view over the counters values file. The external registry owns
// allocation and reuse of counter ids; a Reader only resolves ids to slots.
type Reader struct {
	values *logbuffer.Buffer
	mapped []byte
}

// NewReader wraps an in-memory values buffer, used by tests and embedders.
func NewReader(values *logbuffer.Buffer) *Reader {
	return &Reader{values: values}
}

// MapFile maps an existing counters values file read-write: the file is
// shared with the driver and other clients, and this process writes only the
// slots it owns.
func MapFile(path string) (*Reader, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open counters file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat counters file: %w", err)
	}
	if info.Size() == 0 || info.Size()%CounterLength != 0 {
		return nil, fmt.Errorf("counters file size %d is not a multiple of %d", info.Size(), CounterLength)
	}

	mapped, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap counters file: %w", err)
	}
	return &Reader{values: logbuffer.Wrap(mapped), mapped: mapped}, nil
}

// MaxCounterID is the highest id addressable in the mapped values buffer.
func (r *Reader) MaxCounterID() int32 {
	return r.values.Capacity()/CounterLength - 1
}

// Position resolves a counter id to a Position view over its slot.
func (r *Reader) Position(id int32) (*Position, error) {
	if id < 0 || id > r.MaxCounterID() {
		return nil, fmt.Errorf("counter id %d out of range [0, %d]", id, r.MaxCounterID())
	}
	return &Position{buffer: r.values, id: id, offset: id*CounterLength + ValueOffset}, nil
}

// Close unmaps the values file if this Reader owns a mapping.
func (r *Reader) Close() error {
	if r.mapped == nil {
		return nil
	}
	m := r.mapped
	r.mapped = nil
	if err := unix.Munmap(m); err != nil {
		return fmt.Errorf("munmap counters file: %w", err)
	}
	return nil
}
