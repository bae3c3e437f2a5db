package logbuffer

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// PartitionCount is the number of term buffers cyclically reused as the
// stream position advances.
const PartitionCount = 3

// Log metadata buffer layout. The media driver owns all writes here; the
// subscriber only reads.
const (
	LogEOSPositionOffset   = 0  // int64, volatile
	LogInitialTermIDOffset = 16 // int32
	LogTermLengthOffset    = 20 // int32

	// LogMetaDataLength is the size of the metadata section, one page.
	LogMetaDataLength = 4096
)

const (
	termMinLength = 64 * 1024
	termMaxLength = 1024 * 1024 * 1024
)

// LogBuffers is a handle over the PartitionCount term buffers and the
// metadata buffer of one publication log. The handle is shared by reference
// between the Image and the enclosing Subscription and is not reference
// counted: the first Close unmaps, and Image.Close does not close it.
type LogBuffers struct {
	terms  [PartitionCount]*Buffer
	meta   *Buffer
	mapped []byte
}

// WrapSlices builds a LogBuffers over caller-provided memory, one slice per
// term plus the metadata slice. All terms must share one power-of-two
// capacity. Used by tests and by embedders that manage mapping themselves.
func WrapSlices(terms [PartitionCount][]byte, meta []byte) (*LogBuffers, error) {
	termLength := int32(len(terms[0]))
	if !IsPowerOfTwo(termLength) {
		return nil, fmt.Errorf("term length %d is not a power of two", termLength)
	}
	for i := 1; i < PartitionCount; i++ {
		if int32(len(terms[i])) != termLength {
			return nil, fmt.Errorf("term %d length %d != term 0 length %d", i, len(terms[i]), termLength)
		}
	}
	if len(meta) < LogTermLengthOffset+4 {
		return nil, fmt.Errorf("metadata length %d too small", len(meta))
	}
	l := &LogBuffers{meta: Wrap(meta)}
	for i := range terms {
		l.terms[i] = Wrap(terms[i])
	}
	return l, nil
}

// MapExisting maps an already-created log file laid out as PartitionCount
// equal terms followed by the metadata section. The mapping is shared and
// read-only: a subscriber never writes into the log.
func MapExisting(path string) (*LogBuffers, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	size := info.Size()
	if size <= LogMetaDataLength || (size-LogMetaDataLength)%PartitionCount != 0 {
		return nil, fmt.Errorf("log file size %d does not fit %d terms plus metadata", size, PartitionCount)
	}
	termLength := int32((size - LogMetaDataLength) / PartitionCount)
	if !IsPowerOfTwo(termLength) || termLength < termMinLength || termLength > termMaxLength {
		return nil, fmt.Errorf("term length %d out of range or not a power of two", termLength)
	}

	mapped, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap log file: %w", err)
	}

	l := &LogBuffers{mapped: mapped}
	for i := int32(0); i < PartitionCount; i++ {
		l.terms[i] = Wrap(mapped[i*termLength : (i+1)*termLength])
	}
	l.meta = Wrap(mapped[int64(PartitionCount)*int64(termLength):])
	return l, nil
}

// TermBuffer returns the term buffer for partition index i in
// [0, PartitionCount).
func (l *LogBuffers) TermBuffer(i int32) *Buffer {
	return l.terms[i]
}

// MetaDataBuffer returns the metadata buffer.
func (l *LogBuffers) MetaDataBuffer() *Buffer {
	return l.meta
}

// TermLength returns the capacity shared by all term buffers.
func (l *LogBuffers) TermLength() int32 {
	return l.terms[0].Capacity()
}

// InitialTermID reads the initial term id from metadata.
func (l *LogBuffers) InitialTermID() int32 {
	return l.meta.GetInt32(LogInitialTermIDOffset)
}

// EndOfStreamPosition reads the driver's end-of-stream position with acquire
// semantics. INT64_MAX while the stream is live.
func (l *LogBuffers) EndOfStreamPosition() int64 {
	return l.meta.GetInt64Volatile(LogEOSPositionOffset)
}

// Close unmaps the log if this handle owns a mapping. Safe to call on
// wrapped-slice handles, where it is a no-op.
func (l *LogBuffers) Close() error {
	if l.mapped == nil {
		return nil
	}
	m := l.mapped
	l.mapped = nil
	if err := unix.Munmap(m); err != nil {
		return fmt.Errorf("munmap log file: %w", err)
	}
	return nil
}
