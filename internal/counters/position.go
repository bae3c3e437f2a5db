package counters

import "conduit/internal/logbuffer"

// Position is a view over one 64-bit counter slot. The owning party writes
// with release semantics; observers in other processes pair those writes
// with acquire reads.
type Position struct {
	buffer *logbuffer.Buffer
	id     int32
	offset int32
}

// ID is the counter id this view resolves to.
func (p *Position) ID() int32 {
	return p.id
}

// Get reads the value with plain semantics. Sufficient on the single thread
// that also writes the counter.
func (p *Position) Get() int64 {
	return p.buffer.GetInt64(p.offset)
}

// GetVolatile reads the value with acquire semantics.
func (p *Position) GetVolatile() int64 {
	return p.buffer.GetInt64Volatile(p.offset)
}

// SetOrdered writes the value with release semantics so an observer doing an
// acquire read sees every store that preceded the publication.
func (p *Position) SetOrdered(value int64) {
	p.buffer.PutInt64Ordered(p.offset, value)
}
