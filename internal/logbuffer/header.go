package logbuffer

// Header is a mutable view of the frame currently being delivered to a
// callback. One Header is reused across every frame of a scan so the hot
// path allocates nothing; it is only valid for the duration of the callback.
type Header struct {
	buffer              *Buffer
	offset              int32
	initialTermID       int32
	positionBitsToShift int32
	context             any
}

// NewHeader returns a Header for a log with the given initial term id and
// term length. context is an opaque back-pointer handed through to
// callbacks, typically the owning Image.
func NewHeader(initialTermID int32, termLength int32, context any) Header {
	return Header{
		initialTermID:       initialTermID,
		positionBitsToShift: PositionBitsToShift(termLength),
		context:             context,
	}
}

// SetBuffer points the header at the term being scanned. Called once per
// scan before any frames are delivered.
func (h *Header) SetBuffer(buffer *Buffer) {
	h.buffer = buffer
}

// SetOffset positions the header on the frame beginning at offset.
func (h *Header) SetOffset(offset int32) {
	h.offset = offset
}

func (h *Header) Buffer() *Buffer {
	return h.buffer
}

// Offset is the term offset at which the current frame begins.
func (h *Header) Offset() int32 {
	return h.offset
}

func (h *Header) InitialTermID() int32 {
	return h.initialTermID
}

func (h *Header) PositionBitsToShift() int32 {
	return h.positionBitsToShift
}

// Context returns the opaque value supplied at construction.
func (h *Header) Context() any {
	return h.context
}

// FrameLength is the total frame length including the header, unaligned.
func (h *Header) FrameLength() int32 {
	return h.buffer.GetInt32(h.offset + FrameLengthFieldOffset)
}

func (h *Header) Flags() uint8 {
	return h.buffer.GetUInt8(h.offset + FlagsFieldOffset)
}

func (h *Header) Type() uint16 {
	return h.buffer.GetUInt16(h.offset + TypeFieldOffset)
}

func (h *Header) TermOffset() int32 {
	return h.buffer.GetInt32(h.offset + TermOffsetFieldOffset)
}

func (h *Header) SessionID() int32 {
	return h.buffer.GetInt32(h.offset + SessionIDFieldOffset)
}

func (h *Header) StreamID() int32 {
	return h.buffer.GetInt32(h.offset + StreamIDFieldOffset)
}

func (h *Header) TermID() int32 {
	return h.buffer.GetInt32(h.offset + TermIDFieldOffset)
}

func (h *Header) ReservedValue() int64 {
	return h.buffer.GetInt64(h.offset + ReservedValueFieldOffset)
}

// Position is the stream position at the end of the current frame, which is
// also the position the subscriber moves to once the frame is consumed.
func (h *Header) Position() int64 {
	resultingOffset := Align(h.offset+h.FrameLength(), FrameAlignment)
	return ComputeTermBeginPosition(h.TermID(), h.positionBitsToShift, h.initialTermID) + int64(resultingOffset)
}
