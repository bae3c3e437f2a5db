package logbuffer

// Data frame header layout. All fields are native-endian. The frame length
// word doubles as the publication barrier: the producer writes header and
// payload first and stores the length last with release semantics, so a
// positive length read with acquire semantics publishes the whole frame.
const (
	FrameLengthFieldOffset   = 0
	VersionFieldOffset       = 4
	FlagsFieldOffset         = 5
	TypeFieldOffset          = 6
	TermOffsetFieldOffset    = 8
	SessionIDFieldOffset     = 12
	StreamIDFieldOffset      = 16
	TermIDFieldOffset        = 20
	ReservedValueFieldOffset = 24

	DataFrameHeaderLength = 32
)

const (
	// FrameAlignment is the byte alignment of every frame in a term. Total
	// frame length is always padded up to a multiple of this.
	FrameAlignment = 32

	// HdrTypePad marks end-of-term filler skipped by fragment readers.
	HdrTypePad uint16 = 0x00
	// HdrTypeData marks an application data frame.
	HdrTypeData uint16 = 0x01

	// BeginFrag and EndFrag flag the first and last fragment of a logical
	// message. An unfragmented message carries both.
	BeginFrag     uint8 = 0x80
	EndFrag       uint8 = 0x40
	UnfragmentedF uint8 = BeginFrag | EndFrag
)

// Align rounds value up to the next multiple of alignment, which must be a
// power of two.
func Align(value int32, alignment int32) int32 {
	return (value + (alignment - 1)) &^ (alignment - 1)
}

// FrameLengthVolatile reads a frame's length word with acquire semantics.
// A non-positive result means the frame at offset is not yet published.
func FrameLengthVolatile(termBuffer *Buffer, frameOffset int32) int32 {
	return termBuffer.GetInt32Volatile(frameOffset + FrameLengthFieldOffset)
}

// IsPaddingFrame reports whether the frame at offset is end-of-term filler.
func IsPaddingFrame(termBuffer *Buffer, frameOffset int32) bool {
	return termBuffer.GetUInt16(frameOffset+TypeFieldOffset) == HdrTypePad
}

// FrameFlags returns the flags byte of the frame at offset.
func FrameFlags(termBuffer *Buffer, frameOffset int32) uint8 {
	return termBuffer.GetUInt8(frameOffset + FlagsFieldOffset)
}

// FrameType returns the type field of the frame at offset.
func FrameType(termBuffer *Buffer, frameOffset int32) uint16 {
	return termBuffer.GetUInt16(frameOffset + TypeFieldOffset)
}

// FrameTermID returns the termId field of the frame at offset.
func FrameTermID(termBuffer *Buffer, frameOffset int32) int32 {
	return termBuffer.GetInt32(frameOffset + TermIDFieldOffset)
}

// FrameSessionID returns the sessionId field of the frame at offset.
func FrameSessionID(termBuffer *Buffer, frameOffset int32) int32 {
	return termBuffer.GetInt32(frameOffset + SessionIDFieldOffset)
}
