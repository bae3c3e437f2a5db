package logbuffer

// Test helpers that write frames the way a producer would: header and
// payload first, frame length last with a release store.

func writeDataFrame(tb *Buffer, offset int32, frameLength int32, flags uint8, termID int32, payload string) {
	tb.PutUInt8(offset+VersionFieldOffset, 1)
	tb.PutUInt8(offset+FlagsFieldOffset, flags)
	tb.PutUInt16(offset+TypeFieldOffset, HdrTypeData)
	tb.PutInt32(offset+TermOffsetFieldOffset, offset)
	tb.PutInt32(offset+SessionIDFieldOffset, 1001)
	tb.PutInt32(offset+StreamIDFieldOffset, 10)
	tb.PutInt32(offset+TermIDFieldOffset, termID)
	tb.PutInt64(offset+ReservedValueFieldOffset, 0)
	copy(tb.GetBytes(offset+DataFrameHeaderLength, int32(len(payload))), payload)
	tb.PutInt32Ordered(offset+FrameLengthFieldOffset, frameLength)
}

func writePaddingFrame(tb *Buffer, offset int32, frameLength int32, termID int32) {
	tb.PutUInt8(offset+VersionFieldOffset, 1)
	tb.PutUInt8(offset+FlagsFieldOffset, UnfragmentedF)
	tb.PutUInt16(offset+TypeFieldOffset, HdrTypePad)
	tb.PutInt32(offset+TermOffsetFieldOffset, offset)
	tb.PutInt32(offset+SessionIDFieldOffset, 1001)
	tb.PutInt32(offset+TermIDFieldOffset, termID)
	tb.PutInt32Ordered(offset+FrameLengthFieldOffset, frameLength)
}
