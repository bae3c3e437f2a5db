package logbuffer

// ScanForBlock walks frames from termOffset and returns the offset at the
// end of a contiguous block of whole published frames not exceeding
// limitOffset.
//
// Padding terminates a block. If the first frame scanned is padding, the
// padding itself is the block and the returned offset includes it; padding
// after the first frame ends the block at the offset the padding begins.
func ScanForBlock(termBuffer *Buffer, termOffset int32, limitOffset int32) int32 {
	offset := termOffset

	for offset < limitOffset {
		frameLength := FrameLengthVolatile(termBuffer, offset)
		if frameLength <= 0 {
			break
		}

		alignedLength := Align(frameLength, FrameAlignment)

		if IsPaddingFrame(termBuffer, offset) {
			if offset == termOffset {
				offset += alignedLength
			}
			break
		}

		if offset+alignedLength > limitOffset {
			break
		}

		offset += alignedLength
	}

	return offset
}
