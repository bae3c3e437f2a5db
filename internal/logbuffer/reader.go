package logbuffer

import "fmt"

// ReadOutcome carries the result of one term scan: the offset the scan
// stopped at and the number of data fragments delivered.
type ReadOutcome struct {
	Offset        int32
	FragmentsRead int
}

// RecoveredError converts a value recovered from a panicking handler into an
// error for the ErrorHandler.
func RecoveredError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("handler panic: %v", r)
}

// ReadTerm scans termBuffer forward from termOffset delivering whole,
// published, non-padding frames to handler until fragmentLimit fragments
// have been read, the end of the term is reached, or an unpublished frame
// stops the scan.
//
// The outcome offset is advanced past a frame before the handler runs, so a
// handler panic leaves the failing fragment consumed; the panic value is
// routed to onError and the scan stops.
func ReadTerm(
	outcome *ReadOutcome,
	termBuffer *Buffer,
	termOffset int32,
	handler FragmentHandler,
	fragmentLimit int,
	header *Header,
	onError ErrorHandler,
) {
	outcome.Offset = termOffset
	outcome.FragmentsRead = 0
	capacity := termBuffer.Capacity()

	header.SetBuffer(termBuffer)

	defer func() {
		if r := recover(); r != nil {
			onError(RecoveredError(r))
		}
	}()

	for outcome.FragmentsRead < fragmentLimit && outcome.Offset < capacity {
		frameLength := FrameLengthVolatile(termBuffer, outcome.Offset)
		if frameLength <= 0 {
			break
		}

		frameOffset := outcome.Offset
		outcome.Offset += Align(frameLength, FrameAlignment)

		if IsPaddingFrame(termBuffer, frameOffset) {
			continue
		}

		header.SetOffset(frameOffset)
		handler(termBuffer, frameOffset+DataFrameHeaderLength, frameLength-DataFrameHeaderLength, header)
		outcome.FragmentsRead++
	}
}
