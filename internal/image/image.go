// Package image implements the subscriber-side read cursor over a single
// publisher to subscriber stream in a shared-memory log.
//
// An Image synchronizes three parties that share memory without locks: the
// producer publishing frames, the media driver advancing metadata, and the
// subscriber advancing its position counter. Frame discovery pairs an
// acquire read of the frame length with the producer's release store;
// position publication pairs a release store with observers' acquire reads.
package image

import (
	"sync/atomic"

	"conduit/internal/counters"
	"conduit/internal/logbuffer"
)

// Image is the read cursor over one stream. At most one thread at a time may
// invoke the poll methods and SetPosition; Position, IsEndOfStream, IsClosed
// and Close may race with polling from other threads.
type Image struct {
	termBuffers        [logbuffer.PartitionCount]*logbuffer.Buffer
	header             logbuffer.Header
	subscriberPosition *counters.Position
	logBuffers         *logbuffer.LogBuffers
	sourceIdentity     string
	errorHandler       logbuffer.ErrorHandler
	closed             atomic.Bool

	correlationID              int64
	subscriptionRegistrationID int64
	joinPosition               int64
	finalPosition              int64
	sessionID                  int32
	termLengthMask             int32
	positionBitsToShift        int32
	isEos                      bool
}

// New constructs an Image over externally mapped log buffers and an
// externally allocated subscriber position counter.
func New(
	sessionID int32,
	correlationID int64,
	subscriptionRegistrationID int64,
	sourceIdentity string,
	subscriberPosition *counters.Position,
	logBuffers *logbuffer.LogBuffers,
	errorHandler logbuffer.ErrorHandler,
) *Image {
	termLength := logBuffers.TermLength()

	img := &Image{
		subscriberPosition:         subscriberPosition,
		logBuffers:                 logBuffers,
		sourceIdentity:             sourceIdentity,
		errorHandler:               errorHandler,
		correlationID:              correlationID,
		subscriptionRegistrationID: subscriptionRegistrationID,
		sessionID:                  sessionID,
		termLengthMask:             termLength - 1,
		positionBitsToShift:        logbuffer.PositionBitsToShift(termLength),
	}
	img.header = logbuffer.NewHeader(logBuffers.InitialTermID(), termLength, img)
	for i := int32(0); i < logbuffer.PartitionCount; i++ {
		img.termBuffers[i] = logBuffers.TermBuffer(i)
	}
	img.joinPosition = subscriberPosition.Get()
	img.finalPosition = img.joinPosition
	return img
}

// SessionID identifies the publisher session feeding this Image.
func (i *Image) SessionID() int32 {
	return i.sessionID
}

// CorrelationID identifies this Image with the media driver.
func (i *Image) CorrelationID() int64 {
	return i.correlationID
}

// SubscriptionRegistrationID is the registration id of the owning
// Subscription.
func (i *Image) SubscriptionRegistrationID() int64 {
	return i.subscriptionRegistrationID
}

// SourceIdentity describes the sending publisher in media-specific form.
func (i *Image) SourceIdentity() string {
	return i.sourceIdentity
}

// JoinPosition is the stream position at which the subscriber joined.
func (i *Image) JoinPosition() int64 {
	return i.joinPosition
}

// InitialTermID is the term id at which the stream started.
func (i *Image) InitialTermID() int32 {
	return i.header.InitialTermID()
}

// TermBufferLength is the capacity of each term partition.
func (i *Image) TermBufferLength() int32 {
	return i.termBuffers[0].Capacity()
}

// PositionBitsToShift converts between positions and term counts.
func (i *Image) PositionBitsToShift() int32 {
	return i.positionBitsToShift
}

// SubscriberPositionID is the counter id of the subscriber position.
func (i *Image) SubscriberPositionID() int32 {
	return i.subscriberPosition.ID()
}

// LogBuffers exposes the shared log handle for lifetime management by the
// enclosing Subscription.
func (i *Image) LogBuffers() *logbuffer.LogBuffers {
	return i.logBuffers
}

// IsClosed reports whether Close has completed, with acquire semantics.
func (i *Image) IsClosed() bool {
	return i.closed.Load()
}

// Position returns the position consumed to, or the snapshot taken at close.
func (i *Image) Position() int64 {
	if i.IsClosed() {
		return i.finalPosition
	}
	return i.subscriberPosition.Get()
}

// SetPosition moves the consumed position forward within the current term.
// The new position must be frame-aligned and inside
// [current, end of current term]. No-op once closed.
func (i *Image) SetPosition(newPosition int64) error {
	if i.IsClosed() {
		return nil
	}
	if err := i.validatePosition(newPosition); err != nil {
		return err
	}
	i.subscriberPosition.SetOrdered(newPosition)
	return nil
}

// IsEndOfStream reports whether the consumed position has reached the
// driver's end-of-stream position, or the snapshot taken at close.
func (i *Image) IsEndOfStream() bool {
	if i.IsClosed() {
		return i.isEos
	}
	return i.subscriberPosition.Get() >= i.logBuffers.EndOfStreamPosition()
}

// Poll delivers published fragments beyond the consumed position to handler,
// up to fragmentLimit, then publishes the advanced position. Returns the
// number of fragments consumed; 0 once closed.
func (i *Image) Poll(handler logbuffer.FragmentHandler, fragmentLimit int) int {
	if i.IsClosed() {
		return 0
	}

	position := i.subscriberPosition.Get()
	termOffset := int32(position) & i.termLengthMask
	index := logbuffer.IndexByPosition(position, i.positionBitsToShift)
	termBuffer := i.termBuffers[index]

	var outcome logbuffer.ReadOutcome
	logbuffer.ReadTerm(&outcome, termBuffer, termOffset, handler, fragmentLimit, &i.header, i.errorHandler)

	newPosition := position + int64(outcome.Offset-termOffset)
	if newPosition > position {
		i.subscriberPosition.SetOrdered(newPosition)
	}

	return outcome.FragmentsRead
}

// ControlledPoll delivers published fragments to handler, which directs
// position advancement per fragment via its returned action. Returns the
// number of fragments consumed; 0 once closed.
func (i *Image) ControlledPoll(handler logbuffer.ControlledFragmentHandler, fragmentLimit int) int {
	if i.IsClosed() {
		return 0
	}

	fragmentsRead := 0
	initialPosition := i.subscriberPosition.Get()
	initialOffset := int32(initialPosition) & i.termLengthMask
	index := logbuffer.IndexByPosition(initialPosition, i.positionBitsToShift)
	termBuffer := i.termBuffers[index]
	resultingOffset := initialOffset
	capacity := termBuffer.Capacity()

	i.header.SetBuffer(termBuffer)

	func() {
		defer func() {
			if r := recover(); r != nil {
				i.errorHandler(logbuffer.RecoveredError(r))
			}
		}()

		for fragmentsRead < fragmentLimit && resultingOffset < capacity {
			length := logbuffer.FrameLengthVolatile(termBuffer, resultingOffset)
			if length <= 0 {
				break
			}

			frameOffset := resultingOffset
			alignedLength := logbuffer.Align(length, logbuffer.FrameAlignment)
			resultingOffset += alignedLength

			if logbuffer.IsPaddingFrame(termBuffer, frameOffset) {
				continue
			}

			i.header.SetOffset(frameOffset)

			action := handler(
				termBuffer,
				frameOffset+logbuffer.DataFrameHeaderLength,
				length-logbuffer.DataFrameHeaderLength,
				&i.header)

			if action == logbuffer.ActionAbort {
				resultingOffset -= alignedLength
				break
			}

			fragmentsRead++

			if action == logbuffer.ActionBreak {
				break
			}
			if action == logbuffer.ActionCommit {
				initialPosition += int64(resultingOffset - initialOffset)
				initialOffset = resultingOffset
				i.subscriberPosition.SetOrdered(initialPosition)
			}
		}
	}()

	resultingPosition := initialPosition + int64(resultingOffset-initialOffset)
	if resultingPosition > initialPosition {
		i.subscriberPosition.SetOrdered(resultingPosition)
	}

	return fragmentsRead
}

// BoundedControlledPoll behaves as ControlledPoll but starts no frame at or
// beyond maxPosition; a frame that begins before maxPosition is consumed
// whole even if it ends past it. Returns the number of fragments consumed;
// 0 once closed.
func (i *Image) BoundedControlledPoll(handler logbuffer.ControlledFragmentHandler, maxPosition int64, fragmentLimit int) int {
	if i.IsClosed() {
		return 0
	}

	fragmentsRead := 0
	initialPosition := i.subscriberPosition.Get()
	initialOffset := int32(initialPosition) & i.termLengthMask
	index := logbuffer.IndexByPosition(initialPosition, i.positionBitsToShift)
	termBuffer := i.termBuffers[index]
	resultingOffset := initialOffset
	capacity := int64(termBuffer.Capacity())
	endOffset := int32(min(capacity, maxPosition-initialPosition+int64(initialOffset)))

	i.header.SetBuffer(termBuffer)

	func() {
		defer func() {
			if r := recover(); r != nil {
				i.errorHandler(logbuffer.RecoveredError(r))
			}
		}()

		for fragmentsRead < fragmentLimit && resultingOffset < endOffset {
			length := logbuffer.FrameLengthVolatile(termBuffer, resultingOffset)
			if length <= 0 {
				break
			}

			frameOffset := resultingOffset
			alignedLength := logbuffer.Align(length, logbuffer.FrameAlignment)
			resultingOffset += alignedLength

			if logbuffer.IsPaddingFrame(termBuffer, frameOffset) {
				continue
			}

			i.header.SetOffset(frameOffset)

			action := handler(
				termBuffer,
				frameOffset+logbuffer.DataFrameHeaderLength,
				length-logbuffer.DataFrameHeaderLength,
				&i.header)

			if action == logbuffer.ActionAbort {
				resultingOffset -= alignedLength
				break
			}

			fragmentsRead++

			if action == logbuffer.ActionBreak {
				break
			}
			if action == logbuffer.ActionCommit {
				initialPosition += int64(resultingOffset - initialOffset)
				initialOffset = resultingOffset
				i.subscriberPosition.SetOrdered(initialPosition)
			}
		}
	}()

	resultingPosition := initialPosition + int64(resultingOffset-initialOffset)
	if resultingPosition > initialPosition {
		i.subscriberPosition.SetOrdered(resultingPosition)
	}

	return fragmentsRead
}

// ControlledPeek scans forward from initialPosition up to limitPosition
// without publishing to the subscriber position. The returned position is
// either initialPosition or the end of a frame whose EndFrag flag was
// observed, so a re-assembler can always restart from it at a whole-message
// boundary. Padding advances the returned position unconditionally.
func (i *Image) ControlledPeek(initialPosition int64, handler logbuffer.ControlledFragmentHandler, limitPosition int64) (int64, error) {
	resultingPosition := initialPosition

	if i.IsClosed() {
		return resultingPosition, nil
	}
	if err := i.validatePosition(initialPosition); err != nil {
		return resultingPosition, err
	}

	initialOffset := int32(initialPosition) & i.termLengthMask
	offset := initialOffset
	position := initialPosition
	index := logbuffer.IndexByPosition(initialPosition, i.positionBitsToShift)
	termBuffer := i.termBuffers[index]
	capacity := termBuffer.Capacity()

	i.header.SetBuffer(termBuffer)

	func() {
		defer func() {
			if r := recover(); r != nil {
				i.errorHandler(logbuffer.RecoveredError(r))
			}
		}()

		for position < limitPosition && offset < capacity {
			length := logbuffer.FrameLengthVolatile(termBuffer, offset)
			if length <= 0 {
				break
			}

			frameOffset := offset
			offset += logbuffer.Align(length, logbuffer.FrameAlignment)

			if logbuffer.IsPaddingFrame(termBuffer, frameOffset) {
				position += int64(offset - initialOffset)
				initialOffset = offset
				resultingPosition = position
				continue
			}

			i.header.SetOffset(frameOffset)

			action := handler(
				termBuffer,
				frameOffset+logbuffer.DataFrameHeaderLength,
				length-logbuffer.DataFrameHeaderLength,
				&i.header)

			if action == logbuffer.ActionAbort {
				break
			}

			position += int64(offset - initialOffset)
			initialOffset = offset

			if i.header.Flags()&logbuffer.EndFrag != 0 {
				resultingPosition = position
			}

			if action == logbuffer.ActionBreak {
				break
			}
		}
	}()

	return resultingPosition, nil
}

// BlockPoll delivers a block of contiguous whole frames, at most
// blockLengthLimit bytes, to blockHandler and publishes the advanced
// position. A leading padding frame is delivered as a block by itself,
// whatever its length.
// Returns the number of bytes consumed; 0 once closed.
func (i *Image) BlockPoll(blockHandler logbuffer.BlockHandler, blockLengthLimit int32) int32 {
	if i.IsClosed() {
		return 0
	}

	position := i.subscriberPosition.Get()
	termOffset := int32(position) & i.termLengthMask
	index := logbuffer.IndexByPosition(position, i.positionBitsToShift)
	termBuffer := i.termBuffers[index]
	limitOffset := min(termOffset+blockLengthLimit, termBuffer.Capacity())
	resultingOffset := logbuffer.ScanForBlock(termBuffer, termOffset, limitOffset)
	length := resultingOffset - termOffset

	if resultingOffset > termOffset {
		func() {
			defer func() {
				if r := recover(); r != nil {
					i.errorHandler(logbuffer.RecoveredError(r))
				}
			}()
			termID := termBuffer.GetInt32(termOffset + logbuffer.TermIDFieldOffset)
			blockHandler(termBuffer, termOffset, length, i.sessionID, termID)
		}()

		i.subscriberPosition.SetOrdered(position + int64(length))
	}

	return length
}

// Close takes the final position and end-of-stream snapshot and transitions
// the Image to closed. Idempotent; may race with a polling thread, which
// will observe closed on its next entry.
func (i *Image) Close() {
	if i.closed.Load() {
		return
	}
	i.finalPosition = i.subscriberPosition.GetVolatile()
	i.isEos = i.finalPosition >= i.logBuffers.EndOfStreamPosition()
	i.closed.Store(true)
}

func (i *Image) validatePosition(newPosition int64) error {
	currentPosition := i.subscriberPosition.Get()
	limitPosition := (currentPosition - (currentPosition & int64(i.termLengthMask))) + int64(i.termLengthMask) + 1

	if newPosition < currentPosition || newPosition > limitPosition {
		return &InvalidPositionError{
			NewPosition:     newPosition,
			CurrentPosition: currentPosition,
			LimitPosition:   limitPosition,
			Reason:          "out of range",
		}
	}
	if newPosition&int64(logbuffer.FrameAlignment-1) != 0 {
		return &InvalidPositionError{
			NewPosition:     newPosition,
			CurrentPosition: currentPosition,
			LimitPosition:   limitPosition,
			Reason:          "not frame aligned",
		}
	}
	return nil
}
