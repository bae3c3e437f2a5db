package logbuffer

// FragmentHandler consumes one data fragment. offset and length delimit the
// payload, excluding the frame header. The header view is only valid for the
// duration of the call. A handler signals failure by panicking; the poll
// loop recovers and routes the value to the ErrorHandler.
type FragmentHandler func(buffer *Buffer, offset int32, length int32, header *Header)

// ControlledPollAction is the verdict a controlled handler returns for each
// fragment.
type ControlledPollAction int

const (
	// ActionAbort stops the poll and does not advance the position past
	// this fragment. The fragment will be delivered again.
	ActionAbort ControlledPollAction = iota + 1

	// ActionBreak stops the poll after this fragment, committing the
	// position to the end of it.
	ActionBreak

	// ActionCommit continues the poll and immediately publishes the
	// position at the end of this fragment, applying flow control to it.
	ActionCommit

	// ActionContinue continues the poll, deferring position publication to
	// the end of the poll.
	ActionContinue
)

// ControlledFragmentHandler consumes one data fragment and directs the poll
// via its returned action.
type ControlledFragmentHandler func(buffer *Buffer, offset int32, length int32, header *Header) ControlledPollAction

// BlockHandler consumes a block of contiguous whole frames. offset and
// length delimit the block, headers included.
type BlockHandler func(buffer *Buffer, offset int32, length int32, sessionID int32, termID int32)

// ErrorHandler receives errors recovered from user callbacks.
type ErrorHandler func(err error)
