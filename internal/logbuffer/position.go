package logbuffer

import "math/bits"

// Term geometry. A 64-bit stream position decomposes into a term offset
// (the low log2(termLength) bits) and a term count (the high bits), and the
// term count selects one of the PartitionCount cyclically reused buffers.

// PositionBitsToShift returns log2 of the term length.
func PositionBitsToShift(termLength int32) int32 {
	return int32(bits.TrailingZeros32(uint32(termLength)))
}

// IndexByPosition maps a stream position to the partition index of its term.
// The result is always in [0, PartitionCount).
func IndexByPosition(position int64, positionBitsToShift int32) int32 {
	return int32((uint64(position) >> uint(positionBitsToShift)) % PartitionCount)
}

// IndexByTerm maps a term id to its partition index.
func IndexByTerm(initialTermID int32, activeTermID int32) int32 {
	return (activeTermID - initialTermID) % PartitionCount
}

// ComputeTermBeginPosition returns the stream position at which the given
// term begins.
func ComputeTermBeginPosition(activeTermID int32, positionBitsToShift int32, initialTermID int32) int64 {
	termCount := int64(activeTermID) - int64(initialTermID)
	return termCount << uint(positionBitsToShift)
}

// ComputeTermIDFromPosition returns the term id containing the position.
func ComputeTermIDFromPosition(position int64, positionBitsToShift int32, initialTermID int32) int32 {
	return int32(position>>uint(positionBitsToShift)) + initialTermID
}

// IsPowerOfTwo reports whether value is a non-zero power of two.
func IsPowerOfTwo(value int32) bool {
	return value > 0 && value&(value-1) == 0
}
