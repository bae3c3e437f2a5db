package logbuffer

import "testing"

const scannerTermLength = 1024

func TestScanForBlockEmptyTerm(t *testing.T) {
	tb := Wrap(make([]byte, scannerTermLength))
	if got := ScanForBlock(tb, 0, scannerTermLength); got != 0 {
		t.Fatalf("offset = %d", got)
	}
}

func TestScanForBlockAccumulatesWholeFrames(t *testing.T) {
	tb := Wrap(make([]byte, scannerTermLength))
	writeDataFrame(tb, 0, 128, UnfragmentedF, 7, "A")
	writeDataFrame(tb, 128, 128, UnfragmentedF, 7, "B")
	writeDataFrame(tb, 256, 128, UnfragmentedF, 7, "C")

	if got := ScanForBlock(tb, 0, scannerTermLength); got != 384 {
		t.Fatalf("offset = %d", got)
	}
}

func TestScanForBlockStopsAtLimitMidFrame(t *testing.T) {
	tb := Wrap(make([]byte, scannerTermLength))
	writeDataFrame(tb, 0, 128, UnfragmentedF, 7, "A")
	writeDataFrame(tb, 128, 128, UnfragmentedF, 7, "B")
	writeDataFrame(tb, 256, 128, UnfragmentedF, 7, "C")

	// Limit falls inside the third frame, so the block ends before it.
	if got := ScanForBlock(tb, 0, 300); got != 256 {
		t.Fatalf("offset = %d", got)
	}
}

func TestScanForBlockStopsAtUnpublishedFrame(t *testing.T) {
	tb := Wrap(make([]byte, scannerTermLength))
	writeDataFrame(tb, 0, 128, UnfragmentedF, 7, "A")

	if got := ScanForBlock(tb, 0, scannerTermLength); got != 128 {
		t.Fatalf("offset = %d", got)
	}
}

func TestScanForBlockLeadingPaddingIsTheBlock(t *testing.T) {
	tb := Wrap(make([]byte, scannerTermLength))
	writePaddingFrame(tb, 0, scannerTermLength, 7)

	if got := ScanForBlock(tb, 0, 256); got != scannerTermLength {
		t.Fatalf("offset = %d, want padding consumed whole", got)
	}
}

func TestScanForBlockTrailingPaddingEndsBlock(t *testing.T) {
	tb := Wrap(make([]byte, scannerTermLength))
	writeDataFrame(tb, 0, 128, UnfragmentedF, 7, "A")
	writePaddingFrame(tb, 128, scannerTermLength-128, 7)

	if got := ScanForBlock(tb, 0, scannerTermLength); got != 128 {
		t.Fatalf("offset = %d, want block to end where padding begins", got)
	}
}
