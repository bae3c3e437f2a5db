package egress

import (
	"bufio"
	"bytes"
	"testing"
)

func TestRecordRoundTrip(t *testing.T) {
	in := &Record{
		SessionId:     1001,
		StreamId:      10,
		TermId:        7,
		TermOffset:    64,
		Position:      128,
		Flags:         0xC0,
		ReservedValue: -5,
		Payload:       []byte("hello"),
	}

	var b bytes.Buffer
	if err := WriteRecord(&b, in); err != nil {
		t.Fatal(err)
	}
	out, err := ReadRecord(bufio.NewReader(&b))
	if err != nil {
		t.Fatal(err)
	}

	if out.SessionId != in.SessionId || out.StreamId != in.StreamId ||
		out.TermId != in.TermId || out.TermOffset != in.TermOffset ||
		out.Position != in.Position || out.Flags != in.Flags ||
		out.ReservedValue != in.ReservedValue || string(out.Payload) != "hello" {
		t.Fatalf("bad decode: %+v", out)
	}
}

func TestReadRecordRejectsEmptyFrame(t *testing.T) {
	b := bytes.NewReader([]byte{0, 0, 0, 0})
	if _, err := ReadRecord(bufio.NewReader(b)); err == nil {
		t.Fatal("expected error for empty frame")
	}
}

func TestReadRecordRejectsOversizedFrame(t *testing.T) {
	b := bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	if _, err := ReadRecord(bufio.NewReader(b)); err == nil {
		t.Fatal("expected error for oversized frame")
	}
}

func TestEncodeDecode(t *testing.T) {
	in := &Record{Position: 96, Payload: []byte("p")}
	wire, err := Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Decode(wire)
	if err != nil {
		t.Fatal(err)
	}
	if out.Position != 96 || string(out.Payload) != "p" {
		t.Fatalf("bad decode: %+v", out)
	}
}
