package egress

import (
	"fmt"

	"github.com/golang/protobuf/proto"
)

// Record is the wire envelope for one consumed fragment handed to egress
// sinks. Position is the stream position at the end of the fragment, which
// is where a consumer restarting from this record resumes.
type Record struct {
	SessionId     int32  `protobuf:"varint,1,opt,name=session_id,json=sessionId,proto3"`
	StreamId      int32  `protobuf:"varint,2,opt,name=stream_id,json=streamId,proto3"`
	TermId        int32  `protobuf:"varint,3,opt,name=term_id,json=termId,proto3"`
	TermOffset    int32  `protobuf:"varint,4,opt,name=term_offset,json=termOffset,proto3"`
	Position      int64  `protobuf:"varint,5,opt,name=position,proto3"`
	Flags         uint32 `protobuf:"varint,6,opt,name=flags,proto3"`
	ReservedValue int64  `protobuf:"varint,7,opt,name=reserved_value,json=reservedValue,proto3"`
	Payload       []byte `protobuf:"bytes,8,opt,name=payload,proto3"`
}

func (*Record) Reset()         {}
func (*Record) String() string { return "Record" }
func (*Record) ProtoMessage()  {}

// Encode marshals the record to its protobuf wire form.
func Encode(rec *Record) ([]byte, error) {
	b, err := proto.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return b, nil
}

// Decode unmarshals a record from its protobuf wire form.
func Decode(b []byte) (*Record, error) {
	rec := &Record{}
	if err := proto.Unmarshal(b, rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec, nil
}
