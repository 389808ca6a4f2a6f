package element

import (
	"fmt"

	"pipesort.dev/pipesort/faults"
)

// Tag distinguishes payload from the end of a stream. It travels beside the
// value so every byte value, 255 included, is usable as payload.
type Tag uint8

const (
	TagData Tag = 0x00
	TagEnd  Tag = 0x01
)

// FrameSize is the number of bytes an element takes on a stream link.
const FrameSize = 2

// Element is either a payload byte or the end marker of a link.
type Element struct {
	tag   Tag
	value byte
}

func Data(v byte) Element {
	return Element{tag: TagData, value: v}
}

func End() Element {
	return Element{tag: TagEnd}
}

func (e Element) IsEnd() bool {
	return e.tag == TagEnd
}

// Value returns the payload. It is zero for the end marker.
func (e Element) Value() byte {
	return e.value
}

func (e Element) Tag() Tag {
	return e.tag
}

func (e Element) String() string {
	if e.IsEnd() {
		return "End"
	}
	return fmt.Sprintf("Data(%d)", e.value)
}

// AppendFrame appends the wire encoding of the element to buf.
func AppendFrame(buf []byte, e Element) []byte {
	return append(buf, byte(e.tag), e.value)
}

// DecodeFrame reads an element from a FrameSize byte frame.
func DecodeFrame(frame []byte) (Element, error) {
	if len(frame) != FrameSize {
		return Element{}, faults.Protocol("frame must be %d bytes, got %d", FrameSize, len(frame))
	}
	switch Tag(frame[0]) {
	case TagData:
		return Data(frame[1]), nil
	case TagEnd:
		if frame[1] != 0 {
			return Element{}, faults.Protocol("end frame carries payload %d", frame[1])
		}
		return End(), nil
	default:
		return Element{}, faults.Protocol("unknown frame tag %#x", frame[0])
	}
}
