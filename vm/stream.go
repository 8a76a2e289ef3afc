package vm

import (
	"encoding/binary"
	"errors"
	"math"
)

var ErrStreamEOF = errors.New("read past end of bytecode stream")

// BytecodeStream is a random-access cursor over an immutable byte
// buffer. It never mutates the underlying buffer and permits
// misaligned reads - the wire format carries no alignment padding.
// Reading past the end leaves the cursor pinned at Len() and is treated
// by the dispatcher as ordinary loop exit, not a hard failure.
type BytecodeStream struct {
	buf []byte
	pos uint32
}

func NewBytecodeStream(buf []byte) *BytecodeStream {
	return &BytecodeStream{buf: buf}
}

func (s *BytecodeStream) Len() uint32 { return uint32(len(s.buf)) }

func (s *BytecodeStream) Position() uint32 { return s.pos }

func (s *BytecodeStream) Seek(offset uint32) {
	if offset > s.Len() {
		offset = s.Len()
	}
	s.pos = offset
}

func (s *BytecodeStream) Eof() bool { return s.pos >= s.Len() }

func (s *BytecodeStream) Bytes() []byte { return s.buf }

func (s *BytecodeStream) readBytes(n uint32) ([]byte, error) {
	if s.pos+n > s.Len() {
		s.pos = s.Len()
		return nil, ErrStreamEOF
	}
	b := s.buf[s.pos : s.pos+n]
	s.pos += n
	return b, nil
}

func (s *BytecodeStream) ReadU8() (uint8, error) {
	b, err := s.readBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (s *BytecodeStream) ReadU16() (uint16, error) {
	b, err := s.readBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (s *BytecodeStream) ReadU32() (uint32, error) {
	b, err := s.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (s *BytecodeStream) ReadI32() (int32, error) {
	v, err := s.ReadU32()
	return int32(v), err
}

func (s *BytecodeStream) ReadU64() (uint64, error) {
	b, err := s.readBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (s *BytecodeStream) ReadI64() (int64, error) {
	v, err := s.ReadU64()
	return int64(v), err
}

func (s *BytecodeStream) ReadF32() (float32, error) {
	v, err := s.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (s *BytecodeStream) ReadF64() (float64, error) {
	v, err := s.ReadU64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadString reads a u32 length prefix followed by that many raw UTF-8
// bytes; the wire format never null-terminates strings.
func (s *BytecodeStream) ReadString() (string, error) {
	n, err := s.ReadU32()
	if err != nil {
		return "", err
	}
	b, err := s.readBytes(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadShortString is the TypeInfo name-field variant: a u16 length
// prefix.
func (s *BytecodeStream) ReadShortString() (string, error) {
	n, err := s.ReadU16()
	if err != nil {
		return "", err
	}
	b, err := s.readBytes(uint32(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
