package coder

import (
	"encoding/binary"
)

type Encoder interface {
	Bytes() []byte
	WriteBytes(p []byte)
	WriteUInt8(i uint8)
	WriteUInt16(i uint16)
	WriteUInt32(i uint32)
	WriteUInt64(i uint64)
	WriteInt64(i int64)
	WriteBool(b bool)
	WriteVarint(i uint64)
	WriteData(data []byte)
	WriteString(s string)
}

type Decoder interface {
	Remaining() int
	ReadBytes(n uint64) ([]byte, error)
	ReadUInt8() (uint8, error)
	ReadUInt16() (uint16, error)
	ReadUInt32() (uint32, error)
	ReadUInt64() (uint64, error)
	ReadInt64() (int64, error)
	ReadBool() (bool, error)
	ReadVarint() (uint64, error)
	ReadData() ([]byte, error)
	ReadString() (string, error)
}

func NewEncoder(capacity ...int) Encoder {
	if len(capacity) > 0 && capacity[0] > 0 {
		return &encoder{buf: make([]byte, 0, capacity[0])}
	}
	return &encoder{buf: make([]byte, 0, 64)}
}

func NewDecoder(b []byte) Decoder {
	return &decoder{buf: b}
}

type encoder struct {
	buf []byte
}

func (e *encoder) Bytes() []byte        { return e.buf }
func (e *encoder) WriteBytes(p []byte)  { e.buf = append(e.buf, p...) }
func (e *encoder) WriteUInt8(i uint8)   { e.buf = append(e.buf, i) }
func (e *encoder) WriteUInt16(i uint16) { e.buf = binary.BigEndian.AppendUint16(e.buf, i) }
func (e *encoder) WriteUInt32(i uint32) { e.buf = binary.BigEndian.AppendUint32(e.buf, i) }
func (e *encoder) WriteUInt64(i uint64) { e.buf = binary.BigEndian.AppendUint64(e.buf, i) }
func (e *encoder) WriteInt64(i int64)   { e.WriteUInt64(uint64(i)) }
func (e *encoder) WriteVarint(i uint64) { e.buf = binary.AppendUvarint(e.buf, i) }

func (e *encoder) WriteBool(b bool) {
	if b {
		e.WriteUInt8(1)
		return
	}
	e.WriteUInt8(0)
}

// WriteData writes data behind a varint length prefix.
func (e *encoder) WriteData(data []byte) {
	e.WriteVarint(uint64(len(data)))
	e.WriteBytes(data)
}

func (e *encoder) WriteString(s string) {
	e.WriteVarint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

type decoder struct {
	pos int
	buf []byte
}

func (d *decoder) Remaining() int {
	return len(d.buf) - d.pos
}

func (d *decoder) ReadBytes(n uint64) ([]byte, error) {
	if n > uint64(d.Remaining()) {
		return nil, ErrBufferTooShort
	}
	p := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return p, nil
}

func (d *decoder) ReadUInt8() (uint8, error) {
	if d.Remaining() < 1 {
		return 0, ErrBufferTooShort
	}
	i := d.buf[d.pos]
	d.pos++
	return i, nil
}

func (d *decoder) ReadUInt16() (uint16, error) {
	p, err := d.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p), nil
}

func (d *decoder) ReadUInt32() (uint32, error) {
	p, err := d.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}

func (d *decoder) ReadUInt64() (uint64, error) {
	p, err := d.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(p), nil
}

func (d *decoder) ReadInt64() (int64, error) {
	u, err := d.ReadUInt64()
	return int64(u), err
}

func (d *decoder) ReadBool() (bool, error) {
	i, err := d.ReadUInt8()
	return i == 1, err
}

func (d *decoder) ReadVarint() (uint64, error) {
	v, n := binary.Uvarint(d.buf[d.pos:])
	if n < 0 {
		return 0, ErrVarintOverflow
	}
	if n == 0 {
		return 0, ErrBufferTooShort
	}
	d.pos += n
	return v, nil
}

func (d *decoder) ReadData() ([]byte, error) {
	n, err := d.ReadVarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(d.Remaining()) {
		return nil, ErrLengthTooLarge
	}
	return d.ReadBytes(n)
}

func (d *decoder) ReadString() (string, error) {
	p, err := d.ReadData()
	if err != nil {
		return "", err
	}
	return string(p), nil
}
