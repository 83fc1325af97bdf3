package coder

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	id    uint16
	count int64
	on    bool
	name  string
	blob  []byte
}

func (s *sample) WriteTo(e Encoder) error {
	e.WriteUInt16(s.id)
	e.WriteInt64(s.count)
	e.WriteBool(s.on)
	e.WriteString(s.name)
	e.WriteData(s.blob)
	return nil
}

func (s *sample) ReadFrom(d Decoder) (err error) {
	if s.id, err = d.ReadUInt16(); err != nil {
		return err
	}
	if s.count, err = d.ReadInt64(); err != nil {
		return err
	}
	if s.on, err = d.ReadBool(); err != nil {
		return err
	}
	if s.name, err = d.ReadString(); err != nil {
		return err
	}
	s.blob, err = d.ReadData()
	return err
}

func TestMarshalUnmarshal(t *testing.T) {
	in := &sample{id: 7, count: math.MinInt64, on: true, name: "debate", blob: []byte{1, 2, 3}}
	b, err := Marshal(in)
	require.NoError(t, err)

	out := &sample{}
	require.NoError(t, Unmarshal(b, out))
	assert.Equal(t, in, out)
}

func TestUnmarshalRejectsTrailingBytes(t *testing.T) {
	b, err := Marshal(&sample{name: "x"})
	require.NoError(t, err)
	err = Unmarshal(append(b, 0xff), &sample{})
	assert.True(t, errors.Is(err, ErrTrailingBytes))
}

func TestTruncatedInput(t *testing.T) {
	b, err := Marshal(&sample{id: 1, name: "truncated"})
	require.NoError(t, err)
	for i := 0; i < len(b); i++ {
		err := Unmarshal(b[:i], &sample{})
		assert.Error(t, err, "prefix of %d bytes", i)
	}
}

func TestDecoderPrimitives(t *testing.T) {
	e := NewEncoder(8)
	e.WriteUInt8(0xab)
	e.WriteUInt32(0xdeadbeef)
	e.WriteUInt64(1 << 40)
	e.WriteVarint(300)

	d := NewDecoder(e.Bytes())
	u8, err := d.ReadUInt8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xab), u8)
	u32, err := d.ReadUInt32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), u32)
	u64, err := d.ReadUInt64()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40), u64)
	v, err := d.ReadVarint()
	require.NoError(t, err)
	assert.Equal(t, uint64(300), v)
	assert.Zero(t, d.Remaining())

	_, err = d.ReadUInt8()
	assert.ErrorIs(t, err, ErrBufferTooShort)
}

func TestLengthPrefixBeyondBuffer(t *testing.T) {
	e := NewEncoder()
	e.WriteVarint(1000)
	e.WriteBytes([]byte("short"))
	_, err := NewDecoder(e.Bytes()).ReadData()
	assert.ErrorIs(t, err, ErrLengthTooLarge)
}

func TestVarintOverflow(t *testing.T) {
	bad := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}
	_, err := NewDecoder(bad).ReadVarint()
	assert.ErrorIs(t, err, ErrVarintOverflow)
}
