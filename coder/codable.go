// Package coder is the big-endian, varint-prefixed binary encoding used for
// tether payloads.
package coder

import "fmt"

type Encodable interface {
	WriteTo(Encoder) error
}

type Decodable interface {
	ReadFrom(Decoder) error
}

type Codable interface {
	Encodable
	Decodable
}

type Error uint8

const (
	ErrVarintOverflow Error = iota + 1
	ErrBufferTooShort
	ErrTrailingBytes
	ErrLengthTooLarge
)

func (e Error) Error() string {
	switch e {
	case ErrVarintOverflow:
		return "varint overflow"
	case ErrBufferTooShort:
		return "buffer too short"
	case ErrTrailingBytes:
		return "trailing bytes after value"
	case ErrLengthTooLarge:
		return "length prefix exceeds buffer"
	default:
		return "unknown error"
	}
}

func Marshal(ec Encodable) ([]byte, error) {
	enc := NewEncoder()
	if err := ec.WriteTo(enc); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}

// Unmarshal decodes b into dc and requires every byte to be consumed.
func Unmarshal(b []byte, dc Decodable) error {
	dec := NewDecoder(b)
	if err := dc.ReadFrom(dec); err != nil {
		return err
	}
	if n := dec.Remaining(); n > 0 {
		return fmt.Errorf("%w: %d bytes", ErrTrailingBytes, n)
	}
	return nil
}
