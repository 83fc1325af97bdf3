package codec

import (
	"fmt"

	"sutext.github.io/tether/coder"
)

// Version is the envelope version written by this package.
const Version uint8 = 1

// Kind tags what an envelope carries so that a peer speaking a different
// dialect is rejected instead of misread.
type Kind uint8

const (
	KindRequest Kind = 0x01
	KindState   Kind = 0x02
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "Request"
	case KindState:
		return "State"
	default:
		return "Unknown"
	}
}

// Envelope wire format:
//
//	[version: 1 byte][kind: 1 byte][payload length: varint][payload]
func Frame(kind Kind, v coder.Encodable) ([]byte, error) {
	payload, err := coder.Marshal(v)
	if err != nil {
		return nil, err
	}
	enc := coder.NewEncoder(len(payload) + 8)
	enc.WriteUInt8(Version)
	enc.WriteUInt8(uint8(kind))
	enc.WriteData(payload)
	return enc.Bytes(), nil
}

// Unframe checks the envelope header and decodes its payload into v.
func Unframe(kind Kind, data []byte, v coder.Decodable) error {
	dec := coder.NewDecoder(data)
	version, err := dec.ReadUInt8()
	if err != nil {
		return err
	}
	if version != Version {
		return fmt.Errorf("unsupported envelope version %d", version)
	}
	k, err := dec.ReadUInt8()
	if err != nil {
		return err
	}
	if Kind(k) != kind {
		return fmt.Errorf("expected %s envelope, got %s", kind, Kind(k))
	}
	payload, err := dec.ReadData()
	if err != nil {
		return err
	}
	if n := dec.Remaining(); n > 0 {
		return fmt.Errorf("%w: %d bytes", coder.ErrTrailingBytes, n)
	}
	return coder.Unmarshal(payload, v)
}

// Binary encodes coder codables inside the tether envelope. PS is the
// pointer type of St and is normally inferred:
//
//	c := codec.NewBinary[*counter.Request, counter.State](counter.Set)
type Binary[Req coder.Encodable, St any, PS interface {
	*St
	coder.Decodable
}] struct {
	derive func(St) Req
}

func NewBinary[Req coder.Encodable, St any, PS interface {
	*St
	coder.Decodable
}](derive func(St) Req) *Binary[Req, St, PS] {
	return &Binary[Req, St, PS]{derive: derive}
}

func (b *Binary[Req, St, PS]) Encode(req Req) ([]byte, error) {
	return Frame(KindRequest, req)
}

func (b *Binary[Req, St, PS]) Decode(data []byte) (St, error) {
	var st St
	if err := Unframe(KindState, data, PS(&st)); err != nil {
		var zero St
		return zero, &DecodeError{Size: len(data), Err: err}
	}
	return st, nil
}

func (b *Binary[Req, St, PS]) Derive(state St) Req {
	return b.derive(state)
}
