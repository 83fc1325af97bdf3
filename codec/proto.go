package codec

import (
	"google.golang.org/protobuf/proto"
)

// Proto carries protobuf messages without an envelope. newState must return
// a fresh, non-nil message for every call.
type Proto[Req, St proto.Message] struct {
	newState  func() St
	derive    func(St) Req
	unmarshal proto.UnmarshalOptions
}

func NewProto[Req, St proto.Message](newState func() St, derive func(St) Req) *Proto[Req, St] {
	return &Proto[Req, St]{
		newState:  newState,
		derive:    derive,
		unmarshal: proto.UnmarshalOptions{DiscardUnknown: false},
	}
}

func (p *Proto[Req, St]) Encode(req Req) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(req)
}

func (p *Proto[Req, St]) Decode(data []byte) (St, error) {
	st := p.newState()
	if err := p.unmarshal.Unmarshal(data, st); err != nil {
		var zero St
		return zero, &DecodeError{Size: len(data), Err: err}
	}
	return st, nil
}

func (p *Proto[Req, St]) Derive(state St) Req {
	return p.derive(state)
}
