// Package counter is the reference payload served by tether serve and
// watched by tether watch: one shared integer that every client can set or
// bump.
package counter

import (
	"fmt"

	"sutext.github.io/tether/codec"
	"sutext.github.io/tether/coder"
)

type State struct {
	Count   int64
	Version uint64 // bumped by every applied request
}

func (s *State) WriteTo(e coder.Encoder) error {
	e.WriteInt64(s.Count)
	e.WriteVarint(s.Version)
	return nil
}

func (s *State) ReadFrom(d coder.Decoder) (err error) {
	if s.Count, err = d.ReadInt64(); err != nil {
		return err
	}
	s.Version, err = d.ReadVarint()
	return err
}

// Apply returns the state after req.
func (s State) Apply(req *Request) State {
	switch req.Op {
	case OpSet:
		s.Count = req.Value
	case OpAdd:
		s.Count += req.Value
	}
	s.Version++
	return s
}

type Op uint8

const (
	OpSet Op = iota + 1
	OpAdd
)

func (o Op) String() string {
	switch o {
	case OpSet:
		return "set"
	case OpAdd:
		return "add"
	default:
		return "unknown"
	}
}

type Request struct {
	Op    Op
	Value int64
}

func (r *Request) WriteTo(e coder.Encoder) error {
	if r.Op != OpSet && r.Op != OpAdd {
		return fmt.Errorf("counter: unknown op %d", r.Op)
	}
	e.WriteUInt8(uint8(r.Op))
	e.WriteInt64(r.Value)
	return nil
}

func (r *Request) ReadFrom(d coder.Decoder) error {
	op, err := d.ReadUInt8()
	if err != nil {
		return err
	}
	r.Op = Op(op)
	if r.Op != OpSet && r.Op != OpAdd {
		return fmt.Errorf("counter: unknown op %d", op)
	}
	r.Value, err = d.ReadInt64()
	return err
}

// Set asks the server to adopt s.Count. It is the codec's derive function.
func Set(s State) *Request {
	return &Request{Op: OpSet, Value: s.Count}
}

func Add(n int64) *Request {
	return &Request{Op: OpAdd, Value: n}
}

// Codec is the client side codec for the counter.
func Codec() codec.Codec[*Request, State] {
	return codec.NewBinary[*Request, State](Set)
}
