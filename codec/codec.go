// Package codec turns upstream requests into bytes and inbound bytes into
// state values.
//
// A Codec is supplied per channel. Decode must fail with a *DecodeError on
// malformed input so the channel can treat the connection as unusable.
package codec

import (
	"fmt"

	"sutext.github.io/tether/xerr"
)

type Codec[Req, St any] interface {
	Encode(req Req) ([]byte, error)
	Decode(data []byte) (St, error)
	// Derive turns a full local state value into the request that asks the
	// server to adopt it.
	Derive(state St) Req
}

// DecodeError reports an inbound payload that could not be turned into a
// state value. It matches xerr.DecodeFailure with errors.Is.
type DecodeError struct {
	Size int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %d byte payload: %v", e.Size, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == xerr.DecodeFailure
}

// Funcs adapts three plain functions to a Codec.
type Funcs[Req, St any] struct {
	EncodeFunc func(Req) ([]byte, error)
	DecodeFunc func([]byte) (St, error)
	DeriveFunc func(St) Req
}

func (f Funcs[Req, St]) Encode(req Req) ([]byte, error) {
	return f.EncodeFunc(req)
}

func (f Funcs[Req, St]) Decode(data []byte) (St, error) {
	st, err := f.DecodeFunc(data)
	if err != nil {
		var zero St
		return zero, asDecodeError(len(data), err)
	}
	return st, nil
}

func (f Funcs[Req, St]) Derive(state St) Req {
	return f.DeriveFunc(state)
}

func asDecodeError(size int, err error) error {
	if de, ok := err.(*DecodeError); ok {
		return de
	}
	return &DecodeError{Size: size, Err: err}
}
