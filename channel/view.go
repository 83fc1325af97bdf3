package channel

// View is the read/write accessor of a Connected context. Writes are
// optimistic sends: they never change what Read returns. Only the next state
// the server sends does.
type View[Req, St any] struct {
	state  St
	derive func(St) Req
	send   func(req Req, then func())
}

// Read returns the last state decoded from the server.
func (v *View[Req, St]) Read() St {
	return v.state
}

// Write sends the request derived from next and runs then once the send has
// been issued. A nil next sends nothing and runs then directly.
func (v *View[Req, St]) Write(next *St, then func()) {
	if next == nil {
		if then != nil {
			then()
		}
		return
	}
	v.send(v.derive(*next), then)
}

func (v *View[Req, St]) SendRequest(req Req) {
	v.send(req, nil)
}
