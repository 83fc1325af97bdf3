package channel

// Context is what a consumer renders from: one of *Disconnected, *Connecting,
// *Waiting or *Connected. Each variant carries only the capabilities that
// are valid in its phase.
type Context[Req, St any] interface {
	// Phase names the variant.
	Phase() string
	Accept(v Visitor[Req, St])
	isContext()
}

// Visitor handles every Context variant. Adding a variant breaks every
// visitor at compile time.
type Visitor[Req, St any] interface {
	VisitDisconnected(c *Disconnected[Req, St])
	VisitConnecting(c *Connecting[Req, St])
	VisitWaiting(c *Waiting[Req, St])
	VisitConnected(c *Connected[Req, St])
}

type Disconnected[Req, St any] struct {
	Reason string
	// Reconnect activates the same lifecycle again, with the address, codec
	// and dialer it was built with.
	Reconnect func()
}

type Connecting[Req, St any] struct{}

type Waiting[Req, St any] struct {
	SendRequest func(req Req)
}

type Connected[Req, St any] struct {
	View        *View[Req, St]
	SendRequest func(req Req)
}

func (*Disconnected[Req, St]) Phase() string { return phaseDisconnected.String() }
func (*Connecting[Req, St]) Phase() string   { return phaseConnecting.String() }
func (*Waiting[Req, St]) Phase() string      { return phaseWaiting.String() }
func (*Connected[Req, St]) Phase() string    { return phaseConnected.String() }

func (c *Disconnected[Req, St]) Accept(v Visitor[Req, St]) { v.VisitDisconnected(c) }
func (c *Connecting[Req, St]) Accept(v Visitor[Req, St])   { v.VisitConnecting(c) }
func (c *Waiting[Req, St]) Accept(v Visitor[Req, St])      { v.VisitWaiting(c) }
func (c *Connected[Req, St]) Accept(v Visitor[Req, St])    { v.VisitConnected(c) }

func (*Disconnected[Req, St]) isContext() {}
func (*Connecting[Req, St]) isContext()   {}
func (*Waiting[Req, St]) isContext()      {}
func (*Connected[Req, St]) isContext()    {}

// VisitorFuncs is a Visitor built from optional functions; nil entries are
// skipped.
type VisitorFuncs[Req, St any] struct {
	Disconnected func(c *Disconnected[Req, St])
	Connecting   func(c *Connecting[Req, St])
	Waiting      func(c *Waiting[Req, St])
	Connected    func(c *Connected[Req, St])
}

func (f VisitorFuncs[Req, St]) VisitDisconnected(c *Disconnected[Req, St]) {
	if f.Disconnected != nil {
		f.Disconnected(c)
	}
}

func (f VisitorFuncs[Req, St]) VisitConnecting(c *Connecting[Req, St]) {
	if f.Connecting != nil {
		f.Connecting(c)
	}
}

func (f VisitorFuncs[Req, St]) VisitWaiting(c *Waiting[Req, St]) {
	if f.Waiting != nil {
		f.Waiting(c)
	}
}

func (f VisitorFuncs[Req, St]) VisitConnected(c *Connected[Req, St]) {
	if f.Connected != nil {
		f.Connected(c)
	}
}
