// Package xerr enumerates the failures a tether channel can run into.
package xerr

type Error uint16

const (
	ConnectFailure Error = iota + 1
	DecodeFailure
	EncodeFailure
	ProtocolMisuse
	UncleanClose
	ConnectionClosed
	SendQueueFull
	LifecycleReleased
	TransportNotSupported
)

var errorMap = map[Error]string{
	ConnectFailure:        "connect failure",
	DecodeFailure:         "decode failure",
	EncodeFailure:         "encode failure",
	ProtocolMisuse:        "protocol misuse",
	UncleanClose:          "unclean close",
	ConnectionClosed:      "connection is closed",
	SendQueueFull:         "sending queue is full",
	LifecycleReleased:     "lifecycle released",
	TransportNotSupported: "transport not supported",
}

func (e Error) Error() string {
	if s, ok := errorMap[e]; ok {
		return s
	}
	return "unknown error"
}

func (e Error) String() string {
	return e.Error()
}
