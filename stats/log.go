package stats

import (
	"context"
	"log/slog"

	"sutext.github.io/tether/xlog"
)

type logHandler struct {
	logger *xlog.Logger
}

// Log writes diagnostics at their own level and transitions at debug.
// Payload events are not logged.
func Log(logger *xlog.Logger) Handler {
	return &logHandler{logger: logger}
}

func (h *logHandler) Handle(_ context.Context, e Event) {
	switch e := e.(type) {
	case *Transition:
		h.logger.Debug("phase transition",
			xlog.Name(e.Name),
			xlog.Str("from", e.From),
			xlog.Phase(e.To),
			xlog.Conn(e.ConnID),
		)
	case *Diagnostic:
		attrs := []slog.Attr{
			xlog.Name(e.Name),
			xlog.Str("kind", e.Kind.String()),
			xlog.Conn(e.ConnID),
		}
		if e.Code != 0 {
			attrs = append(attrs, xlog.Code(e.Code), xlog.Reason(e.Reason))
		}
		if e.Err != nil {
			attrs = append(attrs, xlog.Err(e.Err))
		}
		h.logger.Log(e.Level, e.Message, attrs...)
	}
}
