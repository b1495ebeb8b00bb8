package telemetry

import (
	"fmt"
	"io"

	"go.uber.org/multierr"
)

// Fanout writes each frame to every link. A failing link does not keep the
// frame from the others.
type Fanout []io.Writer

// NewFanout returns a Fanout over ws.
func NewFanout(ws ...io.Writer) Fanout {
	return Fanout(ws)
}

// Write writes p to every link and returns the failures combined with
// multierr. It reports len(p) when at least one link took the whole frame.
func (f Fanout) Write(p []byte) (int, error) {
	var (
		errs error
		ok   bool
	)
	for i, w := range f {
		n, err := w.Write(p)
		if err == nil && n < len(p) {
			err = io.ErrShortWrite
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("link %d: %w", i, err))
			continue
		}
		ok = true
	}
	if !ok && len(f) > 0 {
		return 0, errs
	}
	return len(p), errs
}
