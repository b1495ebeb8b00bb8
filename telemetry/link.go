package telemetry

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Link frames payloads and writes each frame with a single Write, in counter
// order.
type Link struct {
	w      io.Writer
	framer *Framer
	log    *zap.Logger

	mu sync.Mutex
}

// NewLink returns a Link writing frames built by f to w.
func NewLink(w io.Writer, f *Framer, log *zap.Logger) *Link {
	if log == nil {
		log = zap.NewNop()
	}
	return &Link{
		w:      w,
		framer: f,
		log:    log.Named("telemetry"),
	}
}

// Send frames payload and writes it. A frame whose write fails has still
// consumed its counter value.
func (l *Link) Send(payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	counter := l.framer.Counter()
	frame, err := l.framer.Frame(payload)
	if err != nil {
		return err
	}
	if _, err := l.w.Write(frame); err != nil {
		return fmt.Errorf("telemetry: could not send frame %d: %w", counter, err)
	}

	l.log.Debug("frame sent", zap.Uint32("counter", counter), zap.Int("bytes", len(frame)))
	return nil
}

// OpenSerial opens a serial device for writing. Line settings (baud rate,
// parity) are expected to be configured already.
func OpenSerial(path string) (io.WriteCloser, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("telemetry: could not open serial device: %w", err)
	}
	return f, nil
}
