package pulsenode

import "github.com/cgxeiji/pulsenode/max30100"

// Window accumulates IR and red samples into fixed buffers until it holds
// Cap of them. The buffers are allocated once.
type Window struct {
	ir  []uint16
	red []uint16
	n   int
}

// NewWindow returns an empty window of size samples.
func NewWindow(size int) *Window {
	return &Window{
		ir:  make([]uint16, size),
		red: make([]uint16, size),
	}
}

// Add appends as many samples as fit and returns how many were taken.
func (w *Window) Add(samples []max30100.Sample) int {
	taken := 0
	for _, s := range samples {
		if w.n == len(w.ir) {
			break
		}
		w.ir[w.n] = s.IR
		w.red[w.n] = s.Red
		w.n++
		taken++
	}
	return taken
}

// Full reports whether the window holds Cap samples.
func (w *Window) Full() bool {
	return w.n == len(w.ir)
}

// Len returns the number of samples held.
func (w *Window) Len() int {
	return w.n
}

// Cap returns the window size.
func (w *Window) Cap() int {
	return len(w.ir)
}

// IR returns the IR samples held. The slice is only valid until Reset.
func (w *Window) IR() []uint16 {
	return w.ir[:w.n]
}

// Red returns the red samples held. The slice is only valid until Reset.
func (w *Window) Red() []uint16 {
	return w.red[:w.n]
}

// Reset empties the window.
func (w *Window) Reset() {
	w.n = 0
}
