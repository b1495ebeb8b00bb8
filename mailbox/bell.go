package mailbox

// Bell notifies the reader side that a record was committed. Rings that
// arrive before the previous one was taken are merged.
type Bell struct {
	c chan struct{}
}

// NewBell returns a Bell.
func NewBell() *Bell {
	return &Bell{c: make(chan struct{}, 1)}
}

// Ring signals the bell without blocking.
func (b *Bell) Ring() {
	select {
	case b.c <- struct{}{}:
	default:
	}
}

// C returns the channel receiving rings.
func (b *Bell) C() <-chan struct{} {
	return b.c
}
