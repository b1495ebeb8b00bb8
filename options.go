package pulsenode

import (
	"time"

	"go.uber.org/zap"

	"github.com/cgxeiji/pulsenode/vitals"
)

// DefaultWindowSize is the number of samples in an analysis window.
const DefaultWindowSize = 128

// An Option configures a node. It returns an option restoring the previous
// value.
type Option func(n *Node) Option

// Options applies opts in order and returns the last previous value.
func (n *Node) Options(opts ...Option) (previous Option) {
	for _, opt := range opts {
		previous = opt(n)
	}
	return previous
}

// WithLogger sets the logger. By default, nothing is logged.
func WithLogger(log *zap.Logger) Option {
	return func(n *Node) Option {
		old := n.log
		if log == nil {
			log = zap.NewNop()
		}
		n.log = log
		return WithLogger(old)
	}
}

// WithMailbox publishes every snapshot to p.
func WithMailbox(p Publisher) Option {
	return func(n *Node) Option {
		old := n.mbox
		n.mbox = p
		return WithMailbox(old)
	}
}

// WithEstimator sets the vitals estimator. By default,
// vitals.DefaultEstimator is used.
func WithEstimator(e vitals.Estimator) Option {
	return func(n *Node) Option {
		old := n.estimator
		n.estimator = e
		return WithEstimator(old)
	}
}

// WithWindowSize sets the number of samples per analysis window and discards
// the samples held so far. Sizes below 1 select DefaultWindowSize.
func WithWindowSize(size int) Option {
	return func(n *Node) Option {
		old := n.window.Cap()
		if size < 1 {
			size = DefaultWindowSize
		}
		n.window = NewWindow(size)
		return WithWindowSize(old)
	}
}

// WithTemperatureInterval sets how often the die temperature is read. Zero
// disables it.
func WithTemperatureInterval(d time.Duration) Option {
	return func(n *Node) Option {
		old := n.tempInterval
		n.tempInterval = d
		return WithTemperatureInterval(old)
	}
}

// OnSnapshot registers f to be called with every snapshot before it is
// reported.
func OnSnapshot(f func(vitals.Snapshot)) Option {
	return func(n *Node) Option {
		old := n.onSnapshot
		n.onSnapshot = f
		return OnSnapshot(old)
	}
}
