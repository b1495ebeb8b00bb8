// Package telemetry frames outbound reports for the serial link. Every frame
// is encrypted with AES in counter mode under a pre-shared key:
//
//	header | nonce (16 bytes) | length (2 bytes, big-endian) | ciphertext
//
// The nonce is 12 zero bytes followed by a 32-bit big-endian message counter
// that starts at 1 and lives as long as the Framer. The receiver derives the
// same counter on its side.
package telemetry

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
)

const (
	// NonceSize is the size of the nonce carried by every frame.
	NonceSize = aes.BlockSize
	// DefaultMaxPayload is the largest plaintext accepted by default.
	DefaultMaxPayload = 256

	lengthSize = 2
)

// DefaultHeader starts every frame unless WithHeader says otherwise.
var DefaultHeader = []byte{0xAA, 0x55}

var (
	// ErrPayloadTooLarge is returned for payloads above the maximum length.
	// They are never truncated.
	ErrPayloadTooLarge = errors.New("telemetry: payload too large")
	// ErrNonceExhausted is returned once every counter value has been used
	// under the current key.
	ErrNonceExhausted = errors.New("telemetry: nonce counter exhausted")
	// ErrKey is returned for keys that are not 16, 24 or 32 bytes long.
	ErrKey = errors.New("telemetry: invalid key")
)

// Framer encrypts and frames payloads. It is safe for concurrent use.
type Framer struct {
	block      cipher.Block
	header     []byte
	maxPayload int

	mu        sync.Mutex
	counter   uint32
	exhausted bool
}

// FramerOption configures a Framer.
type FramerOption func(f *Framer)

// WithHeader sets the bytes that start every frame.
func WithHeader(header []byte) FramerOption {
	return func(f *Framer) {
		f.header = append([]byte(nil), header...)
	}
}

// WithMaxPayload sets the largest plaintext accepted. It is capped at what
// the 16-bit length field can carry.
func WithMaxPayload(n int) FramerOption {
	return func(f *Framer) {
		if n > math.MaxUint16 {
			n = math.MaxUint16
		}
		f.maxPayload = n
	}
}

// NewFramer returns a Framer for key, which must be an AES-128, AES-192 or
// AES-256 key.
func NewFramer(key []byte, opts ...FramerOption) (*Framer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKey, err)
	}

	f := &Framer{
		block:      block,
		header:     DefaultHeader,
		maxPayload: DefaultMaxPayload,
		counter:    1,
	}
	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

// Counter returns the counter the next frame will carry.
func (f *Framer) Counter() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter
}

// Overhead returns the number of bytes a frame adds to its payload.
func (f *Framer) Overhead() int {
	return len(f.header) + NonceSize + lengthSize
}

// Frame encrypts a copy of payload and returns the complete frame. The
// counter moves forward only when a frame is returned.
func (f *Framer) Frame(payload []byte) ([]byte, error) {
	if len(payload) > f.maxPayload {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLarge, len(payload), f.maxPayload)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.exhausted {
		return nil, ErrNonceExhausted
	}

	frame := make([]byte, f.Overhead()+len(payload))
	off := copy(frame, f.header)
	nonce := frame[off : off+NonceSize]
	binary.BigEndian.PutUint32(nonce[NonceSize-4:], f.counter)
	off += NonceSize
	binary.BigEndian.PutUint16(frame[off:], uint16(len(payload)))
	off += lengthSize

	cipher.NewCTR(f.block, nonce).XORKeyStream(frame[off:], payload)

	if f.counter == math.MaxUint32 {
		f.exhausted = true
	} else {
		f.counter++
	}

	return frame, nil
}
