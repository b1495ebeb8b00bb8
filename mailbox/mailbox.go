// Package mailbox hands the latest vitals from the acquisition side to the
// companion side through one fixed-layout record in shared memory.
//
// The record is ten native-endian 32-bit words:
//
//	magic | seq | temperatureC | spo2Pct | heartRateBpm | fatigueScore | reserved x4
//
// A single writer fills the payload words and then stores a new seq. A single
// reader treats a changed seq as the commit of a new record. Every word is
// accessed with sync/atomic so payload stores are ordered before the seq store
// and the reader's seq load is ordered before its payload loads.
//
// The last reserved word is a generation counter: odd while the writer is
// updating the payload, even otherwise. The seq word is only ever written
// once per record, so readers that only compare seq keep working.
package mailbox

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

// Magic marks an initialized record.
const Magic uint32 = 0xBA5ECAFE

// Word offsets inside a region.
const (
	wordMagic = iota
	wordSeq
	wordTemperature
	wordSpO2
	wordHeartRate
	wordFatigue
	wordReserved

	// Words is the number of 32-bit words in a record.
	Words = wordReserved + reservedWords
	// Size is the size of a record in bytes.
	Size = Words * 4
)

const reservedWords = 4

// wordGen holds the generation counter.
const wordGen = Words - 1

// ErrRegion is returned for regions too small to hold a record.
var ErrRegion = errors.New("mailbox: invalid region")

// Payload is the data carried by a record.
type Payload struct {
	TemperatureC float32
	SpO2Pct      float32
	HeartRateBpm float32
	FatigueScore float32
	// Reserved carries the reserved words not used by the generation
	// counter.
	Reserved [reservedWords - 1]uint32
}

// Record is a consumed copy of the shared record.
type Record struct {
	Magic uint32
	Seq   uint32
	Payload
}

// Region is the shared memory holding one record.
type Region []uint32

// NewRegion returns a zeroed region in process memory.
func NewRegion() Region {
	return make(Region, Words)
}

func (r Region) check() error {
	if len(r) < Words {
		return fmt.Errorf("%w: %d words, need %d", ErrRegion, len(r), Words)
	}
	return nil
}

func (r Region) load(i int) uint32     { return atomic.LoadUint32(&r[i]) }
func (r Region) store(i int, v uint32) { atomic.StoreUint32(&r[i], v) }

func (r Region) loadFloat(i int) float32     { return math.Float32frombits(r.load(i)) }
func (r Region) storeFloat(i int, v float32) { r.store(i, math.Float32bits(v)) }
