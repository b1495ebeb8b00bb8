package mailbox

// Reader consumes records from a region. Only one Reader may use a region at
// a time.
type Reader struct {
	region Region
	last   uint32
	torn   uint64
}

// NewReader returns a Reader for r that has not seen any record yet.
func NewReader(r Region) (*Reader, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return &Reader{region: r}, nil
}

// TryConsume returns the record if one was committed since the last
// successful call. It reports false when the magic does not match, when no
// new seq was committed, when the writer is in the middle of an update, or
// when the writer changed the record during the copy. In the last case the
// writer's next doorbell ring brings it back.
func (r *Reader) TryConsume() (Record, bool) {
	reg := r.region
	if reg.load(wordMagic) != Magic {
		return Record{}, false
	}
	gen := reg.load(wordGen)
	if gen%2 != 0 {
		return Record{}, false
	}
	seq := reg.load(wordSeq)
	if seq == 0 || seq == r.last {
		return Record{}, false
	}

	rec := Record{Magic: Magic, Seq: seq}
	rec.TemperatureC = reg.loadFloat(wordTemperature)
	rec.SpO2Pct = reg.loadFloat(wordSpO2)
	rec.HeartRateBpm = reg.loadFloat(wordHeartRate)
	rec.FatigueScore = reg.loadFloat(wordFatigue)
	for i := range rec.Reserved {
		rec.Reserved[i] = reg.load(wordReserved + i)
	}

	if reg.load(wordSeq) != seq || reg.load(wordGen) != gen {
		r.torn++
		return Record{}, false
	}

	r.last = seq
	return rec, true
}

// LastSeq returns the seq of the last consumed record.
func (r *Reader) LastSeq() uint32 {
	return r.last
}

// Torn returns how many copies were discarded because the writer changed the
// record while it was read.
func (r *Reader) Torn() uint64 {
	return r.torn
}
