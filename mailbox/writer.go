package mailbox

// Writer publishes records into a region. Only one Writer may use a region at
// a time.
type Writer struct {
	region Region
	bell   *Bell
	seq    uint32
	gen    uint32
}

// NewWriter returns a Writer for r. An initialized region keeps its seq so
// records published after a restart stay newer than the ones before it. bell
// may be nil.
func NewWriter(r Region, bell *Bell) (*Writer, error) {
	if err := r.check(); err != nil {
		return nil, err
	}

	w := &Writer{region: r, bell: bell}
	if r.load(wordMagic) == Magic {
		w.seq = r.load(wordSeq)
		w.gen = r.load(wordGen)
		if w.gen%2 != 0 {
			// A previous writer stopped halfway through a record.
			w.gen++
			r.store(wordGen, w.gen)
		}
		return w, nil
	}

	for i := wordSeq; i < Words; i++ {
		r.store(i, 0)
	}
	r.store(wordMagic, Magic)
	return w, nil
}

// Seq returns the seq of the last published record.
func (w *Writer) Seq() uint32 {
	return w.seq
}

// Publish writes p and commits it under the next seq, then rings the
// doorbell. It returns the committed seq. Seq 0 is never committed.
func (w *Writer) Publish(p Payload) uint32 {
	w.seq++
	if w.seq == 0 {
		w.seq++
	}

	r := w.region
	w.gen++
	r.store(wordGen, w.gen)
	r.storeFloat(wordTemperature, p.TemperatureC)
	r.storeFloat(wordSpO2, p.SpO2Pct)
	r.storeFloat(wordHeartRate, p.HeartRateBpm)
	r.storeFloat(wordFatigue, p.FatigueScore)
	for i, v := range p.Reserved {
		r.store(wordReserved+i, v)
	}
	r.store(wordSeq, w.seq)
	w.gen++
	r.store(wordGen, w.gen)

	if w.bell != nil {
		w.bell.Ring()
	}
	return w.seq
}
