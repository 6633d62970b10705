package coverage

// Track is the finalized coverage of one chromosome at one bin width.
type Track struct {
	BinWidth         int
	Intervals        []CoverageInterval
	BinSpanningReads int
}

// Binner routes every read of a chromosome to one Accumulator per bin width
// so that the read stream is consumed only once for all resolutions.
type Binner struct {
	accs  []*Accumulator
	reads int
}

// NewBinner returns a Binner for the given widths, which must already be
// validated.
func NewBinner(widths []int) *Binner {
	b := &Binner{accs: make([]*Accumulator, len(widths))}
	for i, w := range widths {
		b.accs[i] = NewAccumulator(w)
	}
	return b
}

// Add routes r to every accumulator.
func (b *Binner) Add(r ReadInterval) {
	for _, a := range b.accs {
		a.Add(r)
	}
	b.reads++
}

// Reads is the number of reads added.
func (b *Binner) Reads() int { return b.reads }

// Finalize suppresses and encodes every width independently. It returns nil
// when no read was added.
func (b *Binner) Finalize(chrom string, s Suppressor) []Track {
	if b.reads == 0 {
		return nil
	}
	tracks := make([]Track, len(b.accs))
	for i, a := range b.accs {
		first, counts := a.Dense()
		tracks[i] = Track{
			BinWidth:         a.Width(),
			Intervals:        Encode(chrom, a.Width(), first, s.Apply(counts)),
			BinSpanningReads: a.BinSpanningReads(),
		}
	}
	return tracks
}
