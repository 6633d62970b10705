package coverage

// Accumulator counts reads per bin for one chromosome at one bin width.
//
// Counts are kept in a dense slice covering the bins seen so far;
// counts[i] holds bin first+i. Reads usually arrive sorted by position so the
// slice mostly grows at the end, but reads to the left of first are accepted
// and shift the slice.
type Accumulator struct {
	width    int
	first    int
	counts   []int
	reads    int
	spanning int
}

// NewAccumulator returns an empty accumulator for the given bin width.
// width must be positive; see Config.Validate.
func NewAccumulator(width int) *Accumulator {
	return &Accumulator{width: width}
}

// Width is the bin width in base pairs.
func (a *Accumulator) Width() int { return a.width }

// Add counts r once in every bin it touches and adds the number of those bins
// to the bin-spanning reads counter.
func (a *Accumulator) Add(r ReadInterval) {
	sb, eb := r.Start/a.width, r.Last()/a.width
	a.ensure(sb, eb)
	bins := a.counts[sb-a.first : eb-a.first+1]
	for i := range bins {
		bins[i]++
	}
	a.reads++
	a.spanning += eb - sb + 1
}

// ensure grows counts so that bins [sb, eb] are addressable.
func (a *Accumulator) ensure(sb, eb int) {
	if len(a.counts) == 0 {
		a.first = sb
		a.counts = make([]int, eb-sb+1, imax(eb-sb+1, 1024))
		return
	}
	if sb < a.first {
		grown := make([]int, a.first-sb+len(a.counts), a.first-sb+cap(a.counts))
		copy(grown[a.first-sb:], a.counts)
		a.counts, a.first = grown, sb
	}
	if last := a.first + len(a.counts) - 1; eb > last {
		a.counts = append(a.counts, make([]int, eb-last)...)
	}
}

// Count returns the number of reads touching bin. Bins never touched are 0.
func (a *Accumulator) Count(bin int) int {
	if bin < a.first || bin >= a.first+len(a.counts) {
		return 0
	}
	return a.counts[bin-a.first]
}

// Range returns the first and last bins that received any read. ok is false
// when nothing was added.
func (a *Accumulator) Range() (first, last int, ok bool) {
	if len(a.counts) == 0 {
		return 0, 0, false
	}
	return a.first, a.first + len(a.counts) - 1, true
}

// Dense returns the first bin and the counts for every bin from the first to
// the last touched bin, including zero-count bins in between. The returned
// slice is owned by the accumulator.
func (a *Accumulator) Dense() (first int, counts []int) {
	return a.first, a.counts
}

// Reads is the number of reads added.
func (a *Accumulator) Reads() int { return a.reads }

// BinSpanningReads is the sum over all added reads of the number of bins each
// read touched. This, not Reads, is the basis for normalization.
func (a *Accumulator) BinSpanningReads() int { return a.spanning }
