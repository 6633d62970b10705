// Package coverage turns per-chromosome streams of aligned reads into
// run-length encoded, multi-resolution coverage intervals and a BPM scale
// factor per bin width.
//
// A read contributes 1 to every bin it touches; there is no weighting by the
// fraction of the bin it overlaps.
package coverage

import (
	"fmt"

	"github.com/pkg/errors"
)

// Alignment holds the fields of an alignment record that binning needs.
// Pos and MatePos are 0-based.
type Alignment struct {
	Pos            int
	Length         int
	MatePos        int
	TemplateLength int
	Paired         bool
}

// ReadInterval is the genomic footprint of one read (or read pair).
type ReadInterval struct {
	Chrom string
	// 0-based start
	Start int
	Span  int
}

// Last returns the 0-based position of the last base covered by the read.
func (r ReadInterval) Last() int {
	return r.Start + r.Span - 1
}

func (r ReadInterval) String() string {
	return fmt.Sprintf("%s:%d+%d", r.Chrom, r.Start, r.Span)
}

// Interval derives the ReadInterval for a. When paired is set and the record
// is paired, the interval spans the whole template starting at the leftmost
// mate; otherwise it is the read itself.
func (a Alignment) Interval(chrom string, paired bool) (ReadInterval, error) {
	r := ReadInterval{Chrom: chrom, Start: a.Pos, Span: a.Length}
	if paired && a.Paired {
		r.Start = imin(a.Pos, a.MatePos)
		r.Span = iabs(a.TemplateLength)
	}
	if r.Start < 0 || r.Span <= 0 {
		return r, errors.Wrapf(ErrMalformedAlignment, "start: %d, span: %d", r.Start, r.Span)
	}
	return r, nil
}

func imin(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func imax(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func iabs(a int) int {
	if a < 0 {
		return -a
	}
	return a
}
