package coverage

import (
	"fmt"

	"github.com/exascience/pargo/parallel"
)

// NormalizationFactor converts counts at one bin width into bins per million.
type NormalizationFactor struct {
	BinWidth int
	// BinSpanningReads is the total over all chromosomes of the number of
	// bins touched by each read. It exceeds the library size whenever reads
	// span more than one bin.
	BinSpanningReads int
	ScaleFactor      float64
}

// BPM returns the bins-per-million value of count.
func (f NormalizationFactor) BPM(count int) float64 {
	return float64(count) * f.ScaleFactor
}

func (f NormalizationFactor) String() string {
	return fmt.Sprintf("%d\t%d\t%g", f.BinWidth, f.BinSpanningReads, f.ScaleFactor)
}

// ScaleFactor is 1e6/total, or 0 when no read was binned.
func ScaleFactor(total int) float64 {
	if total <= 0 {
		return 0
	}
	return 1000000 / float64(total)
}

// Normalize sums the bin-spanning reads of each width over the per-chromosome
// totals in spanning (one map from width to total per chromosome) and returns
// one factor per width, in the order of widths.
func Normalize(widths []int, spanning []map[int]int) []NormalizationFactor {
	factors := make([]NormalizationFactor, len(widths))
	for i, w := range widths {
		w := w
		total := 0
		if len(spanning) > 0 {
			total = parallel.RangeReduceInt(0, len(spanning), 0, func(low, high int) int {
				var s int
				for _, m := range spanning[low:high] {
					s += m[w]
				}
				return s
			}, func(x, y int) int { return x + y })
		}
		factors[i] = NormalizationFactor{BinWidth: w, BinSpanningReads: total, ScaleFactor: ScaleFactor(total)}
	}
	return factors
}
