package coverage

import "fmt"

// CoverageInterval is a run of adjacent bins sharing one suppressed count.
// Start and End are 1-based and inclusive.
type CoverageInterval struct {
	Chrom    string
	BinWidth int
	Start    int
	End      int
	Count    int
	// RPK is reads per kilobase: Count / ((End-Start+1)/1000).
	RPK float64
}

// Len is the length of the interval in base pairs.
func (c CoverageInterval) Len() int { return c.End - c.Start + 1 }

func (c CoverageInterval) String() string {
	return fmt.Sprintf("%s:%d-%d\t%d", c.Chrom, c.Start, c.End, c.Count)
}

func newInterval(chrom string, width, startBin, endBin, count int) CoverageInterval {
	iv := CoverageInterval{
		Chrom:    chrom,
		BinWidth: width,
		Start:    startBin*width + 1,
		End:      endBin * width,
		Count:    count,
	}
	iv.RPK = RPK(count, iv.Len())
	return iv
}

// RPK is count per kilobase of length bp.
func RPK(count, length int) float64 {
	return float64(count) / (float64(length) / 1000)
}

// Encode merges runs of equal counts in the dense slice counts, whose first
// element is bin first, into intervals. A run ends only where the count
// changes. Runs with count 0 are gaps and are not emitted. The last open run
// ends at the end of the last bin.
func Encode(chrom string, width, first int, counts []int) []CoverageInterval {
	if len(counts) == 0 {
		return nil
	}
	var out []CoverageInterval
	cur, runStart := counts[0], first
	for i, c := range counts[1:] {
		bin := first + i + 1
		if c == cur {
			continue
		}
		if cur > 0 {
			out = append(out, newInterval(chrom, width, runStart, bin, cur))
		}
		cur, runStart = c, bin
	}
	if cur > 0 {
		out = append(out, newInterval(chrom, width, runStart, first+len(counts), cur))
	}
	return out
}
