package coverage

import (
	"context"
	"strings"
)

// Iterator yields the alignments of a single chromosome in file order.
// It is consumed once and cannot be restarted.
type Iterator interface {
	Next() bool
	Alignment() Alignment
	// Err returns the error that stopped Next, if any.
	Err() error
	Close() error
}

// SkipCounter is implemented by iterators that filter records; Skipped is
// read once the iterator is exhausted.
type SkipCounter interface {
	Skipped() int
}

// Reader provides the alignments of a chromosome, given by the name the
// Catalog reported for it. Alignments is called exactly once per chromosome
// and may be called concurrently for different chromosomes.
type Reader interface {
	Alignments(ctx context.Context, chrom string) (Iterator, error)
}

// Catalog lists the chromosome names to process, in output order.
type Catalog interface {
	Chromosomes() ([]string, error)
}

// StaticCatalog is a Catalog over a fixed list of names.
type StaticCatalog []string

// Chromosomes implements Catalog.
func (s StaticCatalog) Chromosomes() ([]string, error) { return []string(s), nil }

// Summary is handed to the sink once all chromosomes have been processed.
type Summary struct {
	Factors []NormalizationFactor
	// TotalReads is the number of reads binned over all successful
	// chromosomes.
	TotalReads int
}

// Sink persists the results of a run. WriteIntervals is called from a single
// goroutine, in catalog order, once per chromosome and bin width with the
// complete interval list for that pair; WriteSummary is called once at the
// end of a run.
type Sink interface {
	WriteIntervals(chrom string, width int, ivs []CoverageInterval) error
	WriteSummary(s Summary) error
	Close() error
}

// Chromosome pairs the name used to query a Reader with the name used as the
// key of emitted intervals.
type Chromosome struct {
	Source string
	Name   string
}

// Canonical drops names containing an underscore (unplaced, random and alt
// contigs) and adds a "chr" prefix to those lacking it.
func Canonical(names []string) []Chromosome {
	chroms := make([]Chromosome, 0, len(names))
	for _, n := range names {
		if strings.Contains(n, "_") {
			continue
		}
		c := Chromosome{Source: n, Name: n}
		if !strings.HasPrefix(n, "chr") {
			c.Name = "chr" + n
		}
		chroms = append(chroms, c)
	}
	return chroms
}
