package coverage

import (
	"context"
	"fmt"
	"strings"

	"github.com/grailbio/base/traverse"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	// reads between checks for cancellation inside a chromosome.
	cancelCheck = 4096
	// reads between progress messages.
	progressEvery = 100000
)

// ChromosomeResult is the outcome of the pass over one chromosome.
type ChromosomeResult struct {
	Chromosome
	Reads int
	// Skipped is the number of records the reader filtered out, when the
	// iterator reports it.
	Skipped int
	// Intervals is the number of intervals emitted per bin width.
	Intervals map[int]int
	// BinSpanningReads per bin width.
	BinSpanningReads map[int]int
	// Empty is set when the chromosome had no reads; nothing was emitted.
	Empty bool
	// Err is set when the pass failed or was cancelled; nothing was emitted.
	Err error

	index  int
	tracks []Track
}

// OK reports whether the chromosome was processed and emitted.
func (r ChromosomeResult) OK() bool { return r.Err == nil }

// Report describes a finished Run.
type Report struct {
	Chromosomes []ChromosomeResult
	Summary
}

// Failed returns the errors of the chromosomes whose pass failed, excluding
// those that were merely cancelled.
func (r *Report) Failed() []*ChromosomeError {
	var errs []*ChromosomeError
	for _, c := range r.Chromosomes {
		var ce *ChromosomeError
		if errors.As(c.Err, &ce) {
			errs = append(errs, ce)
		}
	}
	return errs
}

// Run bins every canonical chromosome of cat, read through rdr, and writes
// the intervals and the normalization summary to sink. Chromosomes are
// processed concurrently but reach the sink in catalog order.
//
// A chromosome whose pass fails emits nothing. Unless cfg.KeepGoing is set,
// the first failure cancels the chromosomes not yet finished and is returned;
// the summary is then not written. With KeepGoing, the summary covers the
// successful chromosomes and the failures are returned together.
func Run(ctx context.Context, cfg Config, cat Catalog, rdr Reader, sink Sink) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	names, err := cat.Chromosomes()
	if err != nil {
		return nil, errors.Wrap(err, "coverage: listing chromosomes")
	}
	chroms := Canonical(names)
	if err := checkUnique(chroms); err != nil {
		return nil, err
	}
	log := cfg.logger()
	log.Info().Ints("widths", cfg.BinWidths).Str("mode", cfg.Mode.String()).
		Int("min_reads", cfg.MinReads).Bool("paired", cfg.Paired).
		Int("chromosomes", len(chroms)).Msg("binning reads")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// pass never returns an error to traverse; failures travel in the result.
	results := make(chan ChromosomeResult)
	go func() {
		_ = traverse.Limit(cfg.processes()).Each(len(chroms), func(i int) error {
			results <- pass(ctx, cfg, rdr, i, chroms[i], log)
			return nil
		})
		close(results)
	}()

	report := &Report{Chromosomes: make([]ChromosomeResult, len(chroms))}
	var firstErr, sinkErr error
	pending := make(map[int]ChromosomeResult)
	next := 0
	for res := range results {
		pending[res.index] = res
		for r, ok := pending[next]; ok; r, ok = pending[next] {
			delete(pending, next)
			if r.Err != nil && !isCancel(r.Err) {
				log.Error().Err(r.Err).Str("chrom", r.Name).Msg("chromosome failed")
				if firstErr == nil && !cfg.KeepGoing {
					firstErr = r.Err
					cancel()
				}
			}
			if r.Err == nil && sinkErr == nil {
				if sinkErr = emit(sink, r); sinkErr != nil {
					cancel()
				}
			}
			r.tracks = nil
			report.Chromosomes[next] = r
			next++
		}
	}

	if sinkErr != nil {
		return report, sinkErr
	}
	if firstErr != nil {
		return report, firstErr
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	spanning := make([]map[int]int, 0, len(report.Chromosomes))
	for _, c := range report.Chromosomes {
		if c.Err != nil || c.Empty {
			continue
		}
		spanning = append(spanning, c.BinSpanningReads)
		report.TotalReads += c.Reads
	}
	report.Factors = Normalize(cfg.BinWidths, spanning)
	for _, f := range report.Factors {
		log.Info().Int("width", f.BinWidth).Int("bin_spanning_reads", f.BinSpanningReads).
			Float64("scale_factor", f.ScaleFactor).Msg("normalization")
	}
	if err := sink.WriteSummary(report.Summary); err != nil {
		return report, errors.Wrap(err, "coverage: writing summary")
	}
	return report, joinFailed(report.Failed())
}

// checkUnique rejects catalogs such as "1" and "chr1" in one header, which
// would emit two interval lists under the same name.
func checkUnique(chroms []Chromosome) error {
	seen := make(map[string]string, len(chroms))
	for _, c := range chroms {
		if prev, ok := seen[c.Name]; ok {
			return errors.Wrapf(ErrDuplicateChromosome, "%s and %s are both %s", prev, c.Source, c.Name)
		}
		seen[c.Name] = c.Source
	}
	return nil
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func emit(sink Sink, r ChromosomeResult) error {
	for _, t := range r.tracks {
		if len(t.Intervals) == 0 {
			continue
		}
		if err := sink.WriteIntervals(r.Name, t.BinWidth, t.Intervals); err != nil {
			return errors.Wrapf(err, "coverage: writing %s at width %d", r.Name, t.BinWidth)
		}
	}
	return nil
}

// pass makes the single sequential scan over chromosome c.
func pass(ctx context.Context, cfg Config, rdr Reader, index int, c Chromosome, log *zerolog.Logger) (res ChromosomeResult) {
	res = ChromosomeResult{Chromosome: c, index: index}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	it, err := rdr.Alignments(ctx, c.Source)
	if err != nil {
		res.Err = &ChromosomeError{Chrom: c.Name, Err: err}
		return res
	}
	defer func() {
		if cerr := it.Close(); cerr != nil && res.Err == nil {
			res = ChromosomeResult{Chromosome: c, index: index, Err: &ChromosomeError{Chrom: c.Name, Err: cerr}}
		}
	}()

	b := NewBinner(cfg.BinWidths)
	for n := 1; it.Next(); n++ {
		r, err := it.Alignment().Interval(c.Name, cfg.Paired)
		if err != nil {
			res.Err = &ChromosomeError{Chrom: c.Name, Err: errors.Wrapf(err, "record %d", n)}
			return res
		}
		b.Add(r)
		if n%cancelCheck == 0 {
			if err := ctx.Err(); err != nil {
				res.Err = err
				return res
			}
		}
		if n%progressEvery == 0 {
			log.Debug().Str("chrom", c.Name).Int("reads", n).Msg("processed reads")
		}
	}
	if err := it.Err(); err != nil {
		res.Err = &ChromosomeError{Chrom: c.Name, Err: err}
		return res
	}
	if sc, ok := it.(SkipCounter); ok {
		res.Skipped = sc.Skipped()
		log.Debug().Str("chrom", c.Name).Int("skipped", res.Skipped).Msg("filtered records")
	}

	res.Reads = b.Reads()
	if res.Reads == 0 {
		res.Empty = true
		log.Debug().Str("chrom", c.Name).Msg("no reads")
		return res
	}
	res.tracks = b.Finalize(c.Name, cfg.Suppressor())
	res.Intervals = make(map[int]int, len(res.tracks))
	res.BinSpanningReads = make(map[int]int, len(res.tracks))
	for _, t := range res.tracks {
		res.Intervals[t.BinWidth] = len(t.Intervals)
		res.BinSpanningReads[t.BinWidth] = t.BinSpanningReads
	}
	log.Info().Str("chrom", c.Name).Int("reads", res.Reads).Msg("chromosome done")
	return res
}

type failures []*ChromosomeError

func (f failures) Error() string {
	msgs := make([]string, len(f))
	for i, e := range f {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d chromosome(s) failed: %s", len(f), strings.Join(msgs, "; "))
}

func (f failures) Unwrap() []error {
	errs := make([]error, len(f))
	for i, e := range f {
		errs[i] = e
	}
	return errs
}

func joinFailed(errs []*ChromosomeError) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	return failures(errs)
}
