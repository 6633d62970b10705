package sink

import "github.com/bincov/bincov/coverage"

// Multi hands every call to each of its sinks in order and stops at the first
// error. Close closes all of them and returns the first error.
type Multi []coverage.Sink

// WriteIntervals implements coverage.Sink.
func (m Multi) WriteIntervals(chrom string, width int, ivs []coverage.CoverageInterval) error {
	for _, s := range m {
		if err := s.WriteIntervals(chrom, width, ivs); err != nil {
			return err
		}
	}
	return nil
}

// WriteSummary implements coverage.Sink.
func (m Multi) WriteSummary(sum coverage.Summary) error {
	for _, s := range m {
		if err := s.WriteSummary(sum); err != nil {
			return err
		}
	}
	return nil
}

// Close implements coverage.Sink.
func (m Multi) Close() error {
	var err error
	for _, s := range m {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
