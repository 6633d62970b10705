package coverage

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidBinWidth is returned by Config.Validate for non-positive,
	// duplicated or missing bin widths.
	ErrInvalidBinWidth = errors.New("coverage: invalid bin width")

	// ErrUnknownMode is returned by ParseMode.
	ErrUnknownMode = errors.New("coverage: unknown suppression mode")

	// ErrMalformedAlignment marks a record from which no ReadInterval could
	// be derived.
	ErrMalformedAlignment = errors.New("coverage: malformed alignment")

	// ErrDuplicateChromosome is returned by Run when two catalog names share
	// a canonical name.
	ErrDuplicateChromosome = errors.New("coverage: duplicate chromosome")
)

// ChromosomeError reports the failure of the pass over a single chromosome.
// Nothing was emitted for Chrom.
type ChromosomeError struct {
	Chrom string
	Err   error
}

func (e *ChromosomeError) Error() string {
	return fmt.Sprintf("coverage: chromosome %s: %v", e.Chrom, e.Err)
}

func (e *ChromosomeError) Unwrap() error { return e.Err }
