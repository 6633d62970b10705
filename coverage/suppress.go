package coverage

import (
	"strings"

	"github.com/pkg/errors"
)

// Mode selects the per-bin transform applied before thresholding.
type Mode int

const (
	// Default leaves counts unchanged.
	Default Mode = iota
	// Round2 rounds counts up to the next even number, ceil(c/2)*2, which
	// merges neighbouring bins that differ by a single read.
	Round2
)

var modeNames = [...]string{Default: "default", Round2: "round2"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return "unknown"
	}
	return modeNames[m]
}

// ParseMode returns the Mode with the given name.
func ParseMode(name string) (Mode, error) {
	for m, n := range modeNames {
		if strings.EqualFold(name, n) {
			return Mode(m), nil
		}
	}
	return Default, errors.Wrapf(ErrUnknownMode, "%q (expected one of: %s)", name, strings.Join(modeNames[:], ", "))
}

// Transform applies the mode to a single bin count.
func (m Mode) Transform(c int) int {
	switch m {
	case Round2:
		return (c + 1) / 2 * 2
	default:
		return c
	}
}

// DefaultMinReads is the default noise threshold.
const DefaultMinReads = 4

// Suppressor removes background noise from bin counts: each count is
// transformed by Mode and kept only if the result exceeds MinReads.
type Suppressor struct {
	Mode     Mode
	MinReads int
}

// Apply returns the suppressed value of every bin in the dense slice counts.
// counts is not modified.
func (s Suppressor) Apply(counts []int) []int {
	out := make([]int, len(counts))
	for i, c := range counts {
		if c = s.Mode.Transform(c); c > s.MinReads {
			out[i] = c
		}
	}
	return out
}
