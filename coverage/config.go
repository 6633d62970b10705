package coverage

import (
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DefaultBinWidths are the resolutions built when none are given.
var DefaultBinWidths = []int{50, 100, 1000, 10000}

// Config controls a Run.
type Config struct {
	// BinWidths in base pairs, in output order.
	BinWidths []int
	Mode      Mode
	MinReads  int
	// Paired derives read intervals from the template (leftmost mate start,
	// |TLEN|) rather than from the read.
	Paired bool
	// Processes is the number of chromosomes processed concurrently;
	// 0 means runtime.NumCPU().
	Processes int
	// KeepGoing continues with the remaining chromosomes after one fails.
	KeepGoing bool
	// Logger defaults to a disabled logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns the default settings: all four widths, Default mode
// and DefaultMinReads.
func DefaultConfig() Config {
	return Config{
		BinWidths: append([]int(nil), DefaultBinWidths...),
		Mode:      Default,
		MinReads:  DefaultMinReads,
	}
}

// Validate checks the configuration before any read is processed.
func (c Config) Validate() error {
	if len(c.BinWidths) == 0 {
		return errors.Wrap(ErrInvalidBinWidth, "no bin widths given")
	}
	seen := make(map[int]bool, len(c.BinWidths))
	for _, w := range c.BinWidths {
		if w <= 0 {
			return errors.Wrapf(ErrInvalidBinWidth, "%d", w)
		}
		if seen[w] {
			return errors.Wrapf(ErrInvalidBinWidth, "%d given more than once", w)
		}
		seen[w] = true
	}
	if c.Processes < 0 {
		return errors.Errorf("coverage: invalid number of processes: %d", c.Processes)
	}
	return nil
}

// Suppressor returns the noise suppressor described by c.
func (c Config) Suppressor() Suppressor {
	return Suppressor{Mode: c.Mode, MinReads: c.MinReads}
}

func (c Config) processes() int {
	if c.Processes == 0 {
		return runtime.NumCPU()
	}
	return c.Processes
}

func (c Config) logger() *zerolog.Logger {
	if c.Logger == nil {
		l := zerolog.Nop()
		return &l
	}
	return c.Logger
}

// ParseBinWidths parses a comma-separated list of widths such as
// "50,100,1000". The result is not validated.
func ParseBinWidths(s string) ([]int, error) {
	var widths []int
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		w, err := strconv.Atoi(tok)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidBinWidth, "%q", tok)
		}
		widths = append(widths, w)
	}
	return widths, nil
}
