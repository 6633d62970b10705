// Package covstats summarizes the interval tracks written by bincov bin.
package covstats

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/JaderDias/movingmedian"
	arg "github.com/alexflint/go-arg"
	"github.com/bincov/bincov/coverage"
	"github.com/brentp/xopen"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"go4.org/sort"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type cliargs struct {
	Window int      `arg:"-w" help:"number of consecutive intervals in the moving median used for peak_median"`
	Beds   []string `arg:"positional,required" help:"interval tracks ($prefix.w$width.bed.gz) to summarize"`
}

func (c cliargs) Version() string {
	return fmt.Sprintf("covstats %s", coverage.Version)
}

// Header is the header line matching Stats.String.
const Header = "intervals\tchromosomes\tcovered_bases\tmean_count\tweighted_mean_count\tweighted_sd_count\tmedian_count\tmax_count\tmean_rpk\tpeak_median\tpath"

// Stats hold info about an interval track returned from `Summarize`
type Stats struct {
	Path         string
	Intervals    int
	Chromosomes  int
	CoveredBases int
	// MeanCount is the mean over intervals.
	MeanCount float64
	// WeightedMean and WeightedSD weight each interval by its length, so
	// they describe the count per covered base.
	WeightedMean float64
	WeightedSD   float64
	// MedianCount is the length-weighted median.
	MedianCount float64
	MaxCount    int
	MeanRPK     float64
	// PeakMedian is the highest moving median of counts over Window
	// consecutive intervals of one chromosome.
	PeakMedian float64
}

func (s Stats) String() string {
	return fmt.Sprintf("%d\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.1f\t%d\t%.2f\t%.1f\t%s", s.Intervals, s.Chromosomes, s.CoveredBases,
		s.MeanCount, s.WeightedMean, s.WeightedSD, s.MedianCount, s.MaxCount, s.MeanRPK, s.PeakMedian, s.Path)
}

type record struct {
	chrom      string
	count, len float64
	rpk        float64
}

func parseLine(line string) (record, error) {
	toks := strings.SplitN(line, "\t", 6)
	if len(toks) < 5 {
		return record{}, errors.Errorf("expected 5 columns, got %d", len(toks))
	}
	var vals [4]float64
	for i, t := range toks[1:5] {
		v, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return record{}, errors.Wrapf(err, "column %d", i+2)
		}
		vals[i] = v
	}
	return record{chrom: toks[0], len: vals[1] - vals[0], count: vals[2], rpk: vals[3]}, nil
}

// Summarize reads a track with columns chrom, start, end, count, rpk.
func Summarize(r io.Reader, window int) (Stats, error) {
	var s Stats
	var counts, lens, rpks []float64
	var chromCounts [][]float64
	br := bufio.NewReader(r)
	chrom := ""
	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return s, errors.Wrap(err, "covstats")
		}
		if line = strings.TrimRight(line, "\r\n"); line != "" && line[0] != '#' {
			rec, perr := parseLine(line)
			if perr != nil {
				return s, errors.Wrapf(perr, "covstats: line %d", lineNo)
			}
			if rec.chrom != chrom || len(chromCounts) == 0 {
				chrom = rec.chrom
				chromCounts = append(chromCounts, nil)
			}
			last := len(chromCounts) - 1
			chromCounts[last] = append(chromCounts[last], rec.count)
			counts = append(counts, rec.count)
			lens = append(lens, rec.len)
			rpks = append(rpks, rec.rpk)
		}
		if err == io.EOF {
			break
		}
	}
	s.Intervals = len(counts)
	if s.Intervals == 0 {
		return s, nil
	}
	s.Chromosomes = len(chromCounts)
	s.CoveredBases = int(floats.Sum(lens))
	s.MeanCount = stat.Mean(counts, nil)
	s.WeightedMean, s.WeightedSD = stat.MeanStdDev(counts, lens)
	s.MaxCount = int(floats.Max(counts))
	s.MeanRPK = stat.Mean(rpks, nil)
	s.MedianCount = weightedMedian(counts, lens)
	s.PeakMedian = peakMedian(chromCounts, window)
	return s, nil
}

func weightedMedian(vals, weights []float64) float64 {
	inds := make([]int, len(vals))
	for i := range inds {
		inds[i] = i
	}
	sort.Slice(inds, func(i, j int) bool { return vals[inds[i]] < vals[inds[j]] })
	x := make([]float64, len(vals))
	w := make([]float64, len(vals))
	for i, k := range inds {
		x[i], w[i] = vals[k], weights[k]
	}
	return stat.Quantile(0.5, stat.Empirical, x, w)
}

// chromosomes with fewer than window intervals are skipped.
func peakMedian(chromCounts [][]float64, window int) float64 {
	if window < 1 {
		return 0
	}
	peak := 0.0
	for _, counts := range chromCounts {
		if len(counts) < window {
			continue
		}
		mm := movingmedian.NewMovingMedian(window)
		for i, c := range counts {
			mm.Push(c)
			if i+1 >= window && mm.Median() > peak {
				peak = mm.Median()
			}
		}
	}
	return peak
}

// FromFile summarizes the (possibly bgzipped) track at path.
func FromFile(path string, window int) (Stats, error) {
	fh, err := xopen.Ropen(path)
	if err != nil {
		return Stats{}, errors.Wrapf(err, "covstats: opening %s", path)
	}
	defer fh.Close()
	s, err := Summarize(fh, window)
	s.Path = path
	return s, errors.Wrap(err, path)
}

// Main is called from the dispatcher
func Main() {
	cli := cliargs{Window: 5}
	arg.MustParse(&cli)
	fmt.Fprintln(os.Stdout, Header)
	exitCode := 0
	for _, p := range cli.Beds {
		s, err := FromFile(p, cli.Window)
		if err != nil {
			c := color.New(color.FgRed).Add(color.Bold)
			fmt.Fprintf(os.Stderr, "%s\n", c.SprintFunc()(fmt.Sprintf("ERROR: %s", err)))
			exitCode = 1
			continue
		}
		fmt.Fprintln(os.Stdout, s)
	}
	os.Exit(exitCode)
}
