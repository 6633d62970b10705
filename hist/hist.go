// Package hist makes a histogram of one column of interval tracks, one group
// of bars per file.
package hist

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	arg "github.com/alexflint/go-arg"
	"github.com/bincov/bincov/coverage"
	"github.com/brentp/xopen"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

type dargs struct {
	Col   int      `arg:"-c" help:"1-based column number to use for histogram. default is the count"`
	Bins  int      `arg:"-b" help:"optional number of bins."`
	Log   bool     `arg:"-l" help:"use log10(1 + value)"`
	Path  string   `arg:"-p" help:"optional path to save plot."`
	Files []string `arg:"positional,required" help:"interval tracks or other tab-delimited files. use - for stdin"`
}

func (d dargs) Version() string {
	return fmt.Sprintf("hist %s", coverage.Version)
}

// Main is run from the dispatcher
func Main() {
	args := dargs{Col: 4, Bins: 20, Path: "hist.png"}
	p := arg.MustParse(&args)
	if args.Col < 1 || args.Bins < 1 {
		p.Fail("col and bins must be >= 1")
	}
	if err := run(args); err != nil {
		c := color.New(color.FgRed).Add(color.Bold)
		fmt.Fprintf(os.Stderr, "%s\n", c.SprintFunc()(fmt.Sprintf("ERROR: %s", err)))
		os.Exit(1)
	}
}

// read returns the values of the 0-based column col, skipping lines
// starting with '#'.
func read(r io.Reader, col int, logged bool) ([]float64, error) {
	br := bufio.NewReader(r)
	var vals []float64
	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		if line = strings.TrimRight(line, "\r\n"); line != "" && line[0] != '#' {
			toks := strings.Split(line, "\t")
			if col >= len(toks) {
				return nil, errors.Errorf("line %d has %d columns", lineNo, len(toks))
			}
			v, perr := strconv.ParseFloat(toks[col], 64)
			if perr != nil {
				return nil, errors.Wrapf(perr, "line %d", lineNo)
			}
			if logged {
				v = math.Log10(1 + v)
			}
			vals = append(vals, v)
		}
		if err == io.EOF {
			break
		}
	}
	return vals, nil
}

func readAll(args dargs) (map[string][]float64, error) {
	grouped := make(map[string][]float64, len(args.Files))
	for _, f := range args.Files {
		fh, err := xopen.Ropen(f)
		if err != nil {
			return nil, errors.Wrapf(err, "hist: opening %s", f)
		}
		vals, err := read(fh, args.Col-1, args.Log)
		fh.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "hist: %s", f)
		}
		k := filepath.Base(f)
		grouped[k] = append(grouped[k], vals...)
	}
	return grouped, nil
}

func mapkeys(m map[string][]float64) []string {
	var ks []string
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

func run(args dargs) error {
	grouped, err := readAll(args)
	if err != nil {
		return err
	}
	keys := mapkeys(grouped)

	p := plot.New()
	p.Y.Label.Text = "Count"
	p.X.Label.Text = fmt.Sprintf("column %d", args.Col)
	if args.Log {
		p.X.Label.Text = fmt.Sprintf("log10(1 + column %d)", args.Col)
	}

	w := 30 / float64(len(grouped)) * float64(20) / float64(args.Bins)
	var bars []plot.Plotter

	for i, k := range keys {
		if len(grouped[k]) == 0 {
			continue
		}
		tmp, err := plotter.NewHist(plotter.Values(grouped[k]), args.Bins)
		if err != nil {
			return errors.Wrapf(err, "hist: %s", k)
		}
		vals := make([]float64, len(tmp.Bins))
		for i, b := range tmp.Bins {
			vals[i] = b.Weight
		}

		bar, err := plotter.NewBarChart(plotter.Values(vals), vg.Points(w+0.01))
		if err != nil {
			return errors.Wrapf(err, "hist: %s", k)
		}

		bar.LineStyle.Width = vg.Length(0.1)
		bar.Color = plotutil.Color(i)

		bar.Offset = vg.Points(float64(i) * w)
		p.Legend.Add(k, bar)
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return errors.New("hist: no values read")
	}
	p.Add(bars...)

	p.Legend.Top = true
	return errors.Wrap(p.Save(10*vg.Inch, 3*vg.Inch, args.Path), "hist: saving plot")
}
