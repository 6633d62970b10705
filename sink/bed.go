// Package sink holds the coverage.Sink implementations: bgzipped BED files,
// a per-sample SQLite database and a fan-out over several sinks.
package sink

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/biogo/hts/bgzf"
	"github.com/bincov/bincov/coverage"
	"github.com/brentp/xopen"
	"github.com/pkg/errors"
)

// NormHeader is the header line of the normalization table.
const NormHeader = "#width\tbin_spanning_reads\tbpm_scale_factor\ttotal_reads"

type bedFile struct {
	path string
	f    *os.File
	bg   *bgzf.Writer
	w    *bufio.Writer
}

func (b *bedFile) close() error {
	err := b.w.Flush()
	if cerr := b.bg.Close(); err == nil {
		err = cerr
	}
	if cerr := b.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// BED writes one bgzipped BED per bin width, {prefix}.w{width}.bed.gz, with
// columns chrom, start (0-based), end, count, rpk, and the normalization
// table to {prefix}.norm.tsv.
type BED struct {
	Prefix string
	files  map[int]*bedFile
	closed bool
}

// BEDPath returns the path of the track for width.
func BEDPath(prefix string, width int) string {
	return fmt.Sprintf("%s.w%d.bed.gz", prefix, width)
}

// NormPath returns the path of the normalization table.
func NormPath(prefix string) string {
	return prefix + ".norm.tsv"
}

// NewBED creates the track files for widths.
func NewBED(prefix string, widths []int) (*BED, error) {
	b := &BED{Prefix: prefix, files: make(map[int]*bedFile, len(widths))}
	for _, w := range widths {
		path := BEDPath(prefix, w)
		f, err := os.Create(path)
		if err != nil {
			b.Close()
			return nil, errors.Wrapf(err, "sink: creating %s", path)
		}
		bg := bgzf.NewWriter(f, 1)
		b.files[w] = &bedFile{path: path, f: f, bg: bg, w: bufio.NewWriter(bg)}
	}
	return b, nil
}

// WriteIntervals implements coverage.Sink.
func (b *BED) WriteIntervals(chrom string, width int, ivs []coverage.CoverageInterval) error {
	bf, ok := b.files[width]
	if !ok {
		return errors.Errorf("sink: no track for width %d", width)
	}
	buf := make([]byte, 0, 64)
	for _, iv := range ivs {
		buf = append(buf[:0], chrom...)
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, int64(iv.Start-1), 10)
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, int64(iv.End), 10)
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, int64(iv.Count), 10)
		buf = append(buf, '\t')
		buf = strconv.AppendFloat(buf, iv.RPK, 'f', 3, 64)
		buf = append(buf, '\n')
		if _, err := bf.w.Write(buf); err != nil {
			return errors.Wrapf(err, "sink: writing %s", bf.path)
		}
	}
	return nil
}

// WriteSummary implements coverage.Sink.
func (b *BED) WriteSummary(s coverage.Summary) error {
	path := NormPath(b.Prefix)
	fh, err := xopen.Wopen(path)
	if err != nil {
		return errors.Wrapf(err, "sink: creating %s", path)
	}
	fmt.Fprintln(fh, NormHeader)
	for _, f := range s.Factors {
		fmt.Fprintf(fh, "%d\t%d\t%g\t%d\n", f.BinWidth, f.BinSpanningReads, f.ScaleFactor, s.TotalReads)
	}
	fh.Flush()
	if cerr := fh.Close(); err == nil {
		err = cerr
	}
	return errors.Wrapf(err, "sink: writing %s", path)
}

// Close flushes and closes the track files.
func (b *BED) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	var err error
	for _, bf := range b.files {
		if cerr := bf.close(); err == nil && cerr != nil {
			err = errors.Wrapf(cerr, "sink: closing %s", bf.path)
		}
	}
	return err
}
