package alignment

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/biogo/store/interval"
	"github.com/brentp/xopen"
	"github.com/pkg/errors"
)

// Integer-specific intervals
type irange struct {
	Start, End int
	UID        uintptr
}

func (i irange) Overlap(b interval.IntRange) bool {
	// Half-open interval indexing.
	return i.End > b.Start && i.Start < b.End
}
func (i irange) ID() uintptr              { return i.UID }
func (i irange) Range() interval.IntRange { return interval.IntRange{Start: i.Start, End: i.End} }

// Exclusions holds a tree of regions to skip per chromosome.
type Exclusions map[string]*interval.IntTree

// Overlaps checks for overlaps without pulling intervals from the tree.
func Overlaps(tree *interval.IntTree, start, end int) bool {
	if tree == nil {
		return false
	}

	q := irange{Start: start, End: end, UID: uintptr(tree.Len())}

	overlaps := false
	tree.DoMatching(func(iv interval.IntInterface) bool {
		overlaps = true
		return true
	}, q)
	return overlaps
}

// Tree returns the regions for chrom, trying the name with and without a
// "chr" prefix so a BED from either naming convention applies.
func (e Exclusions) Tree(chrom string) *interval.IntTree {
	if e == nil {
		return nil
	}
	if t, ok := e[chrom]; ok {
		return t
	}
	if strings.HasPrefix(chrom, "chr") {
		return e[strings.TrimPrefix(chrom, "chr")]
	}
	return e["chr"+chrom]
}

// Len returns the number of regions over all chromosomes.
func (e Exclusions) Len() int {
	n := 0
	for _, t := range e {
		n += t.Len()
	}
	return n
}

// ReadExclusions reads a (possibly gzipped) bed file into a map of trees.
// Header lines (#, track, browser) are skipped.
func ReadExclusions(p string) (Exclusions, error) {
	if p == "" {
		return nil, nil
	}
	r, err := xopen.Ropen(p)
	if err != nil {
		return nil, errors.Wrapf(err, "alignment: opening %s", p)
	}
	defer r.Close()
	return readExclusions(r, p)
}

func readExclusions(rdr io.Reader, p string) (Exclusions, error) {
	tree := make(Exclusions, 10)
	br := bufio.NewReader(rdr)
	k := 0
	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, errors.Wrapf(err, "alignment: reading %s", p)
		}
		if line = strings.TrimRight(line, "\r\n"); line != "" && !isHeader(line) {
			chrom, start, end, perr := chromStartEnd(line)
			if perr != nil {
				return nil, errors.Wrapf(perr, "alignment: %s line %d", p, lineNo)
			}
			if _, ok := tree[chrom]; !ok {
				tree[chrom] = &interval.IntTree{}
			}
			if ierr := tree[chrom].Insert(irange{start, end, uintptr(k)}, false); ierr != nil {
				return nil, errors.Wrapf(ierr, "alignment: %s line %d", p, lineNo)
			}
			k++
		}
		if err == io.EOF {
			break
		}
	}
	return tree, nil
}

func isHeader(line string) bool {
	return line[0] == '#' || strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser")
}

func chromStartEnd(line string) (string, int, int, error) {
	toks := strings.SplitN(line, "\t", 4)
	if len(toks) < 3 {
		return "", 0, 0, errors.Errorf("expected at least 3 columns, got %d", len(toks))
	}
	start, err := strconv.Atoi(toks[1])
	if err != nil {
		return "", 0, 0, errors.Wrap(err, "bad start")
	}
	end, err := strconv.Atoi(toks[2])
	if err != nil {
		return "", 0, 0, errors.Wrap(err, "bad end")
	}
	if start < 0 || end <= start {
		return "", 0, 0, errors.Errorf("bad region %d-%d", start, end)
	}
	return toks[0], start, end, nil
}
