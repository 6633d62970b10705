package alignment

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/bincov/bincov/coverage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRead struct {
	ref, mref int
	pos, mpos int
	tlen      int
	mapq      byte
	flags     sam.Flags
}

// writeBAM writes a sorted, indexed BAM with references chr1, chr2,
// chr3_random and chr4 to dir and returns its path.
func writeBAM(t *testing.T, dir string, reads []testRead) string {
	t.Helper()
	var refs []*sam.Reference
	for _, n := range []string{"chr1", "chr2", "chr3_random", "chr4"} {
		ref, err := sam.NewReference(n, "", "", 100000, nil, nil)
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	h, err := sam.NewHeader(nil, refs)
	require.NoError(t, err)
	h.SortOrder = sam.Coordinate

	path := filepath.Join(dir, "sample.bam")
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := bam.NewWriter(f, h, 1)
	require.NoError(t, err)

	seq := []byte(strings.Repeat("A", 50))
	qual := bytes.Repeat([]byte{30}, 50)
	for i, r := range reads {
		var mref *sam.Reference
		if r.mref >= 0 {
			mref = refs[r.mref]
		}
		rec, err := sam.NewRecord("r"+string(rune('a'+i)), refs[r.ref], mref, r.pos, r.mpos, r.tlen, r.mapq,
			[]sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 50)}, seq, qual, nil)
		require.NoError(t, err)
		rec.Flags = r.flags
		require.NoError(t, w.Write(rec))
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	br, err := bam.NewReader(f, 1)
	require.NoError(t, err)
	var idx bam.Index
	for {
		rec, err := br.Read()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.NoError(t, idx.Add(rec, br.LastChunk()))
	}
	require.NoError(t, br.Close())

	fi, err := os.Create(path + ".bai")
	require.NoError(t, err)
	require.NoError(t, bam.WriteIndex(fi, &idx))
	require.NoError(t, fi.Close())
	return path
}

var testReads = []testRead{
	{ref: 0, mref: -1, pos: 0, mpos: -1, mapq: 60},
	{ref: 0, mref: -1, pos: 60, mpos: -1, mapq: 60},
	{ref: 0, mref: -1, pos: 500, mpos: -1, mapq: 5},
	{ref: 0, mref: -1, pos: 700, mpos: -1, mapq: 60, flags: sam.Secondary},
	{ref: 0, mref: -1, pos: 900, mpos: -1, mapq: 60, flags: sam.Duplicate},
	{ref: 1, mref: 1, pos: 1000, mpos: 1100, tlen: 150, mapq: 60, flags: sam.Paired | sam.ProperPair | sam.Read1},
	{ref: 1, mref: 1, pos: 1100, mpos: 1000, tlen: -150, mapq: 60, flags: sam.Paired | sam.ProperPair | sam.Read2},
	{ref: 1, mref: 0, pos: 2000, mpos: 10, tlen: 0, mapq: 60, flags: sam.Paired | sam.Read1},
}

func collect(t *testing.T, b *BAMReader, chrom string) []coverage.Alignment {
	t.Helper()
	it, err := b.Alignments(context.Background(), chrom)
	require.NoError(t, err)
	var alns []coverage.Alignment
	for it.Next() {
		alns = append(alns, it.Alignment())
	}
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
	return alns
}

func positions(alns []coverage.Alignment) []int {
	pos := make([]int, len(alns))
	for i, a := range alns {
		pos[i] = a.Pos
	}
	return pos
}

func TestHeaderCatalog(t *testing.T) {
	path := writeBAM(t, t.TempDir(), testReads)
	b, err := Open(path, Options{FlagExclude: DefaultFlagExclude})
	require.NoError(t, err)
	names, err := b.Catalog().Chromosomes()
	require.NoError(t, err)
	assert.Equal(t, []string{"chr1", "chr2", "chr3_random", "chr4"}, names)

	_, err = HeaderCatalog{}.Chromosomes()
	assert.Error(t, err)
}

func TestAlignmentsFilters(t *testing.T) {
	path := writeBAM(t, t.TempDir(), testReads)

	b, err := Open(path, Options{FlagExclude: DefaultFlagExclude, MinMapQ: 10})
	require.NoError(t, err)
	alns := collect(t, b, "chr1")
	// mapq 5 and the secondary are dropped; duplicates are kept by default.
	assert.Equal(t, []int{0, 60, 900}, positions(alns))
	assert.Equal(t, 50, alns[0].Length)

	b, err = Open(path, Options{FlagExclude: DefaultFlagExclude | sam.Duplicate})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 60, 500}, positions(collect(t, b, "chr1")))
}

func TestAlignmentsPaired(t *testing.T) {
	path := writeBAM(t, t.TempDir(), testReads)

	b, err := Open(path, Options{FlagExclude: DefaultFlagExclude})
	require.NoError(t, err)
	assert.Equal(t, []int{1000, 1100, 2000}, positions(collect(t, b, "chr2")))

	b, err = Open(path, Options{FlagExclude: DefaultFlagExclude, Paired: true})
	require.NoError(t, err)
	alns := collect(t, b, "chr2")
	require.Len(t, alns, 1)
	a := alns[0]
	assert.True(t, a.Paired)
	assert.Equal(t, 1000, a.Pos)
	assert.Equal(t, 1100, a.MatePos)
	assert.Equal(t, 150, a.TemplateLength)

	iv, err := a.Interval("chr2", true)
	require.NoError(t, err)
	assert.Equal(t, coverage.ReadInterval{Chrom: "chr2", Start: 1000, Span: 150}, iv)
}

func TestAlignmentsEmptyAndUnknown(t *testing.T) {
	path := writeBAM(t, t.TempDir(), testReads)
	b, err := Open(path, Options{FlagExclude: DefaultFlagExclude})
	require.NoError(t, err)

	assert.Empty(t, collect(t, b, "chr4"))
	assert.Empty(t, collect(t, b, "chr3_random"))

	_, err = b.Alignments(context.Background(), "chrM")
	assert.Error(t, err)
}

func TestAlignmentsExclusions(t *testing.T) {
	dir := t.TempDir()
	path := writeBAM(t, dir, testReads)
	bed := filepath.Join(dir, "exclude.bed")
	require.NoError(t, os.WriteFile(bed, []byte("#chrom\tstart\tend\n1\t55\t65\n"), 0o644))
	ex, err := ReadExclusions(bed)
	require.NoError(t, err)
	assert.Equal(t, 1, ex.Len())

	b, err := Open(path, Options{FlagExclude: DefaultFlagExclude, Exclude: ex})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 500, 900}, positions(collect(t, b, "chr1")))
}

func TestOpenMissingIndex(t *testing.T) {
	dir := t.TempDir()
	path := writeBAM(t, dir, testReads)
	require.NoError(t, os.Remove(path+".bai"))
	_, err := Open(path, Options{})
	assert.Error(t, err)

	// sample.bai is found as well as sample.bam.bai.
	path = writeBAM(t, dir, testReads)
	require.NoError(t, os.Rename(path+".bai", filepath.Join(dir, "sample.bai")))
	_, err = Open(path, Options{})
	assert.NoError(t, err)
}

func TestRunOverBAM(t *testing.T) {
	path := writeBAM(t, t.TempDir(), testReads)
	b, err := Open(path, Options{FlagExclude: DefaultFlagExclude})
	require.NoError(t, err)

	cfg := coverage.Config{BinWidths: []int{100}, Processes: 2}
	sink := &recordSink{}
	report, err := coverage.Run(context.Background(), cfg, b.Catalog(), b, sink)
	require.NoError(t, err)
	// chr1: 0, 60, 500, 900; chr2: 1000, 1100, 2000.
	assert.Equal(t, 7, report.TotalReads)
	// the secondary alignment at 700.
	assert.Equal(t, 1, report.Chromosomes[0].Skipped)
	assert.Zero(t, report.Chromosomes[1].Skipped)
	assert.Equal(t, []string{"chr1", "chr2"}, sink.chroms)
	require.Len(t, report.Chromosomes, 3)
	assert.True(t, report.Chromosomes[2].Empty)
	assert.Equal(t, "chr4", report.Chromosomes[2].Name)
}

type recordSink struct {
	chroms []string
}

func (r *recordSink) WriteIntervals(chrom string, width int, ivs []coverage.CoverageInterval) error {
	r.chroms = append(r.chroms, chrom)
	return nil
}
func (r *recordSink) WriteSummary(coverage.Summary) error { return nil }
func (r *recordSink) Close() error                        { return nil }
