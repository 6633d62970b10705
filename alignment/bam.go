// Package alignment reads coverage.Alignments from indexed BAM files.
package alignment

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/bgzf"
	"github.com/biogo/hts/bgzf/index"
	"github.com/biogo/hts/sam"
	"github.com/biogo/store/interval"
	"github.com/bincov/bincov/coverage"
	"github.com/pkg/errors"
)

// DefaultFlagExclude drops reads that are unmapped, not primary or that
// failed QC.
const DefaultFlagExclude = sam.Unmapped | sam.Secondary | sam.Supplementary | sam.QCFail

// largest position the bai binning scheme can address.
const maxIndexPos = 1<<29 - 1

// Options control which records a BAMReader yields.
type Options struct {
	// Index is the path to the .bai; by default path + ".bai", then the path
	// with .bam replaced by .bai.
	Index       string
	FlagExclude sam.Flags
	MinMapQ     byte
	// Paired yields only the first read of each pair with both mates mapped
	// to the same chromosome, so that each template is counted once.
	Paired  bool
	Exclude Exclusions
}

// BAMReader is a coverage.Reader over a coordinate-sorted, indexed BAM.
// Every call to Alignments opens its own handle on the file; the index is
// parsed once and shared.
type BAMReader struct {
	Path string
	opts Options

	header *sam.Header
	refs   map[string]*sam.Reference

	mu  sync.Mutex
	idx *bam.Index
}

// Open reads the header and index of the BAM at path.
func Open(path string, opts Options) (*BAMReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "alignment: opening bam")
	}
	defer f.Close()
	br, err := bam.NewReader(f, 1)
	if err != nil {
		return nil, errors.Wrapf(err, "alignment: reading header of %s", path)
	}
	defer br.Close()

	b := &BAMReader{Path: path, opts: opts, header: br.Header(), refs: make(map[string]*sam.Reference)}
	for _, ref := range b.header.Refs() {
		b.refs[ref.Name()] = ref
	}
	if b.idx, err = readIndex(path, opts.Index); err != nil {
		return nil, err
	}
	return b, nil
}

func readIndex(path, ipath string) (*bam.Index, error) {
	candidates := []string{ipath}
	if ipath == "" {
		candidates = []string{path + ".bai", strings.TrimSuffix(path, ".bam") + ".bai"}
	}
	var last error
	for _, p := range candidates {
		f, err := os.Open(p)
		if err != nil {
			last = err
			continue
		}
		idx, err := bam.ReadIndex(f)
		f.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "alignment: reading index %s", p)
		}
		return idx, nil
	}
	return nil, errors.Wrapf(last, "alignment: no index found for %s", path)
}

// Header returns the header of the BAM.
func (b *BAMReader) Header() *sam.Header { return b.header }

// Catalog returns the chromosomes of the BAM header.
func (b *BAMReader) Catalog() HeaderCatalog { return HeaderCatalog{Header: b.header} }

func (b *BAMReader) chunks(ref *sam.Reference) ([]bgzf.Chunk, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	end := ref.Len()
	if end > maxIndexPos {
		end = maxIndexPos
	}
	chunks, err := b.idx.Chunks(ref, 0, end)
	// the index holds no bins for references without reads.
	if err == index.ErrNoReference || err == index.ErrInvalid {
		return nil, nil
	}
	return chunks, err
}

// Alignments implements coverage.Reader.
func (b *BAMReader) Alignments(ctx context.Context, chrom string) (coverage.Iterator, error) {
	ref, ok := b.refs[chrom]
	if !ok {
		return nil, errors.Errorf("alignment: %s not in header of %s", chrom, b.Path)
	}
	chunks, err := b.chunks(ref)
	if err != nil {
		return nil, errors.Wrapf(err, "alignment: querying index for %s", chrom)
	}
	it := &Iterator{ref: ref, opts: b.opts, tree: b.opts.Exclude.Tree(chrom)}
	if len(chunks) == 0 {
		return it, nil
	}

	if it.f, err = os.Open(b.Path); err != nil {
		return nil, errors.Wrap(err, "alignment: opening bam")
	}
	if it.br, err = bam.NewReader(it.f, 1); err != nil {
		it.f.Close()
		return nil, errors.Wrapf(err, "alignment: reading %s", b.Path)
	}
	it.br.Omit(bam.AuxTags)
	if it.it, err = bam.NewIterator(it.br, chunks); err != nil {
		it.Close()
		return nil, errors.Wrapf(err, "alignment: seeking to %s", chrom)
	}
	return it, nil
}

// Iterator yields the filtered records of one chromosome.
type Iterator struct {
	ref  *sam.Reference
	opts Options
	tree *interval.IntTree

	f  *os.File
	br *bam.Reader
	it *bam.Iterator

	cur coverage.Alignment
	err error
	skipped int
}

// Skipped is the number of records dropped by the filters so far.
func (it *Iterator) Skipped() int { return it.skipped }

// Next implements coverage.Iterator.
func (it *Iterator) Next() bool {
	if it.it == nil || it.err != nil {
		return false
	}
	for it.it.Next() {
		rec := it.it.Record()
		if !it.keep(rec) {
			it.skipped++
			continue
		}
		_, length := rec.Cigar.Lengths()
		if length == 0 {
			length = rec.Seq.Length
		}
		it.cur = coverage.Alignment{
			Pos:            rec.Pos,
			Length:         length,
			MatePos:        rec.MatePos,
			TemplateLength: rec.TempLen,
			Paired:         rec.Flags&sam.Paired != 0,
		}
		return true
	}
	if err := it.it.Error(); err != nil {
		it.err = errors.Wrapf(coverage.ErrMalformedAlignment, "%s: %v", it.ref.Name(), err)
	}
	return false
}

func (it *Iterator) keep(rec *sam.Record) bool {
	if rec.Ref == nil || rec.Ref.ID() != it.ref.ID() {
		return false
	}
	if rec.Flags&it.opts.FlagExclude != 0 || rec.MapQ < it.opts.MinMapQ {
		return false
	}
	if it.opts.Paired && rec.Flags&sam.Paired != 0 {
		if rec.Flags&(sam.Read2|sam.MateUnmapped) != 0 {
			return false
		}
		if rec.MateRef == nil || rec.MateRef.ID() != rec.Ref.ID() || rec.TempLen == 0 {
			return false
		}
	}
	if it.tree != nil && Overlaps(it.tree, rec.Pos, rec.End()) {
		return false
	}
	return true
}

// Alignment implements coverage.Iterator.
func (it *Iterator) Alignment() coverage.Alignment { return it.cur }

// Err implements coverage.Iterator.
func (it *Iterator) Err() error { return it.err }

// Close releases the file handle.
func (it *Iterator) Close() error {
	var err error
	if it.it != nil {
		err = it.it.Close()
	}
	if it.br != nil {
		if cerr := it.br.Close(); err == nil {
			err = cerr
		}
	}
	if it.f != nil {
		if cerr := it.f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// HeaderCatalog lists the references of a BAM header in header order.
type HeaderCatalog struct {
	Header *sam.Header
}

// Chromosomes implements coverage.Catalog.
func (h HeaderCatalog) Chromosomes() ([]string, error) {
	if h.Header == nil {
		return nil, errors.New("alignment: no header")
	}
	refs := h.Header.Refs()
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.Name()
	}
	return names, nil
}
