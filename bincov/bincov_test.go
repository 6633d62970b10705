package bincov

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	arg "github.com/alexflint/go-arg"
	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/bincov/bincov/alignment"
	"github.com/bincov/bincov/coverage"
	"github.com/bincov/bincov/sink"
	"github.com/brentp/xopen"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	cli := defaultArgs()
	cfg, err := cli.config(nil)
	require.NoError(t, err)
	assert.Equal(t, coverage.DefaultBinWidths, cfg.BinWidths)
	assert.Equal(t, coverage.Default, cfg.Mode)
	assert.Equal(t, 4, cfg.MinReads)

	cli.Widths = "100, 1000,"
	cli.Mode = "Round2"
	cli.MinReads = 0
	cfg, err = cli.config(nil)
	require.NoError(t, err)
	assert.Equal(t, []int{100, 1000}, cfg.BinWidths)
	assert.Equal(t, coverage.Round2, cfg.Mode)

	for _, c := range []struct {
		name   string
		modify func(*cliargs)
		is     error
	}{
		{"zero width", func(c *cliargs) { c.Widths = "0,100" }, coverage.ErrInvalidBinWidth},
		{"bad width", func(c *cliargs) { c.Widths = "50,1kb" }, coverage.ErrInvalidBinWidth},
		{"no widths", func(c *cliargs) { c.Widths = "" }, coverage.ErrInvalidBinWidth},
		{"mode", func(c *cliargs) { c.Mode = "round3" }, coverage.ErrUnknownMode},
		{"min reads", func(c *cliargs) { c.MinReads = -1 }, nil},
	} {
		cli := defaultArgs()
		c.modify(&cli)
		_, err := cli.config(nil)
		require.Error(t, err, c.name)
		if c.is != nil {
			assert.ErrorIs(t, err, c.is, c.name)
		}
	}
}

func TestPairedHelp(t *testing.T) {
	cli := defaultArgs()
	p, err := arg.NewParser(arg.Config{Program: "bin"}, &cli)
	require.NoError(t, err)
	var buf bytes.Buffer
	p.WriteHelp(&buf)
	assert.Contains(t, buf.String(), "--paired")
	assert.Contains(t, buf.String(), "(first mate only)")
}

func TestOptions(t *testing.T) {
	cli := defaultArgs()
	cli.MapQ = 20
	cli.Paired = true
	opts, err := cli.options()
	require.NoError(t, err)
	assert.Equal(t, alignment.DefaultFlagExclude, opts.FlagExclude)
	assert.Equal(t, byte(20), opts.MinMapQ)
	assert.True(t, opts.Paired)
	assert.Nil(t, opts.Exclude)

	cli.MapQ = 300
	_, err = cli.options()
	assert.Error(t, err)
}

func header(t *testing.T, text string) *sam.Header {
	t.Helper()
	var refs []*sam.Reference
	for _, n := range []string{"1", "2", "GL000192.1_random"} {
		ref, err := sam.NewReference(n, "", "", 100000, nil, nil)
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	var txt []byte
	if text != "" {
		txt = []byte(text)
	}
	h, err := sam.NewHeader(txt, refs)
	require.NoError(t, err)
	return h
}

func TestSampleName(t *testing.T) {
	cli := defaultArgs()
	smp, err := cli.sample(header(t, "@RG\tID:a\tSM:NA12878\n"))
	require.NoError(t, err)
	assert.Equal(t, "NA12878", smp.Name)

	_, err = cli.sample(header(t, "@RG\tID:a\tSM:s1\n@RG\tID:b\tSM:s2\n"))
	assert.Error(t, err)

	cli.Sample = "given"
	smp, err = cli.sample(header(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "given", smp.Name)
}

// writeBAM writes an indexed bam with 6 reads on "1" and 2 on "2".
func writeBAM(t *testing.T, dir string) string {
	t.Helper()
	h := header(t, "@HD\tVN:1.5\tSO:coordinate\n@RG\tID:a\tSM:NA12878\n")
	refs := h.Refs()
	path := filepath.Join(dir, "NA12878.bam")
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := bam.NewWriter(f, h, 1)
	require.NoError(t, err)
	seq := []byte(strings.Repeat("A", 50))
	qual := bytes.Repeat([]byte{30}, 50)
	for i, r := range []struct{ ref, pos int }{
		{0, 0}, {0, 10}, {0, 20}, {0, 30}, {0, 40}, {0, 140}, {1, 500}, {1, 510},
	} {
		rec, err := sam.NewRecord("r"+string(rune('a'+i)), refs[r.ref], nil, r.pos, -1, 0, 60,
			[]sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 50)}, seq, qual, nil)
		require.NoError(t, err)
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
	fi, err := os.Create(path + ".bai")
	require.NoError(t, err)
	require.NoError(t, bam.WriteIndex(fi, &idx))
	require.NoError(t, fi.Close())
	return path
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cli := defaultArgs()
	cli.Bam = writeBAM(t, dir)
	cli.Widths = "100,1000"
	cli.Prefix = filepath.Join(dir, "out")
	cli.SQLite = filepath.Join(dir, "NA12878.db")
	log := zerolog.Nop()

	require.NoError(t, run(context.Background(), cli, &log))

	// chr1: bin 0 has 5 reads and bin 1 has 1, only bin 0 is kept.
	r, err := xopen.Ropen(sink.BEDPath(cli.Prefix, 100))
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	r.Close()
	assert.Equal(t, "chr1\t0\t100\t5\t50.000\n", string(b))

	r, err = xopen.Ropen(sink.NormPath(cli.Prefix))
	require.NoError(t, err)
	b, err = io.ReadAll(r)
	require.NoError(t, err)
	r.Close()
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 3)
	// width 100: 6 reads on chr1 and 2 on chr2, none spanning two bins.
	assert.Equal(t, "100\t8\t125000\t8", lines[1])

	bc, err := sink.QueryIntervals(context.Background(), cli.SQLite, "chr1", 1000, 1, 100000)
	require.NoError(t, err)
	require.Len(t, bc.Intervals, 1)
	assert.Equal(t, 6, bc.Intervals[0].Count)
	assert.Equal(t, 6, bc.YMax)
	assert.Equal(t, 125000.0, bc.Factor.ScaleFactor)
}

func TestRunMissingIndex(t *testing.T) {
	dir := t.TempDir()
	cli := defaultArgs()
	cli.Bam = writeBAM(t, dir)
	require.NoError(t, os.Remove(cli.Bam+".bai"))
	cli.Prefix = filepath.Join(dir, "out")
	log := zerolog.Nop()
	assert.Error(t, run(context.Background(), cli, &log))
}
