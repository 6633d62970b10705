// Package bincov builds multi-resolution coverage tracks from a BAM:
// 1) $prefix.w$width.bed.gz with the run-length encoded read counts for each bin width.
// 2) $prefix.norm.tsv with the BPM scale factor for each bin width.
// 3) optionally a per-sample sqlite database holding the same intervals.
package bincov

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	arg "github.com/alexflint/go-arg"
	"github.com/biogo/hts/sam"
	"github.com/bincov/bincov/alignment"
	"github.com/bincov/bincov/coverage"
	"github.com/bincov/bincov/samplename"
	"github.com/bincov/bincov/sink"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type cliargs struct {
	Widths      string `arg:"-w,env:BINCOV_WIDTHS" help:"comma-separated bin widths in base pairs"`
	Mode        string `arg:"-m,env:BINCOV_MODE" help:"noise suppression applied to bin counts: default or round2"`
	MinReads    int    `arg:"--min-reads,env:BINCOV_MIN_READS" help:"bins whose (rounded) count is <= this are dropped"`
	Paired      bool   `arg:"env:BINCOV_PAIRED" help:"count each read pair once (first mate only), over the template from the leftmost mate. counts are about half those of an unpaired run, so scale --min-reads to match"`
	Processes   int    `arg:"-p,env:BINCOV_PROCESSES" help:"number of chromosomes to process in parallel. default is all CPUs"`
	KeepGoing   bool   `arg:"-k,--keep-going" help:"keep processing the other chromosomes when one fails"`
	MapQ        int    `arg:"-Q,env:BINCOV_MAPQ" help:"mapping quality cutoff"`
	FlagExclude int    `arg:"-F,--flag-exclude" help:"skip reads with any of these flag bits set"`
	Exclude     string `arg:"-e" help:"optional bed file of regions whose reads are ignored"`
	Prefix      string `arg:"required" help:"prefix for output files"`
	SQLite      string `arg:"--sqlite" help:"optional path of a per-sample sqlite database to write"`
	Sample      string `arg:"-s" help:"sample name for the database. default is the SM tag of the bam"`
	Dataset     string `arg:"env:BINCOV_DATASET" help:"dataset of the sample"`
	Genome      string `arg:"env:BINCOV_GENOME" help:"genome of the sample, e.g. Human"`
	Assembly    string `arg:"env:BINCOV_ASSEMBLY" help:"assembly the reads are aligned to, e.g. hg19"`
	Technology  string `arg:"env:BINCOV_TECHNOLOGY" help:"technology, e.g. ChIP-seq"`
	Verbose     bool   `arg:"-v" help:"report progress"`
	Bam         string `arg:"positional,required" help:"sorted and indexed bam for which to build coverage tracks"`
}

func (c cliargs) Version() string {
	return fmt.Sprintf("bincov bin %s", coverage.Version)
}

func defaultArgs() cliargs {
	return cliargs{
		Widths:      "50,100,1000,10000",
		Mode:        coverage.Default.String(),
		MinReads:    coverage.DefaultMinReads,
		FlagExclude: int(alignment.DefaultFlagExclude),
	}
}

func (c cliargs) config(log *zerolog.Logger) (coverage.Config, error) {
	cfg := coverage.Config{
		MinReads:  c.MinReads,
		Paired:    c.Paired,
		Processes: c.Processes,
		KeepGoing: c.KeepGoing,
		Logger:    log,
	}
	var err error
	if cfg.BinWidths, err = coverage.ParseBinWidths(c.Widths); err != nil {
		return cfg, err
	}
	if cfg.Mode, err = coverage.ParseMode(c.Mode); err != nil {
		return cfg, err
	}
	if c.MinReads < 0 {
		return cfg, errors.Errorf("min-reads must be >= 0, got %d", c.MinReads)
	}
	return cfg, cfg.Validate()
}

func (c cliargs) options() (alignment.Options, error) {
	if c.MapQ < 0 || c.MapQ > 255 {
		return alignment.Options{}, errors.Errorf("mapq must be between 0 and 255, got %d", c.MapQ)
	}
	ex, err := alignment.ReadExclusions(c.Exclude)
	if err != nil {
		return alignment.Options{}, err
	}
	return alignment.Options{
		FlagExclude: sam.Flags(c.FlagExclude),
		MinMapQ:     byte(c.MapQ),
		Paired:      c.Paired,
		Exclude:     ex,
	}, nil
}

func (c cliargs) sample(h *sam.Header) (sink.Sample, error) {
	smp := sink.Sample{
		Name:       c.Sample,
		Dataset:    c.Dataset,
		Genome:     c.Genome,
		Assembly:   c.Assembly,
		Technology: c.Technology,
	}
	if smp.Name == "" {
		names := samplename.Names(h)
		if len(names) != 1 {
			return smp, errors.Errorf("found %d samples in %s; use --sample", len(names), c.Bam)
		}
		smp.Name = names[0]
	}
	return smp, nil
}

// Logger returns the console logger used by the commands.
func Logger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		Level(level).With().Timestamp().Logger()
}

// Main is run from the dispatcher
func Main() {
	cli := defaultArgs()
	p := arg.MustParse(&cli)
	if strings.TrimSpace(cli.Prefix) == "" {
		p.Fail("you must specify an output prefix")
	}
	log := Logger(os.Stderr, cli.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cli, &log); err != nil {
		c := color.New(color.FgRed).Add(color.Bold)
		fmt.Fprintf(os.Stderr, "%s\n", c.SprintFunc()(fmt.Sprintf("ERROR: %s", err)))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cli cliargs, log *zerolog.Logger) (err error) {
	cfg, err := cli.config(log)
	if err != nil {
		return err
	}
	opts, err := cli.options()
	if err != nil {
		return err
	}
	if n := opts.Exclude.Len(); n > 0 {
		log.Info().Int("regions", n).Str("bed", cli.Exclude).Msg("read exclusion regions")
	}
	bam, err := alignment.Open(cli.Bam, opts)
	if err != nil {
		return err
	}

	out, err := sinks(cli, cfg.BinWidths, bam.Header())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	report, err := coverage.Run(ctx, cfg, bam.Catalog(), bam, out)
	if report != nil {
		for _, c := range report.Chromosomes {
			if c.OK() && !c.Empty {
				log.Debug().Str("chrom", c.Name).Int("reads", c.Reads).
					Interface("intervals", c.Intervals).Msg("written")
			}
		}
		log.Info().Int("reads", report.TotalReads).Int("failed", len(report.Failed())).
			Str("prefix", cli.Prefix).Msg("done")
	}
	return err
}

func sinks(cli cliargs, widths []int, h *sam.Header) (coverage.Sink, error) {
	bed, err := sink.NewBED(cli.Prefix, widths)
	if err != nil {
		return nil, err
	}
	if cli.SQLite == "" {
		return bed, nil
	}
	smp, err := cli.sample(h)
	if err != nil {
		bed.Close()
		return nil, err
	}
	db, err := sink.NewSQLite(cli.SQLite, smp, widths)
	if err != nil {
		bed.Close()
		return nil, err
	}
	return sink.Multi{bed, db}, nil
}
