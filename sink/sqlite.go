package sink

import (
	"context"
	"database/sql"
	"os"

	"github.com/bincov/bincov/coverage"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Sample describes the sample row of a per-sample database.
type Sample struct {
	Name       string
	Dataset    string
	Genome     string
	Assembly   string
	Technology string
	// Type defaults to "Seq".
	Type string
	URL  string
}

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA foreign_keys = ON;

CREATE TABLE sample (
	id INTEGER PRIMARY KEY,
	public_id TEXT NOT NULL UNIQUE,
	dataset TEXT NOT NULL,
	genome TEXT NOT NULL,
	assembly TEXT NOT NULL,
	technology TEXT NOT NULL,
	name TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL DEFAULT 'Seq',
	reads INTEGER NOT NULL DEFAULT 0,
	url TEXT NOT NULL DEFAULT '');

CREATE TABLE bins (
	id INTEGER PRIMARY KEY,
	public_id TEXT NOT NULL UNIQUE,
	size INTEGER NOT NULL UNIQUE,
	reads INTEGER NOT NULL DEFAULT 0,
	bpm_scale_factor REAL NOT NULL DEFAULT 1.0);

CREATE TABLE chromosomes (
	id INTEGER PRIMARY KEY,
	public_id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL UNIQUE);

CREATE TABLE reads (
	id INTEGER PRIMARY KEY,
	chr_id INTEGER NOT NULL,
	bin_id INTEGER NOT NULL,
	start INTEGER NOT NULL,
	end INTEGER NOT NULL,
	count INTEGER NOT NULL,
	UNIQUE(chr_id, bin_id, start),
	FOREIGN KEY (chr_id) REFERENCES chromosomes(id),
	FOREIGN KEY (bin_id) REFERENCES bins(id) ON DELETE CASCADE);
`

const (
	insertBin        = `INSERT INTO bins (id, public_id, size) VALUES (?1, ?2, ?3)`
	insertChromosome = `INSERT INTO chromosomes (id, public_id, name) VALUES (?1, ?2, ?3)`
	insertRead       = `INSERT INTO reads (chr_id, bin_id, start, end, count) VALUES (?1, ?2, ?3, ?4, ?5)`
	updateBin        = `UPDATE bins SET reads = ?1, bpm_scale_factor = ?2 WHERE size = ?3`
	insertSample     = `INSERT INTO sample (id, public_id, dataset, genome, assembly, technology, name, type, reads, url)
	VALUES (1, ?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9)`

	selectBin   = `SELECT reads, bpm_scale_factor FROM bins WHERE size = ?1`
	selectReads = `SELECT reads.start, reads.end, reads.count
	FROM reads
	JOIN chromosomes ON chromosomes.id = reads.chr_id
	JOIN bins ON bins.id = reads.bin_id
	WHERE chromosomes.name = ?1 AND bins.size = ?2 AND reads.end >= ?3 AND reads.start <= ?4
	ORDER BY reads.start`
)

// SQLite writes the intervals of one sample to a database with the tables
// sample, bins, chromosomes and reads. An existing file at the path is
// replaced.
type SQLite struct {
	Path   string
	sample Sample
	db     *sql.DB
	bins   map[int]int
	chroms map[string]int
}

func publicID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", errors.Wrap(err, "sink: generating id")
	}
	return id.String(), nil
}

// NewSQLite creates the database at path with one bins row per width.
func NewSQLite(path string, sample Sample, widths []int) (*SQLite, error) {
	if sample.Name == "" {
		return nil, errors.New("sink: sample name is required")
	}
	if sample.Type == "" {
		sample.Type = "Seq"
	}
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "sink: removing %s", p)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "sink: opening %s", path)
	}
	// one connection keeps the pragmas in effect for every statement.
	db.SetMaxOpenConns(1)
	s := &SQLite{Path: path, sample: sample, db: db, bins: make(map[int]int, len(widths)), chroms: make(map[string]int)}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "sink: creating schema in %s", path)
	}
	for i, w := range widths {
		id, err := publicID()
		if err != nil {
			db.Close()
			return nil, err
		}
		if _, err := db.Exec(insertBin, i+1, id, w); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "sink: adding bin %d", w)
		}
		s.bins[w] = i + 1
	}
	return s, nil
}

// WriteIntervals implements coverage.Sink. Each call runs in one
// transaction.
func (s *SQLite) WriteIntervals(chrom string, width int, ivs []coverage.CoverageInterval) (err error) {
	binID, ok := s.bins[width]
	if !ok {
		return errors.Errorf("sink: no bin for width %d", width)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "sink: starting transaction")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
		err = errors.Wrap(tx.Commit(), "sink: committing")
	}()

	chrID, ok := s.chroms[chrom]
	if !ok {
		chrID = len(s.chroms) + 1
		id, err := publicID()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(insertChromosome, chrID, id, chrom); err != nil {
			return errors.Wrapf(err, "sink: adding chromosome %s", chrom)
		}
	}

	stmt, err := tx.Prepare(insertRead)
	if err != nil {
		return errors.Wrap(err, "sink: preparing insert")
	}
	defer stmt.Close()
	for _, iv := range ivs {
		if _, err := stmt.Exec(chrID, binID, iv.Start, iv.End, iv.Count); err != nil {
			return errors.Wrapf(err, "sink: inserting %s", iv)
		}
	}
	s.chroms[chrom] = chrID
	return nil
}

// WriteSummary implements coverage.Sink: it sets the reads and
// bpm_scale_factor of each bins row and writes the sample row.
func (s *SQLite) WriteSummary(sum coverage.Summary) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "sink: starting transaction")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
		err = errors.Wrap(tx.Commit(), "sink: committing")
	}()

	for _, f := range sum.Factors {
		if _, err := tx.Exec(updateBin, f.BinSpanningReads, f.ScaleFactor, f.BinWidth); err != nil {
			return errors.Wrapf(err, "sink: updating bin %d", f.BinWidth)
		}
	}
	id, err := publicID()
	if err != nil {
		return err
	}
	smp := s.sample
	if _, err := tx.Exec(insertSample, id, smp.Dataset, smp.Genome, smp.Assembly, smp.Technology,
		smp.Name, smp.Type, sum.TotalReads, smp.URL); err != nil {
		return errors.Wrap(err, "sink: adding sample")
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return errors.Wrapf(s.db.Close(), "sink: closing %s", s.Path)
}

// BinCounts is the coverage of one chromosome at one bin width read back
// from a database.
type BinCounts struct {
	Intervals []coverage.CoverageInterval
	// Factor holds the bin-spanning reads and scale factor stored for the
	// width, so Factor.BPM converts the counts of Intervals.
	Factor coverage.NormalizationFactor
	// YMax is the highest count in Intervals.
	YMax int
}

// QueryIntervals reads the intervals of chrom at width that overlap the
// 1-based closed range [start, end] from the database at path, opened read
// only.
func QueryIntervals(ctx context.Context, path, chrom string, width, start, end int) (*BinCounts, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, "sink: opening database")
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, errors.Wrapf(err, "sink: opening %s", path)
	}
	defer db.Close()

	bc := &BinCounts{Factor: coverage.NormalizationFactor{BinWidth: width}}
	err = db.QueryRowContext(ctx, selectBin, width).Scan(&bc.Factor.BinSpanningReads, &bc.Factor.ScaleFactor)
	if err == sql.ErrNoRows {
		return nil, errors.Errorf("sink: %s has no bins of width %d", path, width)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "sink: reading bin %d", width)
	}

	rows, err := db.QueryContext(ctx, selectReads, chrom, width, start, end)
	if err != nil {
		return nil, errors.Wrapf(err, "sink: querying %s", path)
	}
	defer rows.Close()

	for rows.Next() {
		iv := coverage.CoverageInterval{Chrom: chrom, BinWidth: width}
		if err := rows.Scan(&iv.Start, &iv.End, &iv.Count); err != nil {
			return nil, errors.Wrap(err, "sink: reading row")
		}
		iv.RPK = coverage.RPK(iv.Count, iv.Len())
		if iv.Count > bc.YMax {
			bc.YMax = iv.Count
		}
		bc.Intervals = append(bc.Intervals, iv)
	}
	return bc, errors.Wrap(rows.Err(), "sink: reading rows")
}
