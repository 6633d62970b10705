// Package samplename reports the sample names (SM tags of the read groups)
// of a BAM.
package samplename

import (
	"fmt"
	"os"
	"sort"
	"strings"

	arg "github.com/alexflint/go-arg"
	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/bincov/bincov/coverage"
	"github.com/fatih/color"
	"github.com/pkg/errors"
)

var smTag = sam.NewTag("SM")

// Names returns the distinct, sorted SM values of the read groups in h.
func Names(h *sam.Header) []string {
	rgs := h.RGs()
	if len(rgs) == 1 {
		v := rgs[0].Get(smTag)
		if v == "" {
			return nil
		}
		return []string{v}
	}
	m := make(map[string]bool)
	for _, rg := range rgs {
		v := rg.Get(smTag)
		if v == "" {
			continue
		}
		m[v] = true
	}
	names := make([]string, 0, len(m))
	for sm := range m {
		names = append(names, sm)
	}
	sort.Strings(names)
	return names
}

// FromBAM reads the header of the bam at path and returns its sample names.
func FromBAM(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "samplename")
	}
	defer f.Close()
	b, err := bam.NewReader(f, 1)
	if err != nil {
		return nil, errors.Wrapf(err, "samplename: reading %s", path)
	}
	defer b.Close()
	return Names(b.Header()), nil
}

type cliargs struct {
	Bam        string `arg:"positional,required" help:"bam for to get sample name(s)"`
	ErrorMulti bool   `arg:"-e" help:"return an error if there is not exactly 1 sample in the bam."`
}

func (c cliargs) Version() string {
	return fmt.Sprintf("samplename %s", coverage.Version)
}

// Main is run from the dispatcher
func Main() {
	cli := &cliargs{}
	arg.MustParse(cli)

	names, err := FromBAM(cli.Bam)
	if err == nil && cli.ErrorMulti && len(names) != 1 {
		err = errors.Errorf("samplename: found %d samples in %s", len(names), cli.Bam)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, color.New(color.FgRed, color.Bold).Sprint(err))
		os.Exit(1)
	}
	fmt.Println(strings.Join(names, "\n"))
}
