package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/bincov/bincov/bincov"
	"github.com/bincov/bincov/coverage"
	"github.com/bincov/bincov/covstats"
	"github.com/bincov/bincov/hist"
	"github.com/bincov/bincov/samplename"
)

type progPair struct {
	help string
	main func()
}

var progs = map[string]progPair{
	"bin":        progPair{"build run-length encoded coverage tracks at several bin widths from a bam", bincov.Main},
	"samplename": progPair{"report the sample name(s) of a bam", samplename.Main},
	"covstats":   progPair{"summarize coverage tracks written by bin", covstats.Main},
	"hist":       progPair{"plot a histogram of a column of coverage tracks", hist.Main},
}

func printProgs() {

	var wtr io.Writer = os.Stdout

	fmt.Fprintf(wtr, "bincov Version: %s\n\n", coverage.Version)
	var keys []string
	l := 5
	for k := range progs {
		keys = append(keys, k)
		if len(k) > l {
			l = len(k)
		}
	}
	fmtr := "%-" + strconv.Itoa(l) + "s : %s\n"
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(wtr, fmtr, k, progs[k].help)

	}
	os.Exit(1)

}

func main() {

	if len(os.Args) < 2 {
		printProgs()
	}
	var p progPair
	var ok bool
	if p, ok = progs[os.Args[1]]; !ok {
		printProgs()
	}
	// remove the prog name from the call
	os.Args = append(os.Args[:1], os.Args[2:]...)
	p.main()
}
