// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mafsplit

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"sort"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"github.com/arvados/mafsplit/em"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type statscmd struct{}

func (cmd *statscmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

func (cmd *statscmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var src countSource
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	runlocal := flags.Bool("local", false, "run on local host (default: run in an arvados container)")
	projectUUID := flags.String("project", "", "project `UUID` for output data")
	priority := flags.Int("priority", 500, "container request priority")
	flags.StringVar(&src.Ref, "ref", "", "reference allele count matrix `file`")
	flags.StringVar(&src.Alt, "alt", "", "alternate allele count matrix `file`")
	flags.StringVar(&src.SNVs, "snvs", "", "SNV identifiers, one per line (`file`)")
	flags.StringVar(&src.Barcodes, "barcodes", "", "cell barcodes, one per line (`file`)")
	outputFilename := flags.String("o", "-", "output `file`")
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return err
	} else if flags.NArg() > 0 {
		return fmt.Errorf("errant command line arguments after parsed flags: %v", flags.Args())
	}
	if src.Ref == "" || src.Alt == "" {
		return errors.New("must specify both -ref and -alt")
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	if !*runlocal {
		if *outputFilename != "-" {
			return errors.New("cannot specify output file in container mode: not implemented")
		}
		runner := arvadosContainerRunner{
			Name:        "mafsplit stats",
			Client:      arvados.NewClientFromEnv(),
			ProjectUUID: *projectUUID,
			RAM:         16000000000,
			VCPUs:       2,
			Priority:    *priority,
		}
		err = runner.TranslatePaths(&src.Ref, &src.Alt, &src.SNVs, &src.Barcodes)
		if err != nil {
			return err
		}
		runner.Args = []string{"stats", "-local=true",
			"-ref=" + src.Ref,
			"-alt=" + src.Alt,
			"-snvs=" + src.SNVs,
			"-barcodes=" + src.Barcodes,
			"-o=/mnt/output/stats.json",
		}
		output, err := runner.Run()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, output+"/stats.json")
		return nil
	}

	counts, err := src.load()
	if err != nil {
		return err
	}

	var output io.WriteCloser
	if *outputFilename == "-" {
		output = nopCloser{stdout}
	} else {
		output, err = os.OpenFile(*outputFilename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0777)
		if err != nil {
			return err
		}
		defer output.Close()
	}
	bufw := bufio.NewWriter(output)
	enc := json.NewEncoder(bufw)
	enc.SetIndent("", "  ")
	err = enc.Encode(coverageStats(counts))
	if err != nil {
		return err
	}
	err = bufw.Flush()
	if err != nil {
		return err
	}
	return output.Close()
}

type distribution struct {
	Mean   float64
	StdDev float64
	Median float64
	Max    float64
}

func summarize(x []float64) distribution {
	if len(x) == 0 {
		return distribution{}
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	var d distribution
	d.Mean, d.StdDev = stat.MeanStdDev(sorted, nil)
	if len(sorted) < 2 {
		d.StdDev = 0
	}
	d.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	d.Max = floats.Max(sorted)
	return d
}

type coverageReport struct {
	SNVs                   int
	Barcodes               int
	RefNonZero             int
	AltNonZero             int
	TotalRef               float64
	TotalAlt               float64
	CoveredSNVsPerBarcode  distribution
	CoveredBarcodesPerSNV  distribution
	DepthPerBarcode        distribution
	UncoveredBarcodes      int
	UncoveredSNVs          int
	UncoveredBarcodeSample []string `json:",omitempty"`
}

// coverageStats reports how much usable signal the count matrices
// carry. A (SNV, barcode) pair is covered if it has at least one ref
// or alt read.
func coverageStats(counts *em.Counts) coverageReport {
	nsnv, nbc := counts.Ref.Dims()
	ret := coverageReport{
		SNVs:       nsnv,
		Barcodes:   nbc,
		RefNonZero: counts.Ref.NNZ(),
		AltNonZero: counts.Alt.NNZ(),
	}
	ret.TotalRef, ret.TotalAlt = counts.Totals()

	perBarcode := make([]float64, nbc)
	perSNV := make([]float64, nsnv)
	depth := make([]float64, nbc)
	// coveredIn[j] == i+1 once barcode j has a read at SNV i
	coveredIn := make([]int, nbc)
	for i := 0; i < nsnv; i++ {
		counts.Alt.DoRowNonZero(i, func(i, j int, v float64) {
			coveredIn[j] = i + 1
			perBarcode[j]++
			perSNV[i]++
			depth[j] += v
		})
		counts.Ref.DoRowNonZero(i, func(i, j int, v float64) {
			if coveredIn[j] != i+1 {
				coveredIn[j] = i + 1
				perBarcode[j]++
				perSNV[i]++
			}
			depth[j] += v
		})
	}
	for j, n := range perBarcode {
		if n == 0 {
			ret.UncoveredBarcodes++
			if len(ret.UncoveredBarcodeSample) < 10 {
				ret.UncoveredBarcodeSample = append(ret.UncoveredBarcodeSample, counts.Barcodes[j])
			}
		}
	}
	for _, n := range perSNV {
		if n == 0 {
			ret.UncoveredSNVs++
		}
	}
	ret.CoveredSNVsPerBarcode = summarize(perBarcode)
	ret.CoveredBarcodesPerSNV = summarize(perSNV)
	ret.DepthPerBarcode = summarize(depth)
	return ret
}
