// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mafsplit

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"github.com/arvados/mafsplit/em"
	log "github.com/sirupsen/logrus"
)

type demux struct{}

func (cmd *demux) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

func (cmd *demux) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg := em.DefaultConfig()
	var src countSource
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	runlocal := flags.Bool("local", false, "run on local host (default: run in an arvados container)")
	projectUUID := flags.String("project", "", "project `UUID` for output data")
	priority := flags.Int("priority", 500, "container request priority")
	preemptible := flags.Bool("preemptible", true, "request preemptible instance")
	arvadosRAM := flags.Int64("arvados-ram", 32000000000, "amount of memory to request for arvados container (`bytes`)")
	flags.StringVar(&src.Ref, "ref", "", "reference allele count matrix (`file`: .csv, .tsv or .npy, optionally .gz)")
	flags.StringVar(&src.Alt, "alt", "", "alternate allele count matrix (`file`: .csv, .tsv or .npy, optionally .gz)")
	flags.StringVar(&src.SNVs, "snvs", "", "SNV identifiers, one per line (`file`, overrides matrix row labels)")
	flags.StringVar(&src.Barcodes, "barcodes", "", "cell barcodes, one per line (`file`, overrides matrix column labels)")
	outputDir := flags.String("output-dir", "./out", "output `directory`")
	gz := flags.Bool("gzip", false, "gzip csv outputs")
	flags.IntVar(&cfg.Donors, "donors", cfg.Donors, "number of donors in the pool")
	flags.IntVar(&cfg.Iterations, "iterations", cfg.Iterations, "number of expectation-maximization rounds")
	flags.Float64Var(&cfg.Threshold, "threshold", cfg.Threshold, "minimum posterior probability (above 0.5) to assign a barcode to a donor")
	flags.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "PRNG seed for initial allele frequencies")
	flags.IntVar(&cfg.Threads, "threads", runtime.NumCPU(), "number of donors to compute concurrently, and number of VCPUs to request for arvados container")
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return err
	} else if flags.NArg() > 0 {
		return fmt.Errorf("errant command line arguments after parsed flags: %v", flags.Args())
	}
	if src.Ref == "" || src.Alt == "" {
		return fmt.Errorf("must specify both -ref and -alt")
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	if !*runlocal {
		runner := arvadosContainerRunner{
			Name:        "mafsplit demux",
			Client:      arvados.NewClientFromEnv(),
			ProjectUUID: *projectUUID,
			RAM:         *arvadosRAM,
			VCPUs:       cfg.Threads,
			Priority:    *priority,
			Preemptible: *preemptible,
		}
		err = runner.TranslatePaths(&src.Ref, &src.Alt, &src.SNVs, &src.Barcodes)
		if err != nil {
			return err
		}
		runner.Args = []string{"demux", "-local=true",
			"-ref=" + src.Ref,
			"-alt=" + src.Alt,
			"-snvs=" + src.SNVs,
			"-barcodes=" + src.Barcodes,
			"-output-dir=/mnt/output",
			fmt.Sprintf("-gzip=%v", *gz),
			fmt.Sprintf("-donors=%d", cfg.Donors),
			fmt.Sprintf("-iterations=%d", cfg.Iterations),
			fmt.Sprintf("-threshold=%v", cfg.Threshold),
			fmt.Sprintf("-seed=%d", cfg.Seed),
			fmt.Sprintf("-threads=%d", cfg.Threads),
		}
		output, err := runner.Run()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, output)
		return nil
	}

	counts, err := src.load()
	if err != nil {
		return err
	}
	summary := runSummary{
		Donors:     cfg.Donors,
		Iterations: cfg.Iterations,
		Threshold:  cfg.Threshold,
		Seed:       cfg.Seed,
		Inputs:     map[string]string{},
	}
	for _, fnm := range []string{src.Ref, src.Alt, src.SNVs, src.Barcodes} {
		if fnm == "" {
			continue
		}
		summary.Inputs[fnm], err = hashFile(fnm)
		if err != nil {
			return err
		}
	}

	res, err := em.Run(counts, cfg)
	if err != nil {
		return err
	}
	for k, bcs := range res.Assigned {
		log.Infof("donor %d: %d barcodes", k, len(bcs))
	}
	log.Infof("unassigned: %d barcodes", res.Unassigned())

	err = os.MkdirAll(*outputDir, 0777)
	if err != nil {
		return err
	}
	err = writeResult(*outputDir, *gz, res, summary)
	if err != nil {
		return err
	}
	log.Infof("wrote results to %s", *outputDir)
	return nil
}
