// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mafsplit

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"github.com/arvados/mafsplit/em"
	"github.com/james-bowman/nlp"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

type pcaCmd struct{}

func (cmd *pcaCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

func (cmd *pcaCmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
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
	outputDir := flags.String("output-dir", "./out", "output `directory`")
	components := flags.Int("components", 4, "number of components")
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
	if *components < 1 {
		return fmt.Errorf("invalid -components %d: must be at least 1", *components)
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	if !*runlocal {
		runner := arvadosContainerRunner{
			Name:        "mafsplit pca",
			Client:      arvados.NewClientFromEnv(),
			ProjectUUID: *projectUUID,
			RAM:         64000000000,
			VCPUs:       8,
			Priority:    *priority,
		}
		err = runner.TranslatePaths(&src.Ref, &src.Alt, &src.SNVs, &src.Barcodes)
		if err != nil {
			return err
		}
		runner.Args = []string{"pca", "-local=true",
			"-ref=" + src.Ref,
			"-alt=" + src.Alt,
			"-snvs=" + src.SNVs,
			"-barcodes=" + src.Barcodes,
			"-output-dir=/mnt/output",
			fmt.Sprintf("-components=%d", *components),
		}
		output, err := runner.Run()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, output+"/pca.npy")
		return nil
	}

	counts, err := src.load()
	if err != nil {
		return err
	}
	proj, err := projectCells(counts, *components)
	if err != nil {
		return err
	}
	err = os.MkdirAll(*outputDir, 0777)
	if err != nil {
		return err
	}
	err = writeMatrixNumpy(*outputDir+"/pca.npy", proj)
	if err != nil {
		return err
	}
	return writeLines(*outputDir+"/pca.barcodes.csv", false, counts.Barcodes)
}

// altFractionMatrix returns an SNVs×barcodes matrix of alt/(ref+alt),
// centered at 0.5. Uncovered entries are 0.
func altFractionMatrix(counts *em.Counts) *mat.Dense {
	nsnv, nbc := counts.Ref.Dims()
	frac := mat.NewDense(nsnv, nbc, nil)
	depth := make([]float64, nbc)
	var touched []int
	for i := 0; i < nsnv; i++ {
		touched = touched[:0]
		counts.Alt.DoRowNonZero(i, func(i, j int, v float64) {
			frac.Set(i, j, v)
			depth[j] += v
			touched = append(touched, j)
		})
		counts.Ref.DoRowNonZero(i, func(i, j int, v float64) {
			depth[j] += v
			touched = append(touched, j)
		})
		for _, j := range touched {
			if d := depth[j]; d > 0 {
				frac.Set(i, j, frac.At(i, j)/d-0.5)
				depth[j] = 0
			}
		}
	}
	return frac
}

// projectCells returns a barcodes×components matrix of each cell's
// coordinates on the leading principal components of the alt fraction
// matrix.
func projectCells(counts *em.Counts, components int) (*mat.Dense, error) {
	nsnv, nbc := counts.Ref.Dims()
	if components > nsnv || components > nbc {
		return nil, fmt.Errorf("%w: cannot compute %d components from %d SNVs and %d barcodes", em.ErrInvalidInput, components, nsnv, nbc)
	}
	log.Printf("building alt fraction matrix: %d rows, %d cols", nsnv, nbc)
	frac := altFractionMatrix(counts)

	log.Print("fitting")
	transformer := nlp.NewPCA(components)
	transformer.Fit(frac)
	log.Printf("transforming")
	proj, err := transformer.Transform(frac)
	if err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(proj.T()), nil
}
