// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mafsplit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/arvados/mafsplit/em"
	"github.com/klauspost/pgzip"
	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"gonum.org/v1/gonum/mat"
)

// outputFile is a buffered, optionally gzipped, output file.
type outputFile struct {
	f    *os.File
	bufw *bufio.Writer
	gzw  *pgzip.Writer
	io.Writer
}

func createOutput(fnm string, gz bool) (*outputFile, error) {
	f, err := os.Create(fnm)
	if err != nil {
		return nil, err
	}
	out := &outputFile{f: f, bufw: bufio.NewWriterSize(f, 1<<20)}
	out.Writer = out.bufw
	if gz {
		out.gzw = pgzip.NewWriter(out.bufw)
		out.Writer = out.gzw
	}
	return out, nil
}

func (out *outputFile) Close() error {
	if out.gzw != nil {
		if err := out.gzw.Close(); err != nil {
			out.f.Close()
			return err
		}
	}
	if err := out.bufw.Flush(); err != nil {
		out.f.Close()
		return err
	}
	return out.f.Close()
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func writeNumpyFloat64(fnm string, out []float64, rows, cols int) error {
	output, err := os.Create(fnm)
	if err != nil {
		return err
	}
	defer output.Close()
	bufw := bufio.NewWriterSize(output, 1<<20)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return fmt.Errorf("gonpy.NewWriter: %w", err)
	}
	log.WithFields(log.Fields{
		"filename": fnm,
		"rows":     rows,
		"cols":     cols,
		"bytes":    rows * cols * 8,
	}).Infof("writing numpy: %s", fnm)
	npw.Shape = []int{rows, cols}
	err = npw.WriteFloat64(out)
	if err != nil {
		return fmt.Errorf("WriteFloat64: %w", err)
	}
	err = bufw.Flush()
	if err != nil {
		return err
	}
	return output.Close()
}

func writeMatrixNumpy(fnm string, m *mat.Dense) error {
	rows, cols := m.Dims()
	return writeNumpyFloat64(fnm, mat.DenseCopyOf(m).RawMatrix().Data, rows, cols)
}

// writeMatrixCSV writes m with a header of column indices and one
// labelled row per line.
func writeMatrixCSV(fnm string, gz bool, labels []string, m *mat.Dense) error {
	out, err := createOutput(fnm, gz)
	if err != nil {
		return err
	}
	rows, cols := m.Dims()
	var buf []byte
	for k := 0; k < cols; k++ {
		buf = append(buf, ',')
		buf = strconv.AppendInt(buf, int64(k), 10)
	}
	buf = append(buf, '\n')
	for i := 0; i < rows && err == nil; i++ {
		buf = append(buf, labels[i]...)
		for k := 0; k < cols; k++ {
			buf = append(buf, ',')
			buf = strconv.AppendFloat(buf, m.At(i, k), 'g', -1, 64)
		}
		buf = append(buf, '\n')
		_, err = out.Write(buf)
		buf = buf[:0]
	}
	if err == nil && rows == 0 {
		_, err = out.Write(buf)
	}
	if err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", fnm, err)
	}
	err = out.Close()
	if err != nil {
		return fmt.Errorf("close %s: %w", fnm, err)
	}
	return nil
}

func writeLines(fnm string, gz bool, lines []string) error {
	out, err := createOutput(fnm, gz)
	if err != nil {
		return err
	}
	for _, line := range lines {
		_, err = fmt.Fprintln(out, line)
		if err != nil {
			out.Close()
			return fmt.Errorf("write %s: %w", fnm, err)
		}
	}
	return out.Close()
}

type runSummary struct {
	Donors        int               `json:"donors"`
	Iterations    int               `json:"iterations"`
	Threshold     float64           `json:"threshold"`
	Seed          uint64            `json:"seed"`
	SNVs          int               `json:"snvs"`
	Barcodes      int               `json:"barcodes"`
	Assigned      []int             `json:"assigned"`
	Unassigned    int               `json:"unassigned"`
	LogLikelihood float64           `json:"final_loglikelihood"`
	Inputs        map[string]string `json:"input_blake2b"`
}

// writeResult writes everything a demux run produces into dir.
func writeResult(dir string, gz bool, res *em.Result, summary runSummary) error {
	csvext := ".csv"
	if gz {
		csvext = ".csv.gz"
	}
	for k, bcs := range res.Assigned {
		err := writeLines(fmt.Sprintf("%s/donor%d.barcodes%s", dir, k, csvext), gz, bcs)
		if err != nil {
			return err
		}
	}
	err := writeMatrixCSV(dir+"/posterior"+csvext, gz, res.Barcodes, res.Posterior)
	if err != nil {
		return err
	}
	err = writeMatrixNumpy(dir+"/posterior.npy", res.Posterior)
	if err != nil {
		return err
	}
	err = writeMatrixCSV(dir+"/model_maf"+csvext, gz, res.SNVs, res.MAF)
	if err != nil {
		return err
	}
	err = writeMatrixNumpy(dir+"/model_maf.npy", res.MAF)
	if err != nil {
		return err
	}
	trace := []string{"iteration,loglikelihood"}
	for i, ll := range res.LogLikelihood {
		trace = append(trace, fmt.Sprintf("%d,%s", i+1, strconv.FormatFloat(ll, 'g', -1, 64)))
	}
	err = writeLines(dir+"/loglikelihood"+csvext, gz, trace)
	if err != nil {
		return err
	}

	summary.SNVs = len(res.SNVs)
	summary.Barcodes = len(res.Barcodes)
	summary.Unassigned = res.Unassigned()
	summary.Assigned = make([]int, len(res.Assigned))
	for k, bcs := range res.Assigned {
		summary.Assigned[k] = len(bcs)
	}
	if n := len(res.LogLikelihood); n > 0 {
		summary.LogLikelihood = res.LogLikelihood[n-1]
	}
	buf, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(dir+"/summary.json", append(buf, '\n'), 0666)
}

// hashFile returns the hex blake2b-256 digest of the raw (still
// compressed, if applicable) file content.
func hashFile(fnm string) (string, error) {
	f, err := open(fnm)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	_, err = io.Copy(h, f)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
