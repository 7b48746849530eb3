// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mafsplit

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/arvados/mafsplit/em"
	"github.com/james-bowman/sparse"
	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
)

// countMatrix is one parsed ref or alt input file.
type countMatrix struct {
	snvs     []string
	barcodes []string
	mtx      *sparse.CSR
}

// readCountsCSV parses a count matrix with barcodes across the first
// row and one SNV per subsequent row:
//
//	,AAACCTGA-1,AAACCTGC-1
//	chr1:14574,0,3
//	chr1:14590,1,0
//
// The content of the top-left cell is ignored. Empty fields are
// zero.
func readCountsCSV(rdr io.Reader, comma rune) (*countMatrix, error) {
	r := csv.NewReader(bufio.NewReaderSize(rdr, 1<<20))
	r.Comma = comma
	r.ReuseRecord = true
	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty count matrix", em.ErrInvalidInput)
	} else if err != nil {
		return nil, err
	}
	cm := &countMatrix{barcodes: append([]string(nil), header[1:]...)}
	builder := em.NewRowBuilder(len(cm.barcodes))
	var cols []int
	var vals []float64
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		line, _ := r.FieldPos(0)
		cols, vals = cols[:0], vals[:0]
		for j, field := range rec[1:] {
			if field == "" || field == "0" {
				continue
			}
			n, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d column %d: %s", em.ErrInvalidInput, line, j+2, err)
			}
			cols = append(cols, j)
			vals = append(vals, n)
		}
		err = builder.AddSparseRow(cols, vals)
		if err != nil {
			return nil, err
		}
		cm.snvs = append(cm.snvs, rec[0])
	}
	cm.mtx = builder.CSR()
	return cm, nil
}

// readCountsNpy reads a 2-D numpy array (SNVs x barcodes) of any
// integer or float dtype.
func readCountsNpy(rdr io.Reader) (*countMatrix, error) {
	npy, err := gonpy.NewReader(rdr)
	if err != nil {
		return nil, err
	}
	if len(npy.Shape) != 2 {
		return nil, fmt.Errorf("%w: numpy array has shape %v, expected 2 dimensions", em.ErrInvalidInput, npy.Shape)
	}
	data, err := npyFloat64(npy)
	if err != nil {
		return nil, err
	}
	rows, cols := npy.Shape[0], npy.Shape[1]
	builder := em.NewRowBuilder(cols)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j := range row {
			if npy.ColumnMajor {
				row[j] = data[j*rows+i]
			} else {
				row[j] = data[i*cols+j]
			}
		}
		err = builder.AddRow(row)
		if err != nil {
			return nil, err
		}
	}
	return &countMatrix{
		snvs:     syntheticNames("snv", rows),
		barcodes: syntheticNames("barcode", cols),
		mtx:      builder.CSR(),
	}, nil
}

func npyFloat64(npy *gonpy.NpyReader) ([]float64, error) {
	switch npy.Dtype {
	case "f8":
		return npy.GetFloat64()
	case "f4":
		return convert(npy.GetFloat32())
	case "i8":
		return convert(npy.GetInt64())
	case "i4":
		return convert(npy.GetInt32())
	case "i2":
		return convert(npy.GetInt16())
	case "i1":
		return convert(npy.GetInt8())
	case "u8":
		return convert(npy.GetUint64())
	case "u4":
		return convert(npy.GetUint32())
	case "u2":
		return convert(npy.GetUint16())
	case "u1":
		return convert(npy.GetUint8())
	default:
		return nil, fmt.Errorf("%w: unsupported numpy dtype %q", em.ErrInvalidInput, npy.Dtype)
	}
}

type number interface {
	~float32 | ~float64 | ~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

func convert[T number](in []T, err error) ([]float64, error) {
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out, nil
}

func syntheticNames(prefix string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return names
}

// readNames reads one identifier per line, ignoring blank lines.
func readNames(fnm string) ([]string, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range bytes.Split(buf, []byte{'\n'}) {
		if name := strings.TrimSpace(string(line)); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func readCountMatrix(fnm string) (*countMatrix, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	base := strings.TrimSuffix(fnm, ".gz")
	var cm *countMatrix
	switch {
	case strings.HasSuffix(base, ".npy"):
		cm, err = readCountsNpy(f)
	case strings.HasSuffix(base, ".tsv"):
		cm, err = readCountsCSV(f, '\t')
	default:
		cm, err = readCountsCSV(f, ',')
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	return cm, f.Close()
}

// countSource names the files that make up one input.
type countSource struct {
	Ref      string
	Alt      string
	SNVs     string // optional, one SNV per line
	Barcodes string // optional, one barcode per line
}

// load reads the ref and alt matrices concurrently and checks that
// they describe the same SNVs and barcodes in the same order.
func (src countSource) load() (*em.Counts, error) {
	var ref, alt *countMatrix
	var refErr, altErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ref, refErr = readCountMatrix(src.Ref)
	}()
	go func() {
		defer wg.Done()
		alt, altErr = readCountMatrix(src.Alt)
	}()
	wg.Wait()
	if refErr != nil {
		return nil, refErr
	} else if altErr != nil {
		return nil, altErr
	}
	log.WithFields(log.Fields{
		"ref":    src.Ref,
		"alt":    src.Alt,
		"refNNZ": ref.mtx.NNZ(),
		"altNNZ": alt.mtx.NNZ(),
	}).Info("read count matrices")

	snvs, barcodes := ref.snvs, ref.barcodes
	if src.SNVs != "" {
		names, err := readNames(src.SNVs)
		if err != nil {
			return nil, err
		}
		snvs, alt.snvs = names, names
	}
	if src.Barcodes != "" {
		names, err := readNames(src.Barcodes)
		if err != nil {
			return nil, err
		}
		barcodes, alt.barcodes = names, names
	}
	if err := sameNames("SNV", snvs, alt.snvs); err != nil {
		return nil, err
	}
	if err := sameNames("barcode", barcodes, alt.barcodes); err != nil {
		return nil, err
	}
	counts := &em.Counts{
		SNVs:     snvs,
		Barcodes: barcodes,
		Ref:      ref.mtx,
		Alt:      alt.mtx,
	}
	return counts, counts.Validate()
}

func sameNames(what string, a, b []string) error {
	if len(a) != len(b) {
		return fmt.Errorf("%w: ref matrix has %d %ss but alt matrix has %d", em.ErrInvalidInput, len(a), what, len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			return fmt.Errorf("%w: %s %d is %q in ref matrix but %q in alt matrix", em.ErrInvalidInput, what, i, a[i], b[i])
		}
	}
	return nil
}
