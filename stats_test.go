// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mafsplit

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"os"

	"gopkg.in/check.v1"
)

type statsSuite struct{}

var _ = check.Suite(&statsSuite{})

func (s *statsSuite) TestCoverageStats(c *check.C) {
	tmpdir := c.MkDir()
	c.Assert(ioutil.WriteFile(tmpdir+"/ref.csv", []byte(refCSV), 0644), check.IsNil)
	c.Assert(ioutil.WriteFile(tmpdir+"/alt.csv", []byte(altCSV), 0644), check.IsNil)
	counts, err := countSource{Ref: tmpdir + "/ref.csv", Alt: tmpdir + "/alt.csv"}.load()
	c.Assert(err, check.IsNil)

	report := coverageStats(counts)
	c.Check(report.SNVs, check.Equals, 3)
	c.Check(report.Barcodes, check.Equals, 3)
	c.Check(report.RefNonZero, check.Equals, 3)
	c.Check(report.AltNonZero, check.Equals, 4)
	c.Check(report.TotalRef, check.Equals, 6.0)
	c.Check(report.TotalAlt, check.Equals, 11.0)
	c.Check(report.CoveredSNVsPerBarcode.Mean, check.Equals, 2.0)
	c.Check(report.CoveredSNVsPerBarcode.StdDev, check.Equals, 1.0)
	c.Check(report.CoveredSNVsPerBarcode.Median, check.Equals, 2.0)
	c.Check(report.CoveredSNVsPerBarcode.Max, check.Equals, 3.0)
	c.Check(report.CoveredBarcodesPerSNV.Max, check.Equals, 3.0)
	c.Check(report.DepthPerBarcode.Max, check.Equals, 8.0)
	c.Check(report.UncoveredBarcodes, check.Equals, 0)
	c.Check(report.UncoveredSNVs, check.Equals, 0)
}

func (s *statsSuite) TestUncovered(c *check.C) {
	tmpdir := c.MkDir()
	c.Assert(ioutil.WriteFile(tmpdir+"/ref.csv", []byte(",a,b,c\nsnv1,1,0,0\nsnv2,0,0,0\n"), 0644), check.IsNil)
	c.Assert(ioutil.WriteFile(tmpdir+"/alt.csv", []byte(",a,b,c\nsnv1,0,0,2\nsnv2,0,0,0\n"), 0644), check.IsNil)

	var stdout bytes.Buffer
	exited := (&statscmd{}).RunCommand("stats", []string{"-local=true", "-ref", tmpdir + "/ref.csv", "-alt", tmpdir + "/alt.csv"}, nil, &stdout, os.Stderr)
	c.Assert(exited, check.Equals, 0)
	var report coverageReport
	c.Assert(json.Unmarshal(stdout.Bytes(), &report), check.IsNil)
	c.Check(report.UncoveredBarcodes, check.Equals, 1)
	c.Check(report.UncoveredBarcodeSample, check.DeepEquals, []string{"b"})
	c.Check(report.UncoveredSNVs, check.Equals, 1)
	c.Check(report.CoveredSNVsPerBarcode.Max, check.Equals, 1.0)
}

func (s *statsSuite) TestOutputFile(c *check.C) {
	tmpdir := c.MkDir()
	writePooledCounts(c, tmpdir)
	exited := (&statscmd{}).RunCommand("stats", []string{"-local=true", "-ref", tmpdir + "/ref.csv", "-alt", tmpdir + "/alt.csv", "-o", tmpdir + "/stats.json"}, nil, os.Stderr, os.Stderr)
	c.Assert(exited, check.Equals, 0)
	buf, err := ioutil.ReadFile(tmpdir + "/stats.json")
	c.Assert(err, check.IsNil)
	var report coverageReport
	c.Assert(json.Unmarshal(buf, &report), check.IsNil)
	c.Check(report.SNVs, check.Equals, 40)
	c.Check(report.Barcodes, check.Equals, 20)
	c.Check(report.UncoveredBarcodes, check.Equals, 0)
}

func (s *statsSuite) TestRefAndAltAtSameSite(c *check.C) {
	tmpdir := c.MkDir()
	c.Assert(ioutil.WriteFile(tmpdir+"/ref.csv", []byte(",a,b\nsnv1,1,2\nsnv2,3,0\nsnv3,1,1\n"), 0644), check.IsNil)
	c.Assert(ioutil.WriteFile(tmpdir+"/alt.csv", []byte(",a,b\nsnv1,1,2\nsnv2,0,4\nsnv3,2,0\n"), 0644), check.IsNil)
	counts, err := countSource{Ref: tmpdir + "/ref.csv", Alt: tmpdir + "/alt.csv"}.load()
	c.Assert(err, check.IsNil)
	report := coverageStats(counts)
	c.Check(report.CoveredSNVsPerBarcode.Max, check.Equals, 3.0)
	c.Check(report.CoveredSNVsPerBarcode.Mean, check.Equals, 3.0)
	c.Check(report.CoveredBarcodesPerSNV.Max, check.Equals, 2.0)
	c.Check(report.DepthPerBarcode.Max, check.Equals, 9.0)
	c.Check(report.UncoveredBarcodes, check.Equals, 0)
}
