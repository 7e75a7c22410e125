// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"flag"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/check.v1"
)

type paramsSuite struct{}

var _ = check.Suite(&paramsSuite{})

func (s *paramsSuite) writeParams(c *check.C, content string) string {
	fnm := filepath.Join(c.MkDir(), "params.toml")
	c.Assert(os.WriteFile(fnm, []byte(content), 0666), check.IsNil)
	return fnm
}

func (s *paramsSuite) TestLoadFile(c *check.C) {
	fnm := s.writeParams(c, `
assembly_name = "test"
datatype = "pairddrad"
restriction_overhang = ["TGCAG", "CCG"]
min_samples_locus = 2
max_shared_Hs_locus = [0.25, 3.0]
max_SNPs_locus = [5, 7]
edge_trimming = [1, 2, 3, 4]
excludes = ["a"]
outgroups = ["b", "c"]
output_formats = ["phy", "vcf"]
`)
	p, err := loadParams(fnm, nil)
	c.Assert(err, check.IsNil)
	c.Check(p.Name, check.Equals, "test")
	c.Check(p.Paired(), check.Equals, true)
	c.Check(p.RestrictionOverhang, check.Equals, stringPair{"TGCAG", "CCG"})
	c.Check(p.MinSamplesLocus, check.Equals, 2)
	c.Check(p.MaxSharedHs, check.Equals, floatPair{0.25, 3})
	c.Check(p.MaxSNPsLocus, check.Equals, intPair{5, 7})
	c.Check(p.EdgeTrimming, check.Equals, [4]int{1, 2, 3, 4})
	c.Check(p.excluded(), check.DeepEquals, map[string]bool{"a": true, "b": true, "c": true})
	c.Check(p.OutputFormats, check.DeepEquals, []string{"phy", "vcf"})

	c.Check(p.maxSharedHs(0, 8), check.Equals, 2.0)
	c.Check(p.maxSharedHs(1, 8), check.Equals, 3.0)
}

func (s *paramsSuite) TestPerSideValues(c *check.C) {
	fnm := s.writeParams(c, `
restriction_overhang = ["TGCAG"]
max_shared_Hs_locus = [3, 3]
max_SNPs_locus = 10
`)
	p, err := loadParams(fnm, nil)
	c.Assert(err, check.IsNil)
	c.Check(p.RestrictionOverhang, check.Equals, stringPair{"TGCAG", ""})
	c.Check(p.MaxSharedHs, check.Equals, floatPair{3, 3})
	c.Check(p.MaxSNPsLocus, check.Equals, intPair{10, 10})
	c.Check(p.maxSharedHs(1, 8), check.Equals, 3.0)

	p, err = loadParams(s.writeParams(c, `max_shared_Hs_locus = 0.4`), nil)
	c.Assert(err, check.IsNil)
	c.Check(p.MaxSharedHs, check.Equals, floatPair{0.4, 0.4})
}

func (s *paramsSuite) TestFlagOverrides(c *check.C) {
	fnm := s.writeParams(c, `
min_samples_locus = 2
max_SNPs_locus = [5, 7]
`)
	p := defaultParams()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	p.Flags(flags)
	err := flags.Parse([]string{"-max-snps=9", "-edge-trimming=0,0,2,2", "-outgroups=x,y", "-output-formats=*"})
	c.Assert(err, check.IsNil)
	p, err = loadParams(fnm, flags)
	c.Assert(err, check.IsNil)
	c.Check(p.MinSamplesLocus, check.Equals, 2)
	c.Check(p.MaxSNPsLocus, check.Equals, intPair{9, 9})
	c.Check(p.EdgeTrimming, check.Equals, [4]int{0, 0, 2, 2})
	c.Check(p.Outgroups, check.DeepEquals, []string{"x", "y"})
	c.Check(p.OutputFormats, check.DeepEquals, []string{"*"})

	// Defaults apply when nothing is given.
	p, err = loadParams("", nil)
	c.Assert(err, check.IsNil)
	c.Check(p, check.DeepEquals, defaultParams())
}

func (s *paramsSuite) TestInvalid(c *check.C) {
	for _, trial := range []struct {
		toml string
		err  string
	}{
		{`min_samples_locus = 0`, `min_samples_locus must be >= 1.*`},
		{`edge_trimming = [0, 0, 5, 0]`, `edge_trimming\[2\] must be in 0..4.*`},
		{`datatype = "paired"`, `datatype "paired" not recognized`},
		{`max_SNPs_locus = [-1, 3]`, `max_SNPs_locus\[0\] must be >= 0.*`},
		{`output_formats = ["treemix"]`, `output format "treemix" not supported.*`},
		{`restriction_overhang = ["TG!", ""]`, `restriction_overhang\[0\]: invalid base.*`},
		{`no_such_param = 1`, `.*unknown parameter "no_such_param"`},
		{`min_samples_locus = "four"`, `.*params.toml: .*`},
		{`max_shared_Hs_locus = ["x", "y"]`, `.*expected a number, got string`},
		{`max_SNPs_locus = [1, 2, 3]`, `.*expected 1 or 2 values, got 3`},
		{`max_SNPs_locus = [1.5, 2.5]`, `.*expected an integer, got float64`},
		{`restriction_overhang = [5]`, `.*expected a string, got int64`},
	} {
		c.Logf("%s", trial.toml)
		_, err := loadParams(s.writeParams(c, trial.toml), nil)
		c.Check(err, check.ErrorMatches, trial.err)
	}
}

func (s *paramsSuite) TestFlagValues(c *check.C) {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	p := defaultParams()
	p.Flags(flags)
	c.Check(flags.Parse([]string{"-max-snps=1,2,3"}), check.NotNil)
	c.Check(flags.Parse([]string{"-edge-trimming=1,2"}), check.NotNil)
	c.Check(flags.Parse([]string{"-max-shared-hs=0.1,4"}), check.IsNil)
	c.Check(p.MaxSharedHs, check.Equals, floatPair{0.1, 4})
	c.Check(flags.Parse([]string{"-restriction-overhang=TGCAG"}), check.IsNil)
	c.Check(p.RestrictionOverhang, check.Equals, stringPair{"TGCAG", ""})
}
