// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"gopkg.in/check.v1"
)

type filterSuite struct{}

var _ = check.Suite(&filterSuite{})

// fullEdges returns untrimmed single-end edges for every locus.
func fullEdges(blk *block) []edges {
	e := make([]edges, blk.nloci)
	for i := range e {
		e[i] = edges{0, blk.width, 0, 0}
	}
	return e
}

func (s *filterSuite) TestOutcome(c *check.C) {
	var o outcome
	c.Check(len(o), check.Equals, 6)
	c.Check(o.pass(), check.Equals, true)
	for k := filterDup; k < nFilters; k++ {
		o := outcome{}
		o[k] = true
		c.Check(o.pass(), check.Equals, false)
	}
}

func (s *filterSuite) TestMinSamp(c *check.C) {
	p := defaultParams()
	p.MinSamplesLocus = 3
	blk := testBlock(false,
		[]string{"ACGT", "NNNA", "----", "NNNN"},
		[]string{"ACGT", "NNNA", "A---", "NNNN"})
	c.Check(minSampFilter(&p, blk), check.DeepEquals, []bool{true, false})
}

func (s *filterSuite) TestMaxSNPBoundary(c *check.C) {
	p := defaultParams()
	p.MaxSNPsLocus = [2]int{2, 2}
	blk := testBlock(false,
		// 2 variable sites: passes
		[]string{"AAAA", "AAAA", "TTAA", "TTAA"},
		// 3 variable sites (mixed - and *): fails
		[]string{"AAAA", "AAAA", "TTAA", "TCGA"},
		// 3 variable sites, but only 2 inside the trimmed range
		[]string{"AAAA", "AAAA", "TTAA", "TCGA"})
	e := fullEdges(blk)
	e[2] = edges{1, 4, 0, 0}
	snps := annotate(blk)
	c.Check(string(snps[0]), check.Equals, "**  ")
	c.Check(string(snps[1]), check.Equals, "*-- ")
	failed, nsnps := maxSNPFilter(&p, blk, e, snps)
	c.Check(failed, check.DeepEquals, []bool{false, true, false})
	c.Check(nsnps, check.DeepEquals, []int{2, 3, 2})
}

func (s *filterSuite) TestMaxSNPPaired(c *check.C) {
	p := defaultParams()
	p.MaxSNPsLocus = [2]int{1, 0}
	blk := testBlock(true,
		[]string{"AAnnnnAA", "TAnnnnAA", "TAnnnnAA"},
		[]string{"AAnnnnAA", "AAnnnnAT", "AAnnnnAT"})
	e := []edges{{0, 2, 6, 8}, {0, 2, 6, 8}}
	failed, _ := maxSNPFilter(&p, blk, e, annotate(blk))
	c.Check(failed, check.DeepEquals, []bool{false, true})
}

func (s *filterSuite) TestSharedHets(c *check.C) {
	blk := testBlock(false, []string{"RAK", "RAK", "AAA", "AAY"})
	c.Check(sharedHets(blk, 0, 0, 3), check.Equals, 2)
	c.Check(sharedHets(blk, 0, 1, 3), check.Equals, 2)
	c.Check(sharedHets(blk, 0, 1, 2), check.Equals, 0)

	// Adding another sample with the same code at the site bearing
	// the maximum never decreases the result.
	prev := sharedHets(blk, 0, 0, 3)
	blk.row(0, 2)[0] = 'R'
	c.Check(sharedHets(blk, 0, 0, 3) >= prev, check.Equals, true)
	c.Check(sharedHets(blk, 0, 0, 3), check.Equals, 3)
	prev = 3
	blk.row(0, 3)[1] = 'M'
	c.Check(sharedHets(blk, 0, 0, 3) >= prev, check.Equals, true)
}

func (s *filterSuite) TestMaxHet(c *check.C) {
	p := defaultParams()
	p.MaxSharedHs = [2]float64{0.5, 0.5} // 2 of 4 samples
	blk := testBlock(false,
		[]string{"RAAA", "RAAA", "AAAA", "AAAA"},
		[]string{"RAAA", "RAAA", "RAAA", "AAAA"},
		[]string{"RAAA", "RAAA", "RAAA", "AAAA"})
	e := fullEdges(blk)
	e[2] = edges{1, 4, 0, 0}
	c.Check(maxHetFilter(&p, blk, e), check.DeepEquals, []bool{false, true, false})

	p.MaxSharedHs = [2]float64{3, 3}
	c.Check(maxHetFilter(&p, blk, e), check.DeepEquals, []bool{false, false, false})
}

func (s *filterSuite) TestMaxHetPaired(c *check.C) {
	p := defaultParams()
	p.MaxSharedHs = [2]float64{2, 1}
	blk := testBlock(true,
		[]string{"RAnnnnAY", "RAnnnnAY", "AAnnnnAA"},
		[]string{"RAnnnnAA", "RAnnnnAA", "AAnnnnAA"})
	e := []edges{{0, 2, 6, 8}, {0, 2, 6, 8}}
	c.Check(maxHetFilter(&p, blk, e), check.DeepEquals, []bool{true, false})
}
