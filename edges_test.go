// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"strings"

	"gopkg.in/check.v1"
)

// testBlock returns a normalized block with one locus per element of
// loci. Rows shorter than the longest row are padded with Missing.
// For paired blocks the split is the position of "nnnn" in the first
// row that has one.
func testBlock(paired bool, loci ...[]string) *block {
	blk := &block{nloci: len(loci), nsamples: len(loci[0])}
	for _, rows := range loci {
		for _, row := range rows {
			if len(row) > blk.width {
				blk.width = len(row)
			}
		}
	}
	for _, rows := range loci {
		split := -1
		for _, row := range rows {
			blk.seqs = append(blk.seqs, row+strings.Repeat("N", blk.width-len(row))...)
			if i := strings.Index(row, pairSpacer); split < 0 && i >= 0 {
				split = i
			}
		}
		if paired {
			blk.splits = append(blk.splits, split)
		}
	}
	blk.normalize()
	return blk
}

type edgesSuite struct{}

var _ = check.Suite(&edgesSuite{})

func (s *edgesSuite) TestAllSamplesRequired(c *check.C) {
	p := defaultParams()
	p.EdgeTrimming = [4]int{trimAll, trimAll, 0, 0}
	blk := testBlock(false, []string{"ACGT", "ACGT", "NNNN", "NNNN"})
	e, failed := trimEdges(&p, blk)
	c.Check(failed, check.DeepEquals, []bool{true})
	c.Check(e[0], check.Equals, edges{})

	p.EdgeTrimming = [4]int{trimMin4, trimMin4, 0, 0}
	_, failed = trimEdges(&p, blk)
	c.Check(failed, check.DeepEquals, []bool{true})

	p.EdgeTrimming = [4]int{trimOverhang, trimOverhang, 0, 0}
	e, failed = trimEdges(&p, blk)
	c.Check(failed, check.DeepEquals, []bool{false})
	c.Check(e[0], check.Equals, edges{0, 4, 0, 0})
}

func (s *edgesSuite) TestThresholds(c *check.C) {
	p := defaultParams()
	p.MinSamplesLocus = 2
	p.EdgeTrimming = [4]int{trimNone, trimMin4, trimMinSamp, trimAll}
	c.Check(edgeThresholds(&p, 10), check.Equals, [4]int{0, 4, 2, 10})
	c.Check(edgeThresholds(&p, 3), check.Equals, [4]int{0, 3, 2, 3})
}

func (s *edgesSuite) TestCoverageTrim(c *check.C) {
	p := defaultParams()
	p.MinSamplesLocus = 3
	p.EdgeTrimming = [4]int{trimMinSamp, trimAll, 0, 0}
	blk := testBlock(false,
		[]string{
			"NNAAAAAANN",
			"NAAAAAAANN",
			"NNNAAAAAAA",
			"AAAAAAAANN",
		},
		[]string{
			"NNNNAAAA",
			"NNNNNNNN",
			"AAAANNNN",
			"NNNNNNNN",
		})
	e, failed := trimEdges(&p, blk)
	c.Check(failed, check.DeepEquals, []bool{false, true})
	// leftmost column with >= 3 samples is 2; rightmost column with
	// all 4 samples is 7.
	c.Check(e[0], check.Equals, edges{2, 8, 0, 0})
	c.Check(e[1], check.Equals, edges{})
}

func (s *edgesSuite) TestOverhang(c *check.C) {
	p := defaultParams()
	p.RestrictionOverhang = [2]string{"TGCAG", ""}
	blk := testBlock(false, []string{"NNTGCAGAAAA", "NNTGCAGAAAA"})

	p.EdgeTrimming = [4]int{trimOverhang, 0, 0, 0}
	e, failed := trimEdges(&p, blk)
	c.Check(failed[0], check.Equals, false)
	c.Check(e[0], check.Equals, edges{7, 11, 0, 0})

	// Mode 0 keeps the leading no-data columns too.
	p.EdgeTrimming = [4]int{trimNone, 0, 0, 0}
	e, failed = trimEdges(&p, blk)
	c.Check(failed[0], check.Equals, false)
	c.Check(e[0], check.Equals, edges{0, 11, 0, 0})

	// Nothing left after removing the overhang.
	blk = testBlock(false, []string{"TGCAG", "TGCAG"})
	p.EdgeTrimming = [4]int{trimOverhang, 0, 0, 0}
	_, failed = trimEdges(&p, blk)
	c.Check(failed[0], check.Equals, true)
}

func (s *edgesSuite) TestPaired(c *check.C) {
	p := defaultParams()
	p.Datatype = "pairddrad"
	p.RestrictionOverhang = [2]string{"TGCAG", "GG"}
	p.EdgeTrimming = [4]int{trimNone, trimNone, trimNone, trimOverhang}
	blk := testBlock(true,
		[]string{
			"AAAAnnnnCCCCCC",
			"NAAAnnnnCCCCNN",
		},
		[]string{
			"AAAAnnnnNNNNNN",
			"AAAAnnnnNNNNNN",
		})
	e, failed := trimEdges(&p, blk)
	c.Check(failed, check.DeepEquals, []bool{false, true})
	c.Check(e[0], check.Equals, edges{0, 4, 8, 12})
	c.Check(e[1], check.Equals, edges{})

	lo, hi := e[0].side(1)
	c.Check(lo, check.Equals, 8)
	c.Check(hi, check.Equals, 12)
}

func (s *edgesSuite) TestNoTrimming(c *check.C) {
	p := defaultParams()
	p.RestrictionOverhang = [2]string{"TGCAG", "GG"}
	blk := testBlock(false,
		[]string{"NNACGTNN", "NNNCGTAN"},
		[]string{"NNNNNNNN", "NNNNNNNN"})
	e, failed := trimEdges(&p, blk)
	// Neither coverage nor overhang trimming, and a locus with no
	// data does not fail here.
	c.Check(failed, check.DeepEquals, []bool{false, false})
	c.Check(e[0], check.Equals, edges{0, 8, 0, 0})
	c.Check(e[1], check.Equals, edges{0, 8, 0, 0})

	p.EdgeTrimming = [4]int{trimOverhang, trimOverhang, 0, 0}
	p.RestrictionOverhang = [2]string{"", ""}
	e, failed = trimEdges(&p, blk)
	c.Check(failed, check.DeepEquals, []bool{false, true})
	c.Check(e[0], check.Equals, edges{2, 7, 0, 0})
}
