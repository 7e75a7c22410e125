// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"github.com/radkit/locifilter/snpstring"
)

// pairSpacer separates read1 from read2 in a paired locus.
const pairSpacer = "nnnn"

// block is a contiguous slice of loci for a subset of sample rows,
// one byte per site.
type block struct {
	nloci    int
	nsamples int
	width    int
	seqs     []byte // [locus][sample][site]
	splits   []int  // per locus, first column of the read1/read2 spacer (nil if single-end)
}

func (blk *block) row(locus, sample int) []byte {
	off := (locus*blk.nsamples + sample) * blk.width
	return blk.seqs[off : off+blk.width]
}

// column fills buf with the bases of all samples at one site.
func (blk *block) column(locus, site int, buf []byte) []byte {
	buf = buf[:0]
	for s := 0; s < blk.nsamples; s++ {
		buf = append(buf, blk.seqs[(locus*blk.nsamples+s)*blk.width+site])
	}
	return buf
}

// normalize maps every byte to its canonical form, so that gaps,
// padding and N all become snpstring.Missing.
func (blk *block) normalize() {
	for i, b := range blk.seqs {
		blk.seqs[i] = snpstring.Normalize(b)
	}
}

// coverage returns, for one locus, the number of samples with data at
// each site.
func (blk *block) coverage(locus int) []int {
	ccx := make([]int, blk.width)
	for s := 0; s < blk.nsamples; s++ {
		for site, b := range blk.row(locus, s) {
			if b != snpstring.Missing {
				ccx[site]++
			}
		}
	}
	return ccx
}

// sides returns the untrimmed column ranges [lo, hi) of read side 1
// and (if paired) read side 2 for one locus.
func (blk *block) sides(locus int) (r1, r2 [2]int, paired bool) {
	if blk.splits == nil {
		return [2]int{0, blk.width}, [2]int{}, false
	}
	split := blk.splits[locus]
	if split < 0 {
		split = 0
	}
	if split > blk.width {
		split = blk.width
	}
	r2lo := split + len(pairSpacer)
	if r2lo > blk.width {
		r2lo = blk.width
	}
	return [2]int{0, split}, [2]int{r2lo, blk.width}, true
}
