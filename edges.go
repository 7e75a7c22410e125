// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

// edges holds the retained column ranges of a locus as two half-open
// intervals: [r1lo, r1hi) for read side 1 and [r2lo, r2hi) for read
// side 2. Side 2 is {0, 0} for single-end data and for loci that
// failed edge trimming.
type edges [4]int

func (e edges) side(i int) (lo, hi int) {
	return e[2*i], e[2*i+1]
}

// edgeThresholds converts the edge trimming modes to the minimum
// number of samples with data required at each edge column. Zero
// (trimNone) accepts every column, so that edge is not trimmed.
func edgeThresholds(p *Params, nsamples int) (thresh [4]int) {
	for i, mode := range p.EdgeTrimming {
		switch mode {
		case trimNone:
			thresh[i] = 0
			continue
		case trimMin4:
			thresh[i] = 4
			if nsamples < 4 {
				thresh[i] = nsamples
			}
		case trimMinSamp:
			thresh[i] = p.MinSamplesLocus
		case trimAll:
			thresh[i] = nsamples
		default:
			// trimOverhang still drops columns with no data
			// at all (padding).
			thresh[i] = 1
		}
		if thresh[i] < 1 {
			thresh[i] = 1
		}
	}
	return
}

// trimEdges finds the retained range of each read side of each
// locus. failed[i] is true if some side of locus i has no column
// meeting its coverage threshold, or nothing is left once the
// restriction overhang is removed. A side whose edges are both
// trimNone keeps its whole untrimmed range.
func trimEdges(p *Params, blk *block) (out []edges, failed []bool) {
	thresh := edgeThresholds(p, blk.nsamples)
	cut1, cut2 := len(p.RestrictionOverhang[0]), len(p.RestrictionOverhang[1])
	out = make([]edges, blk.nloci)
	failed = make([]bool, blk.nloci)
	for locus := 0; locus < blk.nloci; locus++ {
		ccx := blk.coverage(locus)
		r1, r2, paired := blk.sides(locus)

		var e edges
		lo, hi, ok := trimSide(ccx, r1, thresh[0], thresh[1])
		if ok && p.EdgeTrimming[0] != trimNone {
			lo += cut1
		}
		e[0], e[1] = lo, hi
		if !ok || lo >= hi {
			failed[locus] = true
		}
		if paired {
			lo, hi, ok = trimSide(ccx, r2, thresh[2], thresh[3])
			if ok && p.EdgeTrimming[3] != trimNone {
				hi -= cut2
			}
			e[2], e[3] = lo, hi
			if !ok || lo >= hi {
				failed[locus] = true
			}
		}
		if !failed[locus] {
			out[locus] = e
		}
	}
	return
}

// trimSide returns the half-open range from the leftmost column in
// span with at least left samples to the rightmost column with at
// least right samples.
func trimSide(ccx []int, span [2]int, left, right int) (lo, hi int, ok bool) {
	lo, hi = -1, -1
	for col := span[0]; col < span[1]; col++ {
		if ccx[col] >= left {
			lo = col
			break
		}
	}
	for col := span[1] - 1; col >= span[0]; col-- {
		if ccx[col] >= right {
			hi = col + 1
			break
		}
	}
	if lo < 0 || hi < 0 {
		return 0, 0, false
	}
	return lo, hi, true
}
