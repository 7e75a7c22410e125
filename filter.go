// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"github.com/radkit/locifilter/snpstring"
)

// filterKind indexes the per-locus filter outcome vector.
type filterKind int

const (
	filterDup filterKind = iota
	filterIndel
	filterEdge
	filterMinSamp
	filterMaxHet
	filterMaxSNP
	nFilters
)

var filterNames = [nFilters]string{
	"duplicates",
	"indels",
	"edge_trimming",
	"min_samples_locus",
	"max_shared_Hs_locus",
	"max_SNPs_locus",
}

// outcome has one flag per filter kind; true means the locus failed
// that filter. Duplicate and indel filtering happen upstream, so
// those flags are always false here.
type outcome [nFilters]bool

func (o outcome) pass() bool {
	for _, failed := range o {
		if failed {
			return false
		}
	}
	return true
}

// minSampFilter flags loci where fewer than min_samples_locus samples
// have any data across the untrimmed locus.
func minSampFilter(p *Params, blk *block) []bool {
	failed := make([]bool, blk.nloci)
	for locus := 0; locus < blk.nloci; locus++ {
		present := 0
		for s := 0; s < blk.nsamples; s++ {
			for _, b := range blk.row(locus, s) {
				if b != snpstring.Missing {
					present++
					break
				}
			}
		}
		failed[locus] = present < p.MinSamplesLocus
	}
	return failed
}

// sharedHets returns, over columns [lo, hi) of one locus, the largest
// number of samples sharing the same ambiguity code at one site.
func sharedHets(blk *block, locus, lo, hi int) int {
	var ambigIndex [256]int
	for i := range ambigIndex {
		ambigIndex[i] = -1
	}
	for i := 0; i < len(snpstring.Ambiguities); i++ {
		ambigIndex[snpstring.Ambiguities[i]] = i
	}
	max := 0
	var count [len(snpstring.Ambiguities)]int
	for site := lo; site < hi; site++ {
		count = [len(snpstring.Ambiguities)]int{}
		for s := 0; s < blk.nsamples; s++ {
			if i := ambigIndex[blk.row(locus, s)[site]]; i >= 0 {
				count[i]++
				if count[i] > max {
					max = count[i]
				}
			}
		}
	}
	return max
}

// maxHetFilter flags loci where, on any read side, more samples than
// allowed share a heterozygous call at one trimmed site.
func maxHetFilter(p *Params, blk *block, e []edges) []bool {
	failed := make([]bool, blk.nloci)
	nsides := 1
	if blk.splits != nil {
		nsides = 2
	}
	for locus := 0; locus < blk.nloci; locus++ {
		for side := 0; side < nsides; side++ {
			lo, hi := e[locus].side(side)
			if float64(sharedHets(blk, locus, lo, hi)) > p.maxSharedHs(side, blk.nsamples) {
				failed[locus] = true
			}
		}
	}
	return failed
}

// maxSNPFilter flags loci where any read side has more variable sites
// within its trimmed range than allowed. snps holds the per-site
// annotation of every locus, as returned by annotate.
func maxSNPFilter(p *Params, blk *block, e []edges, snps [][]byte) (failed []bool, nsnps []int) {
	failed = make([]bool, blk.nloci)
	nsnps = make([]int, blk.nloci)
	nsides := 1
	if blk.splits != nil {
		nsides = 2
	}
	for locus := 0; locus < blk.nloci; locus++ {
		for side := 0; side < nsides; side++ {
			lo, hi := e[locus].side(side)
			n := snpstring.Count(snps[locus][lo:hi])
			nsnps[locus] += n
			if n > p.MaxSNPsLocus[side] {
				failed[locus] = true
			}
		}
	}
	return
}

// annotate classifies every site of every locus in the block. The
// result is shared by the SNP filter and the .loci annotation line.
func annotate(blk *block) [][]byte {
	snps := make([][]byte, blk.nloci)
	column := make([]byte, 0, blk.nsamples)
	for locus := range snps {
		line := make([]byte, blk.width)
		for site := range line {
			column = blk.column(locus, site, column)
			line[site] = snpstring.Classify(column)
		}
		snps[locus] = line
	}
	return snps
}
