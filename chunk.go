// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/radkit/locifilter/snpstring"
	log "github.com/sirupsen/logrus"
)

// chunkTask filters loci [start, end) of the store for the selected
// sample rows. It only reads from the store; its output goes to its
// own file in the scratch directory.
type chunkTask struct {
	store   *arrayStore
	params  *Params
	sidx    []int
	names   []string // names of the rows in sidx
	start   int
	end     int
	scratch string

	// name column width shared by all chunks, so that chunk
	// files can be concatenated as is
	lociWidth int
}

// chunkResult is the write-once outcome of one chunk task.
type chunkResult struct {
	Start, End int
	Outcomes   []outcome // per locus
	Edges      []edges   // per locus, zero if edge trimming failed
	NSNPs      []int     // per locus, variable sites within the trimmed range
	SampleLoci []int     // per selected sample, retained loci with data
	Filename   string    // passing loci in .loci format
}

// chunkError identifies the slice of the store a failed task was
// working on.
type chunkError struct {
	Start, End int
	Err        error
}

func (e *chunkError) Error() string {
	return fmt.Sprintf("chunk [%d,%d): %s", e.Start, e.End, e.Err)
}

func (e *chunkError) Unwrap() error { return e.Err }

func (task *chunkTask) run() (*chunkResult, error) {
	blk, err := task.store.readBlock(task.start, task.end, task.sidx)
	if err != nil {
		return nil, err
	}
	p := task.params
	e, edgeFailed := trimEdges(p, blk)
	minsampFailed := minSampFilter(p, blk)
	hetFailed := maxHetFilter(p, blk, e)
	snps := annotate(blk)
	snpFailed, nsnps := maxSNPFilter(p, blk, e, snps)

	res := &chunkResult{
		Start:      task.start,
		End:        task.end,
		Outcomes:   make([]outcome, blk.nloci),
		Edges:      e,
		NSNPs:      nsnps,
		SampleLoci: make([]int, blk.nsamples),
		Filename:   filepath.Join(task.scratch, fmt.Sprintf("chunk-%09d.loci", task.start)),
	}
	var failcount [nFilters]int
	for i := range res.Outcomes {
		o := &res.Outcomes[i]
		o[filterEdge] = edgeFailed[i]
		o[filterMinSamp] = minsampFailed[i]
		o[filterMaxHet] = hetFailed[i]
		o[filterMaxSNP] = snpFailed[i]
		for k, failed := range o {
			if failed {
				failcount[k]++
			}
		}
	}

	f, err := os.Create(res.Filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	lw := &lociWriter{w: bufio.NewWriter(f), width: task.lociWidth}
	paired := blk.splits != nil
	for i, o := range res.Outcomes {
		if !o.pass() {
			continue
		}
		loc := &locus{Index: task.start + i, SNPs: trimmed(snps[i], e[i], paired, ' ')}
		for s := 0; s < blk.nsamples; s++ {
			seq := trimmed(blk.row(i, s), e[i], paired, pairSpacer[0])
			if !hasData(seq) {
				continue
			}
			res.SampleLoci[s]++
			loc.Names = append(loc.Names, task.names[s])
			loc.Seqs = append(loc.Seqs, seq)
		}
		err = lw.WriteLocus(loc)
		if err != nil {
			return nil, err
		}
	}
	err = lw.Flush()
	if err != nil {
		return nil, err
	}
	err = f.Close()
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"start":   task.start,
		"end":     task.end,
		"edges":   failcount[filterEdge],
		"minsamp": failcount[filterMinSamp],
		"maxhet":  failcount[filterMaxHet],
		"maxsnp":  failcount[filterMaxSNP],
	}).Debug("chunk done")
	return res, nil
}

// trimmed returns the retained part of one row of a locus. For
// paired loci the two read sides are joined with four copies of
// spacer.
func trimmed(row []byte, e edges, paired bool, spacer byte) []byte {
	out := append([]byte(nil), row[e[0]:e[1]]...)
	if paired {
		for i := 0; i < len(pairSpacer); i++ {
			out = append(out, spacer)
		}
		out = append(out, row[e[2]:e[3]]...)
	}
	return out
}

func hasData(seq []byte) bool {
	for _, b := range seq {
		if b != snpstring.Missing && b != pairSpacer[0] {
			return true
		}
	}
	return false
}
