// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	log "github.com/sirupsen/logrus"
)

// planner splits the store's locus range into chunks, filters them
// on a bounded worker pool, and merges the results in locus order.
type planner struct {
	store     *arrayStore
	params    *Params
	threads   int // 0 means GOMAXPROCS
	chunkSize int // 0 means the store's own chunk size
	outdir    string
}

// filterRun is everything a finished run produced.
type filterRun struct {
	Names    []string // selected samples, in store order
	Loci     string   // canonical .loci file
	Outcomes []outcome
	Edges    []edges
	NSNPs    []int
	// SampleLoci[i] is the number of retained loci with data for
	// Names[i].
	SampleLoci []int
}

// selectSamples returns the names and store row indices of the
// samples to keep: ready samples minus excludes and outgroups, in
// store order. Excluded names that are not in the store are ignored.
func selectSamples(store *arrayStore, p *Params) (names []string, sidx []int) {
	ready := map[string]bool{}
	for _, name := range store.readyNames() {
		ready[name] = true
	}
	excluded := p.excluded()
	for row, name := range store.meta.Samples {
		if ready[name] && !excluded[name] {
			names = append(names, name)
			sidx = append(sidx, row)
		}
	}
	return
}

func (pl *planner) run(ctx context.Context) (*filterRun, error) {
	p := pl.params
	if p.Paired() != pl.store.meta.Paired {
		return nil, fmt.Errorf("datatype %q does not match store (paired=%v)", p.Datatype, pl.store.meta.Paired)
	}
	names, sidx := selectSamples(pl.store, p)
	if len(names) == 0 {
		return nil, errors.New("no samples left after exclusions")
	}
	if len(names) < p.MinSamplesLocus {
		log.Warnf("only %d samples selected, fewer than min_samples_locus=%d: every locus will be filtered", len(names), p.MinSamplesLocus)
	}

	err := os.MkdirAll(pl.outdir, 0777)
	if err != nil {
		return nil, err
	}
	scratch, err := os.MkdirTemp(pl.outdir, ".tmp-chunks-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(scratch)

	nloci := pl.store.meta.NLoci
	chunkSize := pl.chunkSize
	if chunkSize < 1 {
		chunkSize = pl.store.meta.ChunkSize
	}
	threads := pl.threads
	if threads < 1 {
		threads = runtime.GOMAXPROCS(0)
	}
	nchunks := (nloci + chunkSize - 1) / chunkSize
	log.Printf("filtering %d loci for %d samples in %d chunks of %d on %d threads", nloci, len(names), nchunks, chunkSize, threads)

	lociWidth := lociNameWidth(names)
	results := make([]*chunkResult, nchunks)
	throttle := throttle{Max: threads}
	for i := 0; i < nchunks; i++ {
		if err := ctx.Err(); err != nil {
			throttle.Report(err)
			break
		}
		i := i
		task := &chunkTask{
			store:     pl.store,
			params:    p,
			sidx:      sidx,
			names:     names,
			start:     i * chunkSize,
			end:       (i + 1) * chunkSize,
			scratch:   scratch,
			lociWidth: lociWidth,
		}
		if task.end > nloci {
			task.end = nloci
		}
		err := throttle.Go(func() error {
			res, err := task.run()
			if err != nil {
				return &chunkError{Start: task.start, End: task.end, Err: err}
			}
			results[i] = res
			return nil
		})
		if err != nil {
			break
		}
	}
	if err := throttle.Wait(); err != nil {
		return nil, err
	}

	run := &filterRun{
		Names:      names,
		Loci:       filepath.Join(pl.outdir, p.Name+".loci"),
		SampleLoci: make([]int, len(names)),
	}
	err = concatChunks(results, nloci, run.Loci)
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		run.Outcomes = append(run.Outcomes, res.Outcomes...)
		run.Edges = append(run.Edges, res.Edges...)
		run.NSNPs = append(run.NSNPs, res.NSNPs...)
		for s, n := range res.SampleLoci {
			run.SampleLoci[s] += n
		}
	}
	var failcount [nFilters]int
	for _, o := range run.Outcomes {
		for k, failed := range o {
			if failed {
				failcount[k]++
			}
		}
	}
	if n := failcount[filterEdge]; n > 0 {
		log.Warnf("%d loci filtered: no site meets the edge trimming coverage threshold", n)
	}
	for k := filterMinSamp; k < nFilters; k++ {
		log.Infof("%d loci filtered by %s", failcount[k], filterNames[k])
	}
	return run, nil
}

// concatChunks writes the chunk files to fnm in ascending locus
// order. The results must cover [0, nloci) exactly once; fnm is
// only created if they do and every copy succeeds.
func concatChunks(results []*chunkResult, nloci int, fnm string) error {
	sort.Slice(results, func(i, j int) bool {
		if results[i] == nil || results[j] == nil {
			return results[j] == nil && results[i] != nil
		}
		return results[i].Start < results[j].Start
	})
	next := 0
	for _, res := range results {
		if res == nil {
			return errors.New("missing chunk result")
		}
		if res.Start != next {
			return fmt.Errorf("chunk [%d,%d) does not follow locus %d", res.Start, res.End, next)
		}
		next = res.End
	}
	if next != nloci {
		return fmt.Errorf("chunks end at locus %d, expected %d", next, nloci)
	}
	return writeFileAtomic(fnm, func(w io.Writer) error {
		for _, res := range results {
			f, err := os.Open(res.Filename)
			if err != nil {
				return err
			}
			_, err = io.Copy(w, f)
			f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", res.Filename, err)
			}
		}
		return nil
	})
}

// writeArrays writes the per-locus filter outcomes and edges next to
// the canonical file.
func (run *filterRun) writeArrays(outdir string) error {
	filters := make([]uint8, 0, len(run.Outcomes)*int(nFilters))
	for _, o := range run.Outcomes {
		for _, failed := range o {
			if failed {
				filters = append(filters, 1)
			} else {
				filters = append(filters, 0)
			}
		}
	}
	err := writeNumpyUint8(filepath.Join(outdir, "filters.npy"), filters, len(run.Outcomes), int(nFilters))
	if err != nil {
		return err
	}
	e := make([]int32, 0, len(run.Edges)*4)
	for _, edge := range run.Edges {
		for _, x := range edge {
			e = append(e, int32(x))
		}
	}
	return writeNumpyInt32(filepath.Join(outdir, "edges.npy"), e, len(run.Edges), 4)
}
