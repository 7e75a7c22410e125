// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"encoding/json"
	"io"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// filterStats is the JSON summary written next to the canonical file.
type filterStats struct {
	TotalLoci    int
	Filtered     map[string]int // loci failing each filter
	RetainedLoci int
	SampleLoci   map[string]int // retained loci with data, per sample
	SNPs         struct {
		Total  int
		Mean   float64
		StdDev float64
		Max    float64
	} // variable sites per retained locus
}

func (run *filterRun) stats() *filterStats {
	ret := &filterStats{
		TotalLoci:  len(run.Outcomes),
		Filtered:   map[string]int{},
		SampleLoci: map[string]int{},
	}
	for _, name := range filterNames {
		ret.Filtered[name] = 0
	}
	var nsnps []float64
	for i, o := range run.Outcomes {
		for k, failed := range o {
			if failed {
				ret.Filtered[filterNames[k]]++
			}
		}
		if o.pass() {
			nsnps = append(nsnps, float64(run.NSNPs[i]))
		}
	}
	ret.RetainedLoci = len(nsnps)
	for i, name := range run.Names {
		ret.SampleLoci[name] = run.SampleLoci[i]
	}
	if len(nsnps) > 0 {
		ret.SNPs.Total = int(floats.Sum(nsnps))
		ret.SNPs.Max = floats.Max(nsnps)
		if len(nsnps) > 1 {
			ret.SNPs.Mean, ret.SNPs.StdDev = stat.MeanStdDev(nsnps, nil)
		} else {
			ret.SNPs.Mean = nsnps[0]
		}
	}
	return ret
}

func (run *filterRun) writeStats(outdir, name string) error {
	return writeFileAtomic(filepath.Join(outdir, name+"_stats.json"), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run.stats())
	})
}
