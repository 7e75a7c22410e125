// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// convertJob is what every converter gets: the finished canonical
// file and the samples to write, in store order.
type convertJob struct {
	Params *Params
	Names  []string
	Loci   string
	Outdir string
}

// A converter writes one or more output formats derived from the
// canonical file. formats holds the requested tags it is
// responsible for.
type converter struct {
	name string
	run  func(job *convertJob, formats map[string]bool) error
}

var (
	phynexConverter  = &converter{"phynex", convertPhyNex}
	snpsConverter    = &converter{"snps", convertSNPs}
	vcfConverter     = &converter{"vcf", convertVCF}
	allelesConverter = &converter{"alleles", convertAlleles}
	gphocsConverter  = &converter{"gphocs", convertGphocs}

	// converters maps each output format tag to the converter that
	// writes it. Several tags share a converter.
	converters = map[string]*converter{
		"phy":     phynexConverter,
		"nex":     phynexConverter,
		"snps":    snpsConverter,
		"usnps":   snpsConverter,
		"str":     snpsConverter,
		"geno":    snpsConverter,
		"vcf":     vcfConverter,
		"alleles": allelesConverter,
		"gphocs":  gphocsConverter,
	}

	// outputFormats lists every supported tag in the order
	// converters run.
	outputFormats = []string{"phy", "nex", "snps", "usnps", "str", "geno", "vcf", "alleles", "gphocs"}
)

// outputFile returns the path of the named output for a job, e.g.
// outputFile(job, ".snps.phy").
func (job *convertJob) outputFile(suffix string) string {
	return filepath.Join(job.Outdir, job.Params.Name+suffix)
}

// dispatchOutputs runs each converter needed for p.OutputFormats
// exactly once, against the finished canonical file lociFile.
// Excluded and outgroup samples are removed from names first.
func dispatchOutputs(p *Params, names []string, lociFile, outdir string) error {
	requested := map[string]bool{}
	for _, format := range p.OutputFormats {
		if format == "*" {
			for _, format := range outputFormats {
				requested[format] = true
			}
		} else if _, ok := converters[format]; !ok {
			return fmt.Errorf("output format %q not supported (supported: %s)", format, strings.Join(outputFormats, ", "))
		} else {
			requested[format] = true
		}
	}
	excluded := p.excluded()
	job := &convertJob{Params: p, Loci: lociFile, Outdir: outdir}
	for _, name := range names {
		if !excluded[name] {
			job.Names = append(job.Names, name)
		}
	}
	done := map[*converter]bool{}
	for _, format := range outputFormats {
		conv := converters[format]
		if !requested[format] || done[conv] {
			continue
		}
		done[conv] = true
		formats := map[string]bool{}
		for f, c := range converters {
			if c == conv && requested[f] {
				formats[f] = true
			}
		}
		log.Printf("%s: writing %v", conv.name, sortedKeys(formats))
		if err := conv.run(job, formats); err != nil {
			return fmt.Errorf("%s converter: %w", conv.name, err)
		}
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	var keys []string
	for _, format := range outputFormats {
		if m[format] {
			keys = append(keys, format)
		}
	}
	return keys
}

// loadLoci reads the job's canonical file, keeping only rows for
// the job's samples.
func (job *convertJob) loadLoci() ([]*locus, error) {
	keep := map[string]bool{}
	for _, name := range job.Names {
		keep[name] = true
	}
	f, err := zopen(job.Loci)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var loci []*locus
	err = readLoci(bufio.NewReaderSize(f, 1<<20), func(loc *locus) error {
		kept := &locus{Index: loc.Index, SNPs: loc.SNPs}
		for i, name := range loc.Names {
			if keep[name] {
				kept.Names = append(kept.Names, name)
				kept.Seqs = append(kept.Seqs, loc.Seqs[i])
			}
		}
		loci = append(loci, kept)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", job.Loci, err)
	}
	return loci, nil
}

// createOutput writes fnm through a buffered writer. fnm only
// appears once fill has succeeded.
func createOutput(fnm string, fill func(w *bufio.Writer) error) error {
	return writeFileAtomic(fnm, func(w io.Writer) error {
		bufw := bufio.NewWriterSize(w, 1<<20)
		if err := fill(bufw); err != nil {
			return err
		}
		return bufw.Flush()
	})
}
