// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"bufio"
	"strconv"

	"github.com/exascience/elprep/v5/utils"
	"github.com/exascience/elprep/v5/vcf"
	"github.com/radkit/locifilter/snpstring"
)

// vcfHeader returns the header for a VCF file with one genotype
// column per sample.
func vcfHeader(names []string) *vcf.Header {
	hdr := vcf.NewHeader()
	hdr.Meta["source"] = []interface{}{"locifilter"}
	ns := vcf.NewFormatInformation()
	ns.ID = vcfNS
	ns.Number = 1
	ns.Type = vcf.Integer
	ns.Description = "Number of Samples With Data"
	hdr.Infos = append(hdr.Infos, ns)
	gt := vcf.NewFormatInformation()
	gt.ID = vcf.GT
	gt.Number = 1
	gt.Type = vcf.String
	gt.Description = "Genotype"
	hdr.Formats = append(hdr.Formats, gt)
	columns := make([]string, 0, len(vcf.DefaultHeaderColumns)+1+len(names))
	columns = append(columns, vcf.DefaultHeaderColumns...)
	columns = append(columns, "FORMAT")
	hdr.Columns = append(columns, names...)
	return hdr
}

var vcfNS = utils.Intern("NS")

// snpVariant returns the VCF record for one SNP column. Each locus is
// its own contig, named by its store index; positions are 1-based
// within the trimmed locus.
func snpVariant(col *snpColumn, loc *locus) *vcf.Variant {
	ref, alt := col.alleles()
	allele := map[byte]int32{ref: 0}
	v := &vcf.Variant{
		Chrom:          "locus" + strconv.Itoa(loc.Index),
		Pos:            int32(col.site + 1),
		Ref:            string(ref),
		Filter:         []utils.Symbol{vcf.PASS},
		GenotypeFormat: []utils.Symbol{vcf.GT},
		GenotypeData:   make([]vcf.Genotype, len(col.bases)),
	}
	for i, b := range alt {
		allele[b] = int32(i + 1)
		v.Alt = append(v.Alt, string(b))
	}
	ndata := 0
	for i, b := range col.bases {
		b1, b2, ok := snpstring.Resolve(b)
		if !ok {
			v.GenotypeData[i].GT = []int32{-1, -1}
			continue
		}
		ndata++
		v.GenotypeData[i].GT = []int32{allele[b1], allele[b2]}
	}
	v.Info = utils.SmallMap{{Key: vcfNS, Value: ndata}}
	return v
}

// convertVCF writes one record per variable site.
func convertVCF(job *convertJob, formats map[string]bool) error {
	loci, err := job.loadLoci()
	if err != nil {
		return err
	}
	cols, _ := job.snpColumns(loci)
	return createOutput(job.outputFile(".vcf"), func(w *bufio.Writer) error {
		vcfHeader(job.Names).Format(w)
		var line []byte
		for _, col := range cols {
			line = snpVariant(col, loci[col.locus]).Format(line[:0])
			if _, err := w.Write(line); err != nil {
				return err
			}
		}
		return nil
	})
}
