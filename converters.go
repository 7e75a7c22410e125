// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/radkit/locifilter/snpstring"
)

const nexusLineWidth = 80

// rows returns the sequence of each job sample in loc, or a run of
// Missing of the locus length if the sample has no row.
func (job *convertJob) rows(loc *locus) [][]byte {
	byName := make(map[string][]byte, len(loc.Names))
	for i, name := range loc.Names {
		byName[name] = loc.Seqs[i]
	}
	out := make([][]byte, len(job.Names))
	for i, name := range job.Names {
		seq, ok := byName[name]
		if !ok {
			seq = bytes.Repeat([]byte{snpstring.Missing}, len(loc.SNPs))
		}
		out[i] = seq
	}
	return out
}

// namePad returns the width names are padded to in matrix formats.
func (job *convertJob) namePad() int {
	return lociNameWidth(job.Names)
}

// convertPhyNex writes the concatenated alignment of all loci as
// relaxed PHYLIP (phy) and/or interleaved NEXUS (nex).
func convertPhyNex(job *convertJob, formats map[string]bool) error {
	loci, err := job.loadLoci()
	if err != nil {
		return err
	}
	matrix := make([][]byte, len(job.Names))
	for _, loc := range loci {
		for i, seq := range job.rows(loc) {
			matrix[i] = append(matrix[i], seq...)
		}
	}
	nchar := 0
	if len(matrix) > 0 {
		nchar = len(matrix[0])
	}
	pad := job.namePad()
	if formats["phy"] {
		err = createOutput(job.outputFile(".phy"), func(w *bufio.Writer) error {
			fmt.Fprintf(w, "%d %d\n", len(job.Names), nchar)
			for i, name := range job.Names {
				fmt.Fprintf(w, "%-*s%s\n", pad, name, matrix[i])
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	if formats["nex"] {
		err = createOutput(job.outputFile(".nex"), func(w *bufio.Writer) error {
			fmt.Fprintf(w, "#NEXUS\nbegin data;\n  dimensions ntax=%d nchar=%d;\n", len(job.Names), nchar)
			fmt.Fprintf(w, "  format datatype=DNA missing=N gap=- interleave=yes;\n  matrix\n")
			for lo := 0; lo < nchar; lo += nexusLineWidth {
				hi := lo + nexusLineWidth
				if hi > nchar {
					hi = nchar
				}
				for i, name := range job.Names {
					fmt.Fprintf(w, "    %-*s%s\n", pad, name, matrix[i][lo:hi])
				}
				w.WriteByte('\n')
			}
			fmt.Fprintf(w, "  ;\nend;\n")
			return nil
		})
	}
	return err
}

// snpColumn is one variable site of one locus.
type snpColumn struct {
	locus int // index into the loaded loci
	site  int
	bases []byte // one per job sample, normalized
}

// alleles returns the most frequent base in the column and the other
// observed bases by decreasing frequency. Ties go to A, C, G, T
// order.
func (col *snpColumn) alleles() (ref byte, alt []byte) {
	counts := snpstring.Counts(col.bases)
	var order []int
	for i, n := range counts {
		if n > 0 {
			order = append(order, i)
		}
	}
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && counts[order[j]] > counts[order[j-1]]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	if len(order) == 0 {
		return snpstring.Missing, nil
	}
	ref = snpstring.Bases[order[0]]
	for _, i := range order[1:] {
		alt = append(alt, snpstring.Bases[i])
	}
	return
}

// snpColumns returns every site annotated as variable, in file
// order, and the index of the one site kept per locus for unlinked
// output (the first informative site, else the first variable site).
func (job *convertJob) snpColumns(loci []*locus) (cols []*snpColumn, unlinked []int) {
	for li, loc := range loci {
		rows := job.rows(loc)
		pick := -1
		for site, a := range loc.SNPs {
			if !snpstring.IsVariable(a) {
				continue
			}
			col := &snpColumn{locus: li, site: site, bases: make([]byte, len(rows))}
			for i, row := range rows {
				col.bases[i] = snpstring.Normalize(row[site])
			}
			if pick < 0 || (a == snpstring.Informative && loc.SNPs[cols[pick].site] != snpstring.Informative) {
				pick = len(cols)
			}
			cols = append(cols, col)
		}
		if pick >= 0 {
			unlinked = append(unlinked, pick)
		}
	}
	return
}

// convertSNPs writes the SNP-derived formats: all SNPs (snps), one
// SNP per locus (usnps), STRUCTURE (str), and 012 genotypes (geno).
func convertSNPs(job *convertJob, formats map[string]bool) error {
	loci, err := job.loadLoci()
	if err != nil {
		return err
	}
	cols, unlinked := job.snpColumns(loci)
	pad := job.namePad()
	writePhy := func(suffix string, idx []int) error {
		return createOutput(job.outputFile(suffix), func(w *bufio.Writer) error {
			fmt.Fprintf(w, "%d %d\n", len(job.Names), len(idx))
			for i, name := range job.Names {
				fmt.Fprintf(w, "%-*s", pad, name)
				for _, c := range idx {
					w.WriteByte(cols[c].bases[i])
				}
				w.WriteByte('\n')
			}
			return nil
		})
	}
	all := make([]int, len(cols))
	for i := range all {
		all[i] = i
	}
	if formats["snps"] {
		if err := writePhy(".snps.phy", all); err != nil {
			return err
		}
	}
	if formats["usnps"] {
		if err := writePhy(".u.snps.phy", unlinked); err != nil {
			return err
		}
	}
	if formats["str"] {
		err := createOutput(job.outputFile(".str"), func(w *bufio.Writer) error {
			for i, name := range job.Names {
				for hap := 0; hap < 2; hap++ {
					fmt.Fprintf(w, "%-*s", pad, name)
					for _, col := range cols {
						w.WriteByte('\t')
						w.WriteString(structureAllele(col.bases[i], hap))
					}
					w.WriteByte('\n')
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	if formats["geno"] {
		err := createOutput(job.outputFile(".geno"), func(w *bufio.Writer) error {
			for _, col := range cols {
				ref, _ := col.alleles()
				for _, b := range col.bases {
					w.WriteByte(genoCode(b, ref))
				}
				w.WriteByte('\n')
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// structureAllele returns the STRUCTURE code (0-3 for A, C, G, T;
// -9 for missing) of allele copy hap (0 or 1) of b.
func structureAllele(b byte, hap int) string {
	b1, b2, ok := snpstring.Resolve(b)
	if !ok {
		return "-9"
	}
	if hap == 1 {
		b1 = b2
	}
	return strconv.Itoa(strings.IndexByte(snpstring.Bases, b1))
}

// genoCode returns the number of non-reference alleles in b as an
// ASCII digit, or '9' if b is missing.
func genoCode(b, ref byte) byte {
	b1, b2, ok := snpstring.Resolve(b)
	if !ok {
		return '9'
	}
	n := byte('0')
	if b1 != ref {
		n++
	}
	if b2 != ref {
		n++
	}
	return n
}

// convertAlleles writes each locus with two pseudo-haplotype rows per
// sample, heterozygous sites split between them.
func convertAlleles(job *convertJob, formats map[string]bool) error {
	loci, err := job.loadLoci()
	if err != nil {
		return err
	}
	var hapNames []string
	for _, name := range job.Names {
		hapNames = append(hapNames, name+"_0", name+"_1")
	}
	return createOutput(job.outputFile(".alleles.loci"), func(w *bufio.Writer) error {
		lw := &lociWriter{w: w, width: lociNameWidth(hapNames)}
		for _, loc := range loci {
			out := &locus{Index: loc.Index, SNPs: loc.SNPs}
			for i, name := range loc.Names {
				h0, h1 := splitHaplotypes(loc.Seqs[i])
				out.Names = append(out.Names, name+"_0", name+"_1")
				out.Seqs = append(out.Seqs, h0, h1)
			}
			if err := lw.WriteLocus(out); err != nil {
				return err
			}
		}
		return nil
	})
}

func splitHaplotypes(seq []byte) (h0, h1 []byte) {
	h0 = append([]byte(nil), seq...)
	h1 = append([]byte(nil), seq...)
	for i, b := range seq {
		if b1, b2, ok := snpstring.Resolve(snpstring.Normalize(b)); ok && b1 != b2 {
			h0[i], h1[i] = b1, b2
		}
	}
	return
}

// convertGphocs writes the G-PhoCS sequence file: the locus count,
// then for each locus a header line and one row per sample with
// data.
func convertGphocs(job *convertJob, formats map[string]bool) error {
	loci, err := job.loadLoci()
	if err != nil {
		return err
	}
	pad := job.namePad()
	return createOutput(job.outputFile(".gphocs"), func(w *bufio.Writer) error {
		fmt.Fprintf(w, "%d\n", len(loci))
		for _, loc := range loci {
			fmt.Fprintf(w, "\nlocus%d %d %d\n", loc.Index, len(loc.Names), len(loc.SNPs))
			for i, name := range loc.Names {
				fmt.Fprintf(w, "%-*s%s\n", pad, name, loc.Seqs[i])
			}
		}
		return nil
	})
}
