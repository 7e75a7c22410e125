// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// Layout of the canonical .loci file.
const (
	nameGap       = 5    // name column width beyond the longest name, ">" included
	annotationTag = "//" // name field of the per-locus annotation row
)

// locus is one block of a .loci file.
type locus struct {
	Index int // store locus index, -1 if unknown
	Names []string
	Seqs  [][]byte
	SNPs  []byte // per-site annotation, same length as each sequence
}

// lociWriter writes .loci blocks with every sequence starting in the
// same column.
type lociWriter struct {
	w     *bufio.Writer
	width int
}

// newLociWriter returns a writer whose name column fits every name in
// names.
func newLociWriter(w io.Writer, names []string) *lociWriter {
	return &lociWriter{w: bufio.NewWriter(w), width: lociNameWidth(names)}
}

// lociNameWidth returns the width of the ">name" column, including
// the gap before the sequence: the longest name plus nameGap. The
// ">" takes one of the gap's spaces, so the longest name is followed
// by nameGap-1 spaces.
func lociNameWidth(names []string) int {
	longest := 0
	for _, name := range names {
		if len(name) > longest {
			longest = len(name)
		}
	}
	return longest + nameGap
}

func (lw *lociWriter) pad(n int) {
	for ; n < lw.width; n++ {
		lw.w.WriteByte(' ')
	}
}

func (lw *lociWriter) WriteLocus(loc *locus) error {
	for i, name := range loc.Names {
		lw.w.WriteByte('>')
		lw.w.WriteString(name)
		lw.pad(1 + len(name))
		lw.w.Write(loc.Seqs[i])
		lw.w.WriteByte('\n')
	}
	lw.w.WriteString(annotationTag)
	lw.pad(len(annotationTag))
	lw.w.Write(loc.SNPs)
	lw.w.WriteByte('|')
	lw.w.WriteString(strconv.Itoa(loc.Index))
	_, err := lw.w.WriteString("|\n")
	return err
}

func (lw *lociWriter) Flush() error {
	return lw.w.Flush()
}

// readLoci parses a .loci file and calls fn for each block, in file
// order. A block without a "|index|" suffix on its annotation row
// gets Index -1.
func readLoci(r io.Reader, fn func(*locus) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<28)
	loc := &locus{}
	seqcol := -1
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Bytes()
		switch {
		case len(line) == 0:
			continue
		case line[0] == '>':
			sp := bytes.IndexAny(line, " \t")
			if sp < 0 {
				return fmt.Errorf("line %d: no sequence after name", lineno)
			}
			seq := bytes.TrimLeft(line[sp:], " \t")
			seqcol = len(line) - len(seq)
			loc.Names = append(loc.Names, string(line[1:sp]))
			loc.Seqs = append(loc.Seqs, append([]byte(nil), seq...))
		case bytes.HasPrefix(line, []byte(annotationTag)):
			if len(loc.Names) == 0 {
				return fmt.Errorf("line %d: annotation row without sequences", lineno)
			}
			loc.Index = -1
			ann := line[len(annotationTag):]
			if bar := bytes.IndexByte(ann, '|'); bar >= 0 {
				if idx, err := strconv.Atoi(string(bytes.Trim(ann[bar:], "|"))); err == nil {
					loc.Index = idx
				}
				ann = ann[:bar]
			}
			// The annotation starts in the same column as the
			// sequences and may itself begin with spaces.
			if off := seqcol - len(annotationTag); off >= 0 && off <= len(ann) {
				ann = ann[off:]
			}
			loc.SNPs = append([]byte(nil), ann...)
			if err := fn(loc); err != nil {
				return err
			}
			loc = &locus{}
		default:
			return fmt.Errorf("line %d: unexpected %q", lineno, line[:1])
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if len(loc.Names) > 0 {
		return fmt.Errorf("line %d: unterminated locus (no %q row)", lineno, annotationTag)
	}
	return nil
}
