// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package snpstring classifies alignment columns as invariant,
// parsimony-uninformative or parsimony-informative, producing the
// per-site annotation line of the .loci format.
package snpstring

const (
	// Missing is the single sentinel for "no data at this site".
	// Gaps and padding are normalized to Missing when a block is
	// loaded.
	Missing = 'N'

	Invariant     = ' '
	Uninformative = '-'
	Informative   = '*'
)

// Ambiguities lists the two-state IUPAC ambiguity codes, in the
// order they are checked by the shared heterozygosity filter.
const Ambiguities = "RSKYWM"

var resolve [256][2]byte

func init() {
	for _, b := range "ACGT" {
		resolve[b] = [2]byte{byte(b), byte(b)}
	}
	for code, pair := range map[byte]string{
		'R': "AG",
		'S': "CG",
		'K': "GT",
		'Y': "CT",
		'W': "AT",
		'M': "AC",
	} {
		resolve[code] = [2]byte{pair[0], pair[1]}
	}
}

// Normalize returns the canonical upper-case form of b. Lower-case
// bases are upper-cased; gaps, padding and anything that is not a
// base or a two-state ambiguity code become Missing.
func Normalize(b byte) byte {
	if b >= 'a' && b <= 'z' {
		b -= 'a' - 'A'
	}
	if resolve[b][0] == 0 {
		return Missing
	}
	return b
}

// Resolve returns the two bases represented by b (the same base
// twice for A, C, G or T). ok is false for Missing and anything
// else that does not represent a base.
func Resolve(b byte) (b1, b2 byte, ok bool) {
	pair := resolve[b]
	return pair[0], pair[1], pair[0] != 0
}

// IsAmbiguous reports whether b is a two-state ambiguity code.
func IsAmbiguous(b byte) bool {
	pair := resolve[b]
	return pair[0] != pair[1]
}

func baseIndex(b byte) int {
	switch b {
	case 'A':
		return 0
	case 'C':
		return 1
	case 'G':
		return 2
	default:
		return 3
	}
}

// Counts returns the number of occurrences of A, C, G and T in
// column after resolving ambiguity codes. A heterozygous call
// contributes one occurrence of each of its bases.
func Counts(column []byte) (counts [4]int) {
	for _, b := range column {
		b1, b2, ok := Resolve(b)
		if !ok {
			continue
		}
		counts[baseIndex(b1)]++
		if b2 != b1 {
			counts[baseIndex(b2)]++
		}
	}
	return
}

// Classify returns the annotation for one alignment column: Invariant
// if fewer than two distinct bases are present, Informative if at
// least two bases each occur more than once, otherwise
// Uninformative.
func Classify(column []byte) byte {
	counts := Counts(column)
	distinct, repeated := 0, 0
	for _, n := range counts {
		if n > 0 {
			distinct++
		}
		if n > 1 {
			repeated++
		}
	}
	switch {
	case distinct < 2:
		return Invariant
	case repeated > 1:
		return Informative
	default:
		return Uninformative
	}
}

// IsVariable reports whether an annotation byte marks a polymorphic
// site.
func IsVariable(a byte) bool {
	return a == Uninformative || a == Informative
}

// Count returns the number of polymorphic sites in an annotation
// line.
func Count(line []byte) int {
	n := 0
	for _, a := range line {
		if IsVariable(a) {
			n++
		}
	}
	return n
}

// Bases is the canonical base order used by Counts.
const Bases = "ACGT"
