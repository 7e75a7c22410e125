// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"os"
	"path/filepath"

	"gopkg.in/check.v1"
)

type storeSuite struct{}

var _ = check.Suite(&storeSuite{})

// writeTestStore builds a store in dir. loci[i][s] is the sequence
// of meta.Samples[s] in locus i ("" for no data); splits is used
// only if meta.Paired.
func writeTestStore(c *check.C, dir string, meta storeMeta, loci [][]string, splits []int) *arrayStore {
	if meta.Width == 0 {
		for _, rows := range loci {
			for _, seq := range rows {
				if len(seq) > meta.Width {
					meta.Width = len(seq)
				}
			}
		}
	}
	sw, err := newStoreWriter(dir, meta)
	c.Assert(err, check.IsNil)
	for i, rows := range loci {
		c.Assert(rows, check.HasLen, len(meta.Samples))
		var bufs [][]byte
		for _, seq := range rows {
			if seq == "" {
				bufs = append(bufs, nil)
			} else {
				bufs = append(bufs, []byte(seq))
			}
		}
		split := 0
		if splits != nil {
			split = splits[i]
		}
		c.Assert(sw.Add(bufs, split), check.IsNil)
	}
	c.Assert(sw.Close(), check.IsNil)
	store, err := openStore(dir)
	c.Assert(err, check.IsNil)
	return store
}

func (s *storeSuite) TestRoundTrip(c *check.C) {
	for _, gz := range []bool{false, true} {
		c.Logf("gzip=%v", gz)
		dir := c.MkDir()
		loci := [][]string{
			{"ACGT", "acg-", ""},
			{"TTTT", "TT", "GGGG"},
			{"AAAA", "CCCC", "RRRR"},
			{"A", "", "C"},
			{"CCCC", "CCCC", "CCCC"},
		}
		store := writeTestStore(c, dir, storeMeta{ChunkSize: 2, Samples: []string{"a", "b", "c"}, Gzip: gz}, loci, nil)
		c.Check(store.meta.NLoci, check.Equals, 5)
		c.Check(store.meta.Width, check.Equals, 4)
		for _, fileno := range []int{0, 1, 2} {
			_, err := os.Stat(store.chunkFilename("seqs", fileno))
			c.Check(err, check.IsNil)
		}

		// Span all three chunk files, select rows out of order.
		blk, err := store.readBlock(1, 5, []int{2, 0})
		c.Assert(err, check.IsNil)
		c.Check(blk.nloci, check.Equals, 4)
		c.Check(blk.nsamples, check.Equals, 2)
		c.Check(blk.splits, check.IsNil)
		c.Check(string(blk.row(0, 0)), check.Equals, "GGGG")
		c.Check(string(blk.row(0, 1)), check.Equals, "TTTT")
		c.Check(string(blk.row(1, 0)), check.Equals, "RRRR")
		c.Check(string(blk.row(2, 0)), check.Equals, "CNNN")
		c.Check(string(blk.row(2, 1)), check.Equals, "ANNN")

		// Gaps and lower case are normalized on load.
		blk, err = store.readBlock(0, 1, []int{1, 2})
		c.Assert(err, check.IsNil)
		c.Check(string(blk.row(0, 0)), check.Equals, "ACGN")
		c.Check(string(blk.row(0, 1)), check.Equals, "NNNN")
	}
}

func (s *storeSuite) TestPairedSplits(c *check.C) {
	dir := c.MkDir()
	store := writeTestStore(c, dir, storeMeta{ChunkSize: 2, Samples: []string{"a", "b"}, Paired: true}, [][]string{
		{"AAnnnnCC", "AAnnnnCC"},
		{"AAAnnnnC", "AAAnnnnC"},
		{"AnnnnCCC", "AnnnnCCC"},
	}, []int{2, 3, 1})
	blk, err := store.readBlock(1, 3, []int{0, 1})
	c.Assert(err, check.IsNil)
	c.Check(blk.splits, check.DeepEquals, []int{3, 1})
	r1, r2, paired := blk.sides(0)
	c.Check(paired, check.Equals, true)
	c.Check(r1, check.Equals, [2]int{0, 3})
	c.Check(r2, check.Equals, [2]int{7, 8})
}

func (s *storeSuite) TestBounds(c *check.C) {
	dir := c.MkDir()
	store := writeTestStore(c, dir, storeMeta{ChunkSize: 2, Samples: []string{"a"}}, [][]string{{"A"}, {"C"}, {"G"}}, nil)
	_, err := store.readBlock(0, 4, []int{0})
	c.Check(err, check.ErrorMatches, `locus range \[0,4\) out of bounds.*`)
	_, err = store.readBlock(0, 1, []int{1})
	c.Check(err, check.ErrorMatches, `sample row 1 out of bounds.*`)

	c.Assert(os.Remove(store.chunkFilename("seqs", 1)), check.IsNil)
	_, err = store.readBlock(0, 2, []int{0})
	c.Check(err, check.IsNil)
	_, err = store.readBlock(1, 3, []int{0})
	c.Check(err, check.NotNil)
}

func (s *storeSuite) TestReadyNames(c *check.C) {
	dir := c.MkDir()
	store := writeTestStore(c, dir, storeMeta{
		ChunkSize: 10,
		Samples:   []string{"a", "b", "c"},
		States:    map[string]int{"a": 6, "b": 5},
	}, [][]string{{"A", "A", "A"}}, nil)
	c.Check(store.readyNames(), check.DeepEquals, []string{"a", "c"})
}

func (s *storeSuite) TestOpenStoreErrors(c *check.C) {
	dir := c.MkDir()
	_, err := openStore(dir)
	c.Check(err, check.NotNil)
	c.Assert(os.WriteFile(filepath.Join(dir, storeMetaFile), []byte(`{"chunksize":0}`), 0666), check.IsNil)
	_, err = openStore(dir)
	c.Check(err, check.ErrorMatches, `.*invalid chunksize 0`)
}
