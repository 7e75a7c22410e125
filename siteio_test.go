// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"git.arvados.org/arvados.git/sdk/go/keepclient"
	"github.com/klauspost/pgzip"
	"gopkg.in/check.v1"
)

// Site filesystem files are http.Files.
var _ file = http.File(nil)

type siteioSuite struct{}

var _ = check.Suite(&siteioSuite{})

func (s *siteioSuite) TestZopen(c *check.C) {
	dir := c.MkDir()
	c.Assert(os.WriteFile(filepath.Join(dir, "plain.loci"), []byte("plain\n"), 0666), check.IsNil)
	var buf bytes.Buffer
	zw := pgzip.NewWriter(&buf)
	_, err := zw.Write([]byte("compressed\n"))
	c.Assert(err, check.IsNil)
	c.Assert(zw.Close(), check.IsNil)
	c.Assert(os.WriteFile(filepath.Join(dir, "z.loci.gz"), buf.Bytes(), 0666), check.IsNil)

	for fnm, want := range map[string]string{"plain.loci": "plain\n", "z.loci.gz": "compressed\n"} {
		f, err := zopen(filepath.Join(dir, fnm))
		c.Assert(err, check.IsNil)
		got, err := io.ReadAll(f)
		c.Check(err, check.IsNil)
		c.Check(string(got), check.Equals, want)
		c.Check(f.Close(), check.IsNil)
	}

	_, err = zopen(filepath.Join(dir, "missing.gz"))
	c.Check(os.IsNotExist(err), check.Equals, true)
	c.Assert(os.WriteFile(filepath.Join(dir, "bad.gz"), []byte("not gzip"), 0666), check.IsNil)
	_, err = zopen(filepath.Join(dir, "bad.gz"))
	c.Check(err, check.ErrorMatches, `.*bad.gz: .*`)
}

func (s *siteioSuite) TestKeepFileReleasesCache(c *check.C) {
	fnm := filepath.Join(c.MkDir(), "x")
	c.Assert(os.WriteFile(fnm, []byte("x"), 0666), check.IsNil)
	f, err := os.Open(fnm)
	c.Assert(err, check.IsNil)
	kfs := &keepFS{kc: &keepclient.KeepClient{BlockCache: &keepclient.BlockCache{MaxBlocks: 2 + blocksPerFile}}}
	kf := &keepFile{file: f, kfs: kfs}
	c.Check(kf.Close(), check.IsNil)
	c.Check(kfs.kc.BlockCache.MaxBlocks, check.Equals, 2)
	// A second Close fails on the file but does not release again.
	c.Check(kf.Close(), check.NotNil)
	c.Check(kfs.kc.BlockCache.MaxBlocks, check.Equals, 2)
}
