// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"git.arvados.org/arvados.git/sdk/go/arvadosclient"
	"git.arvados.org/arvados.git/sdk/go/keepclient"
	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
)

// zopen opens fnm for reading, decompressing on the fly if the name
// ends in ".gz".
func zopen(fnm string) (io.ReadCloser, error) {
	f, err := open(fnm)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(fnm, ".gz") {
		return f, nil
	}
	zr, err := pgzip.NewReader(bufio.NewReaderSize(f, 4<<20))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	return &gzipFile{Reader: zr, f: f}, nil
}

type gzipFile struct {
	*pgzip.Reader
	f io.Closer
}

func (gf *gzipFile) Close() error {
	err := gf.Reader.Close()
	if ferr := gf.f.Close(); err == nil {
		err = ferr
	}
	return err
}

// keepFS reads store chunks straight from keep when running in a
// container, so concurrent chunk tasks don't go through (and thrash)
// the FUSE mount. Each open file holds blocksPerFile cache blocks.
type keepFS struct {
	mtx sync.Mutex
	kc  *keepclient.KeepClient
	fs  arvados.CustomFileSystem
}

const blocksPerFile = 2

var siteFS keepFS

// open returns a local file, or, if ARVADOS_API_HOST is set and fnm
// is inside a collection, the same file read through keep.
func open(fnm string) (io.ReadCloser, error) {
	if os.Getenv("ARVADOS_API_HOST") == "" {
		return os.Open(fnm)
	}
	m := collectionInPathRe.FindStringSubmatch(fnm)
	if m == nil {
		return os.Open(fnm)
	}
	return siteFS.open(m[2] + m[3])
}

func (kfs *keepFS) open(path string) (io.ReadCloser, error) {
	kfs.mtx.Lock()
	defer kfs.mtx.Unlock()
	if kfs.fs == nil {
		client := arvados.NewClientFromEnv()
		ac, err := arvadosclient.New(client)
		if err != nil {
			return nil, err
		}
		ac.Client = arvados.DefaultSecureClient
		kfs.kc = keepclient.New(ac)
		kfs.kc.HTTPClient = arvados.DefaultSecureClient
		kfs.kc.BlockCache = &keepclient.BlockCache{}
		kfs.fs = client.SiteFileSystem(kfs.kc)
		log.Debug("reading collections through keep")
	}
	f, err := kfs.fs.Open("by_id/" + path)
	if err != nil {
		return nil, err
	}
	kfs.kc.BlockCache.MaxBlocks += blocksPerFile
	return &keepFile{file: f, kfs: kfs}, nil
}

// file is the part of a site filesystem file that chunk readers use.
type file interface {
	io.ReadCloser
	io.Seeker
	Readdir(n int) ([]os.FileInfo, error)
}

// keepFile returns its cache blocks when closed.
type keepFile struct {
	file
	kfs  *keepFS
	once sync.Once
}

func (kf *keepFile) Close() error {
	kf.once.Do(func() {
		kf.kfs.mtx.Lock()
		kf.kfs.kc.BlockCache.MaxBlocks -= blocksPerFile
		kf.kfs.mtx.Unlock()
	})
	return kf.file.Close()
}
