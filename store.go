// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/radkit/locifilter/snpstring"
	log "github.com/sirupsen/logrus"
)

const storeMetaFile = "store.json"

// readyState is the assembly state a sample must have reached before
// its data can be written out.
const readyState = 6

// storeMeta describes an on-disk array store. The store holds one
// seqs file per chunk of ChunkSize loci, shaped [loci, samples,
// width], and (for paired data) one splits file per chunk giving the
// column where the read1/read2 spacer starts.
type storeMeta struct {
	ChunkSize int            `json:"chunksize"`
	NLoci     int            `json:"nloci"`
	Width     int            `json:"maxlen"`
	Samples   []string       `json:"samples"`
	States    map[string]int `json:"states,omitempty"`
	Paired    bool           `json:"paired"`
	Gzip      bool           `json:"gzip"`
}

type arrayStore struct {
	dir  string
	meta storeMeta
}

func openStore(dir string) (*arrayStore, error) {
	f, err := open(filepath.Join(dir, storeMetaFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	store := &arrayStore{dir: dir}
	err = json.NewDecoder(f).Decode(&store.meta)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Join(dir, storeMetaFile), err)
	}
	if store.meta.ChunkSize < 1 {
		return nil, fmt.Errorf("%s: invalid chunksize %d", dir, store.meta.ChunkSize)
	}
	if store.meta.NLoci < 0 || store.meta.Width < 0 {
		return nil, fmt.Errorf("%s: invalid dimensions nloci=%d maxlen=%d", dir, store.meta.NLoci, store.meta.Width)
	}
	return store, nil
}

func (store *arrayStore) chunkFilename(kind string, fileno int) string {
	fnm := filepath.Join(store.dir, fmt.Sprintf("%s.%04d.npy", kind, fileno))
	if store.meta.Gzip {
		fnm += ".gz"
	}
	return fnm
}

// readyNames returns the stored sample names whose assembly state
// allows output, in store order. Samples without a recorded state
// are ready.
func (store *arrayStore) readyNames() []string {
	var ready []string
	for _, name := range store.meta.Samples {
		if state, ok := store.meta.States[name]; ok && state < readyState {
			log.Warnf("excluding sample %s: not ready for writing output (state %d < %d)", name, state, readyState)
			continue
		}
		ready = append(ready, name)
	}
	return ready
}

// readBlock loads loci [start, end) for the given sample rows. The
// returned block has gaps and padding normalized to
// snpstring.Missing.
func (store *arrayStore) readBlock(start, end int, sidx []int) (*block, error) {
	if start < 0 || end > store.meta.NLoci || start > end {
		return nil, fmt.Errorf("locus range [%d,%d) out of bounds (nloci=%d)", start, end, store.meta.NLoci)
	}
	nsamples := len(store.meta.Samples)
	for _, row := range sidx {
		if row < 0 || row >= nsamples {
			return nil, fmt.Errorf("sample row %d out of bounds (nsamples=%d)", row, nsamples)
		}
	}
	width := store.meta.Width
	blk := &block{
		nloci:    end - start,
		nsamples: len(sidx),
		width:    width,
		seqs:     make([]byte, (end-start)*len(sidx)*width),
	}
	if store.meta.Paired {
		blk.splits = make([]int, end-start)
	}
	cs := store.meta.ChunkSize
	for fileno := start / cs; fileno*cs < end; fileno++ {
		filestart := fileno * cs
		seqs, err := store.readSeqs(fileno, nsamples, width)
		if err != nil {
			return nil, err
		}
		nfile := len(seqs) / (nsamples * width)
		lo, hi := start, end
		if lo < filestart {
			lo = filestart
		}
		if hi > filestart+nfile {
			hi = filestart + nfile
		}
		want := end
		if want > filestart+cs {
			want = filestart + cs
		}
		if filestart+nfile < want {
			return nil, fmt.Errorf("%s: has %d loci, expected at least %d", store.chunkFilename("seqs", fileno), nfile, want-filestart)
		}
		for locus := lo; locus < hi; locus++ {
			src := seqs[(locus-filestart)*nsamples*width:]
			for i, row := range sidx {
				copy(blk.row(locus-start, i), src[row*width:(row+1)*width])
			}
		}
		if blk.splits != nil {
			splits, err := store.readSplits(fileno)
			if err != nil {
				return nil, err
			}
			if len(splits) != nfile {
				return nil, fmt.Errorf("%s: has %d entries, expected %d", store.chunkFilename("splits", fileno), len(splits), nfile)
			}
			for locus := lo; locus < hi; locus++ {
				blk.splits[locus-start] = int(splits[locus-filestart])
			}
		}
	}
	blk.normalize()
	return blk, nil
}

func (store *arrayStore) readSeqs(fileno, nsamples, width int) ([]uint8, error) {
	fnm := store.chunkFilename("seqs", fileno)
	npr, f, err := readNumpy(fnm, 3)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if npr.Shape[1] != nsamples || npr.Shape[2] != width {
		return nil, fmt.Errorf("%s: shape %v does not match store (samples=%d, maxlen=%d)", fnm, npr.Shape, nsamples, width)
	}
	seqs, err := npr.GetUint8()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	return seqs, nil
}

func (store *arrayStore) readSplits(fileno int) ([]int32, error) {
	fnm := store.chunkFilename("splits", fileno)
	npr, f, err := readNumpy(fnm, 1)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	splits, err := npr.GetInt32()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	return splits, nil
}

// storeWriter builds an array store one locus at a time, writing a
// chunk file every ChunkSize loci.
type storeWriter struct {
	dir    string
	meta   storeMeta
	seqs   []uint8
	splits []int32
	fileno int
	n      int
}

func newStoreWriter(dir string, meta storeMeta) (*storeWriter, error) {
	if meta.ChunkSize < 1 {
		return nil, fmt.Errorf("invalid chunk size %d", meta.ChunkSize)
	}
	if len(meta.Samples) == 0 {
		return nil, errors.New("cannot create a store with no samples")
	}
	err := os.MkdirAll(dir, 0777)
	if err != nil {
		return nil, err
	}
	meta.NLoci = 0
	return &storeWriter{dir: dir, meta: meta}, nil
}

// Add appends one locus. rows[i] is the sequence for meta.Samples[i]
// (nil if the sample has no data); split is ignored unless the store
// is paired.
func (sw *storeWriter) Add(rows [][]byte, split int) error {
	if len(rows) != len(sw.meta.Samples) {
		return fmt.Errorf("locus %d: got %d rows, expected %d", sw.meta.NLoci, len(rows), len(sw.meta.Samples))
	}
	width := sw.meta.Width
	for _, row := range rows {
		if len(row) > width {
			return fmt.Errorf("locus %d: sequence length %d exceeds maxlen %d", sw.meta.NLoci, len(row), width)
		}
		padded := make([]uint8, width)
		for i := range padded {
			padded[i] = snpstring.Missing
		}
		copy(padded, row)
		sw.seqs = append(sw.seqs, padded...)
	}
	sw.splits = append(sw.splits, int32(split))
	sw.n++
	sw.meta.NLoci++
	if sw.n == sw.meta.ChunkSize {
		return sw.flush()
	}
	return nil
}

func (sw *storeWriter) flush() error {
	if sw.n == 0 {
		return nil
	}
	store := arrayStore{dir: sw.dir, meta: sw.meta}
	err := writeNumpyUint8(store.chunkFilename("seqs", sw.fileno), sw.seqs, sw.n, len(sw.meta.Samples), sw.meta.Width)
	if err != nil {
		return err
	}
	if sw.meta.Paired {
		err = writeNumpyInt32(store.chunkFilename("splits", sw.fileno), sw.splits, sw.n)
		if err != nil {
			return err
		}
	}
	sw.seqs, sw.splits, sw.n = sw.seqs[:0], sw.splits[:0], 0
	sw.fileno++
	return nil
}

// Close writes any buffered loci and the store metadata.
func (sw *storeWriter) Close() error {
	err := sw.flush()
	if err != nil {
		return err
	}
	buf, err := json.MarshalIndent(sw.meta, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(sw.dir, storeMetaFile), func(w io.Writer) error {
		_, err := w.Write(append(buf, '\n'))
		return err
	})
}

// writeFileAtomic writes fnm~ and renames it to fnm once fill
// succeeds, so a failed write never leaves a partial fnm behind.
func writeFileAtomic(fnm string, fill func(io.Writer) error) error {
	tmp := fnm + "~"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = fill(f)
	if err == nil {
		err = f.Close()
	} else {
		f.Close()
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, fnm)
}
