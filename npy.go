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

	"github.com/klauspost/pgzip"
	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
)

// nopCloser lets a gonpy writer "close" a bufio.Writer without
// closing the file underneath.
type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// createNumpy creates fnm and returns a gonpy writer with the given
// shape, and a finish func that flushes and closes everything. If fnm
// ends in ".gz" the output is compressed.
func createNumpy(fnm string, shape []int) (npw *gonpy.NpyWriter, finish func() error, err error) {
	output, err := os.Create(fnm)
	if err != nil {
		return nil, nil, err
	}
	bufw := bufio.NewWriterSize(output, 1<<20)
	var w io.Writer = bufw
	var gzw *pgzip.Writer
	if strings.HasSuffix(fnm, ".gz") {
		gzw = pgzip.NewWriter(bufw)
		w = gzw
	}
	npw, err = gonpy.NewWriter(nopCloser{w})
	if err != nil {
		output.Close()
		return nil, nil, err
	}
	npw.Shape = shape
	finish = func() error {
		if gzw != nil {
			if err := gzw.Close(); err != nil {
				output.Close()
				return err
			}
		}
		if err := bufw.Flush(); err != nil {
			output.Close()
			return err
		}
		return output.Close()
	}
	return npw, finish, nil
}

func writeNumpyUint8(fnm string, out []uint8, shape ...int) error {
	npw, finish, err := createNumpy(fnm, shape)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"filename": fnm,
		"shape":    shape,
		"bytes":    len(out),
	}).Debugf("writing numpy: %s", fnm)
	if err := npw.WriteUint8(out); err != nil {
		finish()
		return fmt.Errorf("%s: %w", fnm, err)
	}
	return finish()
}

func writeNumpyInt32(fnm string, out []int32, shape ...int) error {
	npw, finish, err := createNumpy(fnm, shape)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"filename": fnm,
		"shape":    shape,
		"bytes":    len(out) * 4,
	}).Debugf("writing numpy: %s", fnm)
	if err := npw.WriteInt32(out); err != nil {
		finish()
		return fmt.Errorf("%s: %w", fnm, err)
	}
	return finish()
}

// readNumpy opens fnm (decompressing if it ends in ".gz") and returns
// a gonpy reader whose shape has the given number of dimensions.
func readNumpy(fnm string, ndims int) (*gonpy.NpyReader, io.Closer, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, nil, err
	}
	npr, err := gonpy.NewReader(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", fnm, err)
	}
	if len(npr.Shape) != ndims {
		f.Close()
		return nil, nil, fmt.Errorf("%s: expected %d dimensions, found shape %v", fnm, ndims, npr.Shape)
	}
	return npr, f, nil
}
