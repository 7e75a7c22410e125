// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"

	log "github.com/sirupsen/logrus"
)

// importLoci builds an array store from an unfiltered .loci file.
type importLoci struct {
	chunkSize int
	gzip      bool
	paired    bool
	samples   []string // store order; default is sorted by name
}

func (cmd *importLoci) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "", "input .loci `file` (.gz ok)")
	outputDir := flags.String("o", "", "output store `directory`")
	flags.IntVar(&cmd.chunkSize, "chunk-size", 1000, "loci per store chunk `file`")
	flags.BoolVar(&cmd.gzip, "gzip", false, "compress chunk files")
	flags.BoolVar(&cmd.paired, "paired", false, "loci are paired-end (read1 and read2 joined by \""+pairSpacer+"\")")
	flags.Var((*nameList)(&cmd.samples), "samples", "comma-separated sample `names` in store order (default: all names in file, sorted)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if *inputFilename == "" || *outputDir == "" {
		err = errors.New("both -i and -o are required")
		return 2
	}
	err = cmd.importFile(*inputFilename, *outputDir)
	if err != nil {
		return 1
	}
	fmt.Fprintln(stdout, *outputDir)
	return 0
}

func (cmd *importLoci) scan(fnm string, fn func(*locus) error) error {
	f, err := zopen(fnm)
	if err != nil {
		return err
	}
	defer f.Close()
	err = readLoci(bufio.NewReaderSize(f, 1<<20), fn)
	if err != nil {
		return fmt.Errorf("%s: %w", fnm, err)
	}
	return nil
}

// importFile reads fnm twice: once to find the sample names and the
// longest locus, then again to fill the store.
func (cmd *importLoci) importFile(fnm, dir string) error {
	seen := map[string]bool{}
	maxlen := 0
	err := cmd.scan(fnm, func(loc *locus) error {
		for i, name := range loc.Names {
			seen[name] = true
			if len(loc.Seqs[i]) > maxlen {
				maxlen = len(loc.Seqs[i])
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	samples := cmd.samples
	if len(samples) == 0 {
		for name := range seen {
			samples = append(samples, name)
		}
		sort.Strings(samples)
	}
	row := make(map[string]int, len(samples))
	for i, name := range samples {
		row[name] = i
	}
	sw, err := newStoreWriter(dir, storeMeta{
		ChunkSize: cmd.chunkSize,
		Width:     maxlen,
		Samples:   samples,
		Paired:    cmd.paired,
		Gzip:      cmd.gzip,
	})
	if err != nil {
		return err
	}
	nospacer := 0
	err = cmd.scan(fnm, func(loc *locus) error {
		rows := make([][]byte, len(samples))
		split := -1
		for i, name := range loc.Names {
			r, ok := row[name]
			if !ok {
				continue
			}
			rows[r] = loc.Seqs[i]
			if !cmd.paired {
				continue
			}
			// Uppercase N is missing data; only the lowercase
			// spacer separates the reads.
			at := bytes.Index(loc.Seqs[i], []byte(pairSpacer))
			if at < 0 {
				continue
			} else if split < 0 {
				split = at
			} else if at != split {
				return fmt.Errorf("locus %d: samples disagree on read1/read2 split (%d vs %d)", loc.Index, split, at)
			}
		}
		if cmd.paired && split < 0 {
			nospacer++
			split = maxlen
		}
		return sw.Add(rows, split)
	})
	if err != nil {
		return err
	}
	if nospacer > 0 {
		log.Warnf("%d loci have no %q spacer; their read2 side is empty", nospacer, pairSpacer)
	}
	err = sw.Close()
	if err != nil {
		return err
	}
	log.Printf("imported %d loci for %d samples to %s", sw.meta.NLoci, len(samples), dir)
	return nil
}
