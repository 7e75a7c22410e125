// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"io"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	log "github.com/sirupsen/logrus"
)

// writeProfilesPeriodically replaces heap.prof and cpu.prof in outdir
// once a minute, for looking at long filter runs while they go.
func writeProfilesPeriodically(outdir string) {
	for range time.NewTicker(time.Minute).C {
		err := writeFileAtomic(filepath.Join(outdir, "heap.prof"), func(w io.Writer) error {
			runtime.GC()
			return pprof.WriteHeapProfile(w)
		})
		if err != nil {
			log.Print(err)
		}
		err = writeFileAtomic(filepath.Join(outdir, "cpu.prof"), func(w io.Writer) error {
			if err := pprof.StartCPUProfile(w); err != nil {
				return err
			}
			time.Sleep(time.Second)
			pprof.StopCPUProfile()
			return nil
		})
		if err != nil {
			log.Print(err)
		}
	}
}
