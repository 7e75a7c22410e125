// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package locifilter

import (
	"sync"
	"sync/atomic"
)

// throttle is a bounded worker pool. The first error reported wins;
// once an error has been reported, Go refuses to start new work.
type throttle struct {
	Max       int
	wg        sync.WaitGroup
	ch        chan bool
	err       atomic.Value
	setupOnce sync.Once
	errorOnce sync.Once
}

func (t *throttle) Acquire() {
	t.setupOnce.Do(func() {
		if t.Max < 1 {
			t.Max = 1
		}
		t.ch = make(chan bool, t.Max)
	})
	t.wg.Add(1)
	t.ch <- true
}

func (t *throttle) Release() {
	t.wg.Done()
	<-t.ch
}

func (t *throttle) Report(err error) {
	if err != nil {
		t.errorOnce.Do(func() { t.err.Store(err) })
	}
}

func (t *throttle) Err() error {
	err, _ := t.err.Load().(error)
	return err
}

func (t *throttle) Wait() error {
	t.wg.Wait()
	return t.Err()
}

// Go waits for a free slot and runs f in a new goroutine. If an
// error has already been reported, f is not run and that error is
// returned.
func (t *throttle) Go(f func() error) error {
	t.Acquire()
	if err := t.Err(); err != nil {
		t.Release()
		return err
	}
	go func() {
		defer t.Release()
		t.Report(f())
	}()
	return nil
}
