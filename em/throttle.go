// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package em

import (
	"sync"
	"sync/atomic"
)

// throttle runs at most Max functions at a time and remembers the
// first error returned.
type throttle struct {
	Max       int
	wg        sync.WaitGroup
	ch        chan bool
	err       atomic.Value
	setupOnce sync.Once
	errorOnce sync.Once
}

func (t *throttle) Go(f func() error) {
	t.setupOnce.Do(func() { t.ch = make(chan bool, t.Max) })
	t.wg.Add(1)
	t.ch <- true
	go func() {
		defer func() {
			<-t.ch
			t.wg.Done()
		}()
		if err := f(); err != nil {
			t.errorOnce.Do(func() { t.err.Store(err) })
		}
	}()
}

func (t *throttle) Wait() error {
	t.wg.Wait()
	err, _ := t.err.Load().(error)
	return err
}

// eachDonor calls f(k) for every donor column, concurrently up to
// threads at a time. Each call must only write to its own column.
func eachDonor(donors, threads int, f func(k int) error) error {
	if threads <= 1 || donors == 1 {
		for k := 0; k < donors; k++ {
			if err := f(k); err != nil {
				return err
			}
		}
		return nil
	}
	t := throttle{Max: threads}
	for k := 0; k < donors; k++ {
		k := k
		t.Go(func() error { return f(k) })
	}
	return t.Wait()
}
