// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package harness

import (
	"fmt"
	"sync/atomic"
)

// Entry identifies one of the six fixed entry points.
type Entry int

const (
	JSFuzzer Entry = iota
	EventHandler1
	EventHandler2
	EventHandler3
	EventHandler4
	EventHandler5

	numEntries
)

var entryNames = [numEntries]string{
	JSFuzzer:      "jsfuzzer",
	EventHandler1: "eventhandler1",
	EventHandler2: "eventhandler2",
	EventHandler3: "eventhandler3",
	EventHandler4: "eventhandler4",
	EventHandler5: "eventhandler5",
}

// Entries returns all entry points in bootstrap order.
func Entries() []Entry {
	return []Entry{JSFuzzer, EventHandler1, EventHandler2, EventHandler3, EventHandler4, EventHandler5}
}

func (e Entry) String() string {
	if !e.valid() {
		return fmt.Sprintf("Entry(%d)", int(e))
	}
	return entryNames[e]
}

func (e Entry) valid() bool {
	return e >= 0 && e < numEntries
}

// ParseEntry maps a published entry name back to its Entry.
func ParseEntry(name string) (Entry, bool) {
	for e, n := range entryNames {
		if n == name {
			return Entry(e), true
		}
	}
	return 0, false
}

// runCount tracks invocations per entry. Counters only ever grow.
type runCount struct {
	counts [numEntries]atomic.Int64
}

// increment advances the entry's counter and returns the new value as one
// atomic step, so two concurrent callers never observe the same count.
func (rc *runCount) increment(e Entry) int64 {
	return rc.counts[e].Add(1)
}

func (rc *runCount) get(e Entry) int64 {
	return rc.counts[e].Load()
}
