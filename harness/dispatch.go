// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package harness implements the fuzz harness skeleton: six bounded entry
// points, a shared variable store and a best-effort memory-pressure trigger.
//
// A Harness is the single context object holding all harness state.
// The hosting glue creates one with Load and keeps it for the life of the
// process.
package harness

import (
	"go.uber.org/zap"
)

// Ceiling is the number of invocations per entry that run the fragment.
// The third and later invocations are counted but skipped.
const Ceiling = 2

// Fragment is the injected body of an entry point.
type Fragment func(h *Harness) error

// Harness holds the run counters, the fragments, the variable store
// and the collector.
type Harness struct {
	runs      runCount
	fragments [numEntries]Fragment
	store     *Store
	collector *Collector
	logger    *zap.Logger
}

type Option func(h *Harness)

// WithFragment injects f as the body of entry e.
func WithFragment(e Entry, f Fragment) Option {
	return func(h *Harness) {
		if e.valid() {
			h.fragments[e] = f
		}
	}
}

func WithStore(s *Store) Option {
	return func(h *Harness) { h.store = s }
}

// WithCollector replaces the default collector.
func WithCollector(c *Collector) Option {
	return func(h *Harness) { h.collector = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// New creates a harness with all counters at zero. Most hosts want Load,
// which also publishes and bootstraps it.
func New(opts ...Option) *Harness {
	h := &Harness{
		store:     NewStore(),
		collector: NewCollector(DefaultHooks()...),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.collector.logger = h.logger
	return h
}

// Dispatch counts one invocation of e and runs its fragment unless the count
// is past Ceiling. Fragment errors are returned unchanged; panics are not
// recovered.
func (h *Harness) Dispatch(e Entry) error {
	if !e.valid() {
		return nil
	}
	n := h.runs.increment(e)
	if n > Ceiling {
		return nil
	}
	f := h.fragments[e]
	if f == nil {
		return nil
	}
	if ce := h.logger.Check(zap.DebugLevel, "running fragment"); ce != nil {
		ce.Write(zap.Stringer("entry", e), zap.Int64("run", n))
	}
	return f(h)
}

func (h *Harness) JSFuzzer() error      { return h.Dispatch(JSFuzzer) }
func (h *Harness) EventHandler1() error { return h.Dispatch(EventHandler1) }
func (h *Harness) EventHandler2() error { return h.Dispatch(EventHandler2) }
func (h *Harness) EventHandler3() error { return h.Dispatch(EventHandler3) }
func (h *Harness) EventHandler4() error { return h.Dispatch(EventHandler4) }
func (h *Harness) EventHandler5() error { return h.Dispatch(EventHandler5) }

// RunCount returns how many times e has been invoked, skipped calls included.
func (h *Harness) RunCount(e Entry) int64 {
	if !e.valid() {
		return 0
	}
	return h.runs.get(e)
}

// Suppressed reports whether e has passed its ceiling. Once true it stays true.
func (h *Harness) Suppressed(e Entry) bool {
	return h.RunCount(e) > Ceiling
}

// SetVariable stores name under typeKey. The argument order matches the
// published SetVariable(name, type).
func (h *Harness) SetVariable(name any, typeKey string) {
	h.store.Set(typeKey, name)
}

// GetVariable returns the value stored under typeKey, or nil.
func (h *Harness) GetVariable(typeKey string) any {
	return h.store.Get(typeKey)
}

// FreeMemory asks the host to collect garbage now. It never fails.
func (h *Harness) FreeMemory() {
	h.collector.Collect()
}

// Store returns the harness variable store.
func (h *Harness) Store() *Store {
	return h.store
}

// Collector returns the harness collector, so hosts can append their own hooks.
func (h *Harness) Collector() *Collector {
	return h.collector
}
