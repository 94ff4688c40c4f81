// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package harness

import (
	"fmt"
	"sort"
	"sync"
)

// Published names of the store and collector operations.
const (
	NameGetVariable = "GetVariable"
	NameSetVariable = "SetVariable"
	NameFreeMemory  = "freememory"
)

// Namespace is the host-side global scope the harness publishes into.
//
// Define receives one of these value types:
//
//	func() error                 an entry point
//	func(typeKey string) any     GetVariable
//	func(name any, typeKey string) SetVariable
//	func()                       freememory
type Namespace interface {
	Define(name string, value any) error
}

// Publish defines every entry point plus the store and collector
// operations on ns.
func (h *Harness) Publish(ns Namespace) error {
	for _, e := range Entries() {
		if err := ns.Define(e.String(), func() error { return h.Dispatch(e) }); err != nil {
			return fmt.Errorf("publish %s: %w", e, err)
		}
	}
	defs := []struct {
		name  string
		value any
	}{
		{NameGetVariable, h.GetVariable},
		{NameSetVariable, h.SetVariable},
		{NameFreeMemory, h.FreeMemory},
	}
	for _, d := range defs {
		if err := ns.Define(d.name, d.value); err != nil {
			return fmt.Errorf("publish %s: %w", d.name, err)
		}
	}
	return nil
}

// BootstrapError reports the entry whose fragment failed during Bootstrap.
type BootstrapError struct {
	Entry Entry
	Err   error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrap %s: %v", e.Entry, e.Err)
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}

// Bootstrap invokes each entry once in order. It stops at the first
// fragment error, leaving later entries uninvoked. The error is a
// *BootstrapError.
func (h *Harness) Bootstrap() error {
	for _, e := range Entries() {
		if err := h.Dispatch(e); err != nil {
			return &BootstrapError{Entry: e, Err: err}
		}
	}
	return nil
}

// Load creates a harness, publishes it on ns and bootstraps it.
// On a bootstrap error the partially bootstrapped harness is still returned.
func Load(ns Namespace, opts ...Option) (*Harness, error) {
	h := New(opts...)
	if ns != nil {
		if err := h.Publish(ns); err != nil {
			return nil, err
		}
	}
	return h, h.Bootstrap()
}

// Globals is an in-memory Namespace.
type Globals struct {
	mu   sync.RWMutex
	vals map[string]any
}

func NewGlobals() *Globals {
	return &Globals{vals: make(map[string]any)}
}

func (g *Globals) Define(name string, value any) error {
	g.mu.Lock()
	g.vals[name] = value
	g.mu.Unlock()
	return nil
}

// Lookup returns the value defined under name.
func (g *Globals) Lookup(name string) (any, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.vals[name]
	return v, ok
}

// Call invokes the entry point published under name.
func (g *Globals) Call(name string) error {
	v, ok := g.Lookup(name)
	if !ok {
		return fmt.Errorf("%s is not defined", name)
	}
	fn, ok := v.(func() error)
	if !ok {
		return fmt.Errorf("%s is not an entry point", name)
	}
	return fn()
}

// Names returns the defined names in sorted order.
func (g *Globals) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.vals))
	for name := range g.vals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
