// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package luahost runs harness fragments as Lua chunks. The harness is
// published as Lua globals, so fragments call jsfuzzer(), SetVariable(v, t),
// GetVariable(t) and freememory() directly.
package luahost

import (
	"fmt"
	"strconv"

	"github.com/Shopify/go-lua"

	"github.com/bradleyjkemp/fuzz-harness/harness"
)

// refsKey names the registry table holding compiled fragments and stashed
// Lua values.
const refsKey = "fuzz-harness.refs"

// Host is a harness.Namespace backed by a Lua state.
// It is not safe for concurrent use, as the Lua state is not.
type Host struct {
	l      *lua.State
	nextID int
}

func New() *Host {
	l := lua.NewState()
	lua.OpenLibraries(l)
	l.NewTable()
	l.SetField(lua.RegistryIndex, refsKey)
	return &Host{l: l}
}

// State exposes the underlying Lua state.
func (h *Host) State() *lua.State {
	return h.l
}

// nilKey is the store key used when a script omits the type key.
const nilKey = "nil"

// Define publishes value as the Lua global name.
func (h *Host) Define(name string, value any) error {
	switch fn := value.(type) {
	case func() error:
		h.l.Register(name, func(l *lua.State) int {
			if err := fn(); err != nil {
				lua.Errorf(l, "%s", err.Error())
			}
			return 0
		})
	case func(string) any:
		h.l.Register(name, func(l *lua.State) int {
			key := lua.OptString(l, 1, nilKey)
			h.push(fn(key))
			return 1
		})
	case func(any, string):
		h.l.Register(name, func(l *lua.State) int {
			key := lua.OptString(l, 2, nilKey)
			fn(h.value(1), key)
			return 0
		})
	case func():
		h.l.Register(name, func(l *lua.State) int {
			fn()
			return 0
		})
	default:
		return fmt.Errorf("cannot publish %T to lua", value)
	}
	return nil
}

// Compile turns src into the fragment for entry e.
func (h *Host) Compile(e harness.Entry, src string) (harness.Fragment, error) {
	top := h.l.Top()
	defer h.l.SetTop(top)
	if err := lua.LoadBuffer(h.l, src, "="+e.String(), ""); err != nil {
		return nil, fmt.Errorf("compile %s: %w", e, err)
	}
	id := h.stash(-1)
	return func(*harness.Harness) error {
		top := h.l.Top()
		defer h.l.SetTop(top)
		h.fetch(id)
		return h.l.ProtectedCall(0, 0, 0)
	}, nil
}

// Load compiles sources, publishes a harness into the Lua globals and
// bootstraps it. Entries missing from sources get an empty body.
func (h *Host) Load(sources map[harness.Entry]string, opts ...harness.Option) (*harness.Harness, error) {
	hooks := append(harness.DefaultHooks(), h.collectGarbage)
	all := []harness.Option{harness.WithCollector(harness.NewCollector(hooks...))}
	for _, e := range harness.Entries() {
		src, ok := sources[e]
		if !ok {
			continue
		}
		f, err := h.Compile(e, src)
		if err != nil {
			return nil, err
		}
		all = append(all, harness.WithFragment(e, f))
	}
	return harness.Load(h, append(all, opts...)...)
}

// Call invokes the Lua global name with no arguments, the way an external
// driver script would.
func (h *Host) Call(name string) error {
	top := h.l.Top()
	defer h.l.SetTop(top)
	h.l.Global(name)
	if h.l.TypeOf(-1) != lua.TypeFunction {
		return fmt.Errorf("%s is not a lua function", name)
	}
	return h.l.ProtectedCall(0, 0, 0)
}

// DoString runs a Lua chunk in the host's global scope.
func (h *Host) DoString(src string) error {
	top := h.l.Top()
	defer h.l.SetTop(top)
	return lua.DoString(h.l, src)
}

func (h *Host) collectGarbage() error {
	return h.DoString(`collectgarbage("collect")`)
}

// stash keeps the value at index alive in the registry and returns its id.
func (h *Host) stash(index int) int {
	index = h.l.AbsIndex(index)
	h.nextID++
	h.l.Field(lua.RegistryIndex, refsKey)
	h.l.PushValue(index)
	h.l.SetField(-2, strconv.Itoa(h.nextID))
	h.l.Pop(1)
	return h.nextID
}

// fetch pushes the stashed value id.
func (h *Host) fetch(id int) {
	h.l.Field(lua.RegistryIndex, refsKey)
	h.l.Field(-1, strconv.Itoa(id))
	h.l.Remove(-2)
}
