// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package harness

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

// countingFragments returns options injecting a fragment into every entry
// that records each execution in runs.
func countingFragments(runs *[numEntries]atomic.Int64) []Option {
	var opts []Option
	for _, e := range Entries() {
		opts = append(opts, WithFragment(e, func(*Harness) error {
			runs[e].Add(1)
			return nil
		}))
	}
	return opts
}

func TestLoadBootstrapsEveryEntryOnce(t *testing.T) {
	var runs [numEntries]atomic.Int64
	h, err := Load(NewGlobals(), countingFragments(&runs)...)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, e := range Entries() {
		if got := h.RunCount(e); got != 1 {
			t.Errorf("%s: run count %d after load, want 1", e, got)
		}
		if got := runs[e].Load(); got != 1 {
			t.Errorf("%s: fragment ran %d times during load, want 1", e, got)
		}
	}
}

func TestSecondCallRunsFragment(t *testing.T) {
	var runs [numEntries]atomic.Int64
	h, err := Load(NewGlobals(), countingFragments(&runs)...)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	bindings := map[Entry]func() error{
		JSFuzzer:      h.JSFuzzer,
		EventHandler1: h.EventHandler1,
		EventHandler2: h.EventHandler2,
		EventHandler3: h.EventHandler3,
		EventHandler4: h.EventHandler4,
		EventHandler5: h.EventHandler5,
	}
	for e, call := range bindings {
		if err := call(); err != nil {
			t.Fatalf("%s: %v", e, err)
		}
		if got := h.RunCount(e); got != 2 {
			t.Errorf("%s: run count %d, want 2", e, got)
		}
		if got := runs[e].Load(); got != 2 {
			t.Errorf("%s: fragment ran %d times, want 2", e, got)
		}
		if h.Suppressed(e) {
			t.Errorf("%s: suppressed after two calls", e)
		}
	}
}

func TestCeiling(t *testing.T) {
	var runs [numEntries]atomic.Int64
	h := New(countingFragments(&runs)...)
	for call := int64(1); call <= 10; call++ {
		if err := h.Dispatch(EventHandler3); err != nil {
			t.Fatalf("call %d: %v", call, err)
		}
		if got := h.RunCount(EventHandler3); got != call {
			t.Fatalf("call %d: run count %d", call, got)
		}
		want := call
		if want > Ceiling {
			want = Ceiling
		}
		if got := runs[EventHandler3].Load(); got != want {
			t.Fatalf("call %d: fragment ran %d times, want %d", call, got, want)
		}
		if got, want := h.Suppressed(EventHandler3), call > Ceiling; got != want {
			t.Fatalf("call %d: suppressed=%v, want %v", call, got, want)
		}
	}
	for _, e := range []Entry{JSFuzzer, EventHandler1, EventHandler2, EventHandler4, EventHandler5} {
		if h.RunCount(e) != 0 {
			t.Errorf("%s: counter moved by another entry's calls", e)
		}
	}
}

func TestEventHandler2Scenario(t *testing.T) {
	var runs [numEntries]atomic.Int64
	g := NewGlobals()
	h, err := Load(g, countingFragments(&runs)...)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, e := range Entries() {
		if got := h.RunCount(e); got != 1 {
			t.Fatalf("%s: run count %d after load, want 1", e, got)
		}
	}

	if err := g.Call("eventhandler2"); err != nil {
		t.Fatal(err)
	}
	if got := runs[EventHandler2].Load(); got != 2 {
		t.Fatalf("fragment did not run on the call reaching 2: ran %d times", got)
	}
	if err := g.Call("eventhandler2"); err != nil {
		t.Fatal(err)
	}
	if got := h.RunCount(EventHandler2); got != 3 {
		t.Fatalf("run count %d, want 3", got)
	}
	if got := runs[EventHandler2].Load(); got != 2 {
		t.Fatalf("fragment ran on the call reaching 3: ran %d times", got)
	}
}

func TestFragmentErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	h := New(WithFragment(JSFuzzer, func(*Harness) error { return boom }))
	if err := h.JSFuzzer(); !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}
	if err := h.JSFuzzer(); !errors.Is(err, boom) {
		t.Fatalf("second call: got %v, want %v", err, boom)
	}
	if err := h.JSFuzzer(); err != nil {
		t.Fatalf("suppressed call returned %v", err)
	}
}

func TestFragmentPanicIsNotRecovered(t *testing.T) {
	h := New(WithFragment(EventHandler1, func(*Harness) error { panic("fragment") }))
	defer func() {
		if r := recover(); r != "fragment" {
			t.Fatalf("recovered %v, want fragment panic", r)
		}
		if h.RunCount(EventHandler1) != 1 {
			t.Fatalf("run count %d, want 1", h.RunCount(EventHandler1))
		}
	}()
	h.EventHandler1()
}

func TestBootstrapStopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	var runs [numEntries]atomic.Int64
	opts := append(countingFragments(&runs), WithFragment(EventHandler2, func(*Harness) error { return boom }))
	h, err := Load(NewGlobals(), opts...)
	if !errors.Is(err, boom) {
		t.Fatalf("Load error %v, want %v", err, boom)
	}
	var be *BootstrapError
	if !errors.As(err, &be) || be.Entry != EventHandler2 {
		t.Fatalf("Load error %#v, want a BootstrapError for eventhandler2", err)
	}
	if h == nil {
		t.Fatal("no harness returned with bootstrap error")
	}
	for _, e := range Entries() {
		want := int64(0)
		if e <= EventHandler2 {
			want = 1
		}
		if got := h.RunCount(e); got != want {
			t.Errorf("%s: run count %d, want %d", e, got, want)
		}
	}
}

func TestConcurrentDispatchHonorsCeiling(t *testing.T) {
	var ran atomic.Int64
	h := New(WithFragment(EventHandler4, func(*Harness) error {
		ran.Add(1)
		return nil
	}))
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.EventHandler4()
		}()
	}
	wg.Wait()
	if got := ran.Load(); got != Ceiling {
		t.Fatalf("fragment ran %d times, want %d", got, Ceiling)
	}
	if got := h.RunCount(EventHandler4); got != 64 {
		t.Fatalf("run count %d, want 64", got)
	}
}

func TestFragmentsShareStore(t *testing.T) {
	var seen any
	_, err := Load(NewGlobals(),
		WithFragment(JSFuzzer, func(h *Harness) error {
			h.SetVariable([]int{1, 2}, "Array")
			return nil
		}),
		WithFragment(EventHandler5, func(h *Harness) error {
			seen = h.GetVariable("Array")
			return nil
		}),
	)
	if err != nil {
		t.Fatal(err)
	}
	if s, ok := seen.([]int); !ok || len(s) != 2 {
		t.Fatalf("eventhandler5 saw %#v", seen)
	}
}

func TestPublishedNames(t *testing.T) {
	g := NewGlobals()
	if _, err := Load(g); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"GetVariable", "SetVariable",
		"eventhandler1", "eventhandler2", "eventhandler3", "eventhandler4", "eventhandler5",
		"freememory", "jsfuzzer",
	}
	got := g.Names()
	if len(got) != len(want) {
		t.Fatalf("names %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names %v, want %v", got, want)
		}
	}

	set, _ := g.Lookup(NameSetVariable)
	get, _ := g.Lookup(NameGetVariable)
	set.(func(any, string))(42, "foo")
	if v := get.(func(string) any)("foo"); v != 42 {
		t.Fatalf("GetVariable(foo) = %v, want 42", v)
	}
	free, _ := g.Lookup(NameFreeMemory)
	free.(func())()
}

func TestParseEntry(t *testing.T) {
	for _, e := range Entries() {
		got, ok := ParseEntry(e.String())
		if !ok || got != e {
			t.Errorf("ParseEntry(%q) = %v, %v", e.String(), got, ok)
		}
	}
	if _, ok := ParseEntry("eventhandler6"); ok {
		t.Error("ParseEntry accepted eventhandler6")
	}
	if s := Entry(9).String(); s != "Entry(9)" {
		t.Errorf("String() = %q", s)
	}
}
