// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package harness

import (
	"errors"
	"testing"
)

func TestCollectNeverFails(t *testing.T) {
	var calls []string
	ok := func(name string) Hook {
		return func() error { calls = append(calls, name); return nil }
	}
	failing := func(name string) Hook {
		return func() error { calls = append(calls, name); return errors.New(name) }
	}
	panicking := func(name string) Hook {
		return func() error { calls = append(calls, name); panic(name) }
	}

	tests := []struct {
		name  string
		hooks []Hook
		want  []string
	}{
		{"no hooks", nil, nil},
		{"one absent", []Hook{nil}, nil},
		{"one working", []Hook{ok("a")}, []string{"a"}},
		{"one failing", []Hook{failing("a")}, []string{"a"}},
		{"one panicking", []Hook{panicking("a")}, []string{"a"}},
		{"absent then working", []Hook{nil, ok("b")}, []string{"b"}},
		{"panicking then working", []Hook{panicking("a"), ok("b")}, []string{"a", "b"}},
		{"failing then panicking", []Hook{failing("a"), panicking("b")}, []string{"a", "b"}},
		{"both absent", []Hook{nil, nil}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls = nil
			NewCollector(tt.hooks...).Collect()
			if len(calls) != len(tt.want) {
				t.Fatalf("calls %v, want %v", calls, tt.want)
			}
			for i := range tt.want {
				if calls[i] != tt.want[i] {
					t.Fatalf("calls %v, want %v", calls, tt.want)
				}
			}
		})
	}
}

func TestFreeMemoryUsesAppendedHooks(t *testing.T) {
	h := New()
	var ran bool
	h.Collector().Append(func() error { ran = true; return nil })
	h.FreeMemory()
	if !ran {
		t.Fatal("appended hook did not run")
	}
}
