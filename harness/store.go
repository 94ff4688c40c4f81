// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package harness

import (
	"math"
	"reflect"
	"sync"
)

// Store is the variable store shared by all fragments of a harness.
// Each key holds only its most recently set value.
type Store struct {
	mu   sync.RWMutex
	vars map[string]any
}

func NewStore() *Store {
	return &Store{vars: make(map[string]any)}
}

// Set overwrites the value held for typeKey.
func (s *Store) Set(typeKey string, value any) {
	s.mu.Lock()
	s.vars[typeKey] = value
	s.mu.Unlock()
}

// Get returns the value held for typeKey, or nil if the key was never set.
// A falsy value (see falsy) also reads back as nil.
func (s *Store) Get(typeKey string) any {
	s.mu.RLock()
	v := s.vars[typeKey]
	s.mu.RUnlock()
	if falsy(v) {
		return nil
	}
	return v
}

// falsy reports whether v is false, zero, NaN, empty string or a nil reference.
func falsy(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return !rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f == 0 || math.IsNaN(f)
	case reflect.String:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}
