// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package luahost

import (
	"math"

	"github.com/Shopify/go-lua"
)

// ref is a Lua table, function or thread held in the registry. Storing the
// ref instead of a copy keeps one table shared between fragments.
type ref struct {
	host *Host
	id   int
}

// value converts the Lua value at index for the variable store.
func (h *Host) value(index int) any {
	switch h.l.TypeOf(index) {
	case lua.TypeNil, lua.TypeNone:
		return nil
	case lua.TypeBoolean:
		return h.l.ToBoolean(index)
	case lua.TypeNumber:
		n, _ := h.l.ToNumber(index)
		return normalizeNumber(n)
	case lua.TypeString:
		s, _ := h.l.ToString(index)
		return s
	case lua.TypeUserData:
		return h.l.ToUserData(index)
	}
	return &ref{host: h, id: h.stash(index)}
}

// push pushes a store value onto the Lua stack.
func (h *Host) push(v any) {
	switch x := v.(type) {
	case nil:
		h.l.PushNil()
	case bool:
		h.l.PushBoolean(x)
	case string:
		h.l.PushString(x)
	case int:
		h.l.PushInteger(x)
	case int8:
		h.l.PushInteger(int(x))
	case int16:
		h.l.PushInteger(int(x))
	case int32:
		h.l.PushInteger(int(x))
	case int64:
		h.l.PushInteger(int(x))
	case uint8:
		h.l.PushInteger(int(x))
	case uint16:
		h.l.PushInteger(int(x))
	case uint32:
		h.l.PushInteger(int(x))
	case uint:
		h.l.PushNumber(float64(x))
	case uint64:
		h.l.PushNumber(float64(x))
	case float32:
		h.l.PushNumber(float64(x))
	case float64:
		h.l.PushNumber(x)
	case *ref:
		if x.host == h {
			h.fetch(x.id)
			return
		}
		h.l.PushNil()
	default:
		h.l.PushUserData(v)
	}
}

func normalizeNumber(n float64) any {
	if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
		return int(n)
	}
	return n
}
