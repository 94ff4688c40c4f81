// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package harness

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"go.uber.org/zap"
)

// Hook asks the host to reclaim memory. A nil Hook means the mechanism is
// not available.
type Hook func() error

// Collector runs every known collection hook in order.
type Collector struct {
	hooks  []Hook
	logger *zap.Logger
}

// DefaultHooks are the collection mechanisms the Go runtime always has.
func DefaultHooks() []Hook {
	return []Hook{
		func() error { runtime.GC(); return nil },
		func() error { debug.FreeOSMemory(); return nil },
	}
}

func NewCollector(hooks ...Hook) *Collector {
	return &Collector{hooks: hooks, logger: zap.NewNop()}
}

// Append adds hooks after the existing ones.
func (c *Collector) Append(hooks ...Hook) {
	c.hooks = append(c.hooks, hooks...)
}

// Collect tries every hook. Failures are discarded and never reach the caller.
func (c *Collector) Collect() {
	for i, hook := range c.hooks {
		if err := c.try(hook); err != nil {
			c.logger.Debug("collection hook failed", zap.Int("hook", i), zap.Error(err))
		}
	}
}

func (c *Collector) try(hook Hook) (err error) {
	if hook == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = errPanicked{r}
		}
	}()
	return hook()
}

type errPanicked struct {
	v any
}

func (e errPanicked) Error() string {
	return fmt.Sprintf("hook panicked: %v", e.v)
}
