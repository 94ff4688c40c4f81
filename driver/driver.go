// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package driver repeatedly invokes harness entry points and collects
// crashers, the way an external fuzz engine drives a loaded harness.
package driver

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/bradleyjkemp/fuzz-harness/harness"
)

const syncPeriod = 3 * time.Second

// ErrHung is returned once an entry has exceeded the invocation timeout.
// The hung fragment may still hold the harness, so the driver stops using it.
var ErrHung = errors.New("harness hung")

// Sig identifies a crash by the hash of its suppression.
type Sig [sha1.Size]byte

func hash(data []byte) Sig {
	return Sig(sha1.Sum(data))
}

// Crash is one failed invocation. Output holds the panic message and stack,
// or the returned error text.
type Crash struct {
	Entry       harness.Entry
	Output      []byte
	Suppression []byte
	Panicked    bool
	Hanged      bool
}

// Driver manages one harness. It is not safe for concurrent use.
type Driver struct {
	h       *harness.Harness
	logger  *zap.Logger
	workdir string
	timeout time.Duration
	hung    bool

	crashers       []Crash
	suppressedSigs map[Sig]struct{}

	execs     uint64
	startTime time.Time
	lastSync  time.Time
}

type Option func(d *Driver)

func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithWorkdir makes the driver write new crashers under dir/crashers.
func WithWorkdir(dir string) Option {
	return func(d *Driver) { d.workdir = dir }
}

// WithTimeout bounds each invocation. An entry that runs longer is recorded
// as a hanging crasher. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Driver) { d.timeout = timeout }
}

func New(h *harness.Harness, opts ...Option) *Driver {
	d := &Driver{
		h:              h,
		logger:         zap.NewNop(),
		suppressedSigs: make(map[Sig]struct{}),
		startTime:      time.Now(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run invokes every entry once per round until rounds are done or ctx is
// cancelled.
func (d *Driver) Run(ctx context.Context, rounds int) error {
	for r := 0; r < rounds; r++ {
		for _, e := range harness.Entries() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := d.Invoke(e); err != nil {
				return err
			}
			d.broadcastStats()
		}
	}
	d.logger.Info("run finished",
		zap.Uint64("execs", d.execs),
		zap.Int("crashers", len(d.crashers)),
		zap.Duration("uptime", time.Since(d.startTime).Truncate(time.Millisecond)),
	)
	return nil
}

// Invoke calls e once. A panic, an error or a timeout is recorded as a
// crash. The returned error is ErrHung after a timeout, or a failure saving
// a crasher.
func (d *Driver) Invoke(e harness.Entry) error {
	if d.hung {
		return ErrHung
	}
	output, panicked, hanged := d.runEntryWithTimeout(e)
	if hanged {
		d.hung = true
		if err := d.noteCrasher(Crash{
			Entry:       e,
			Output:      output,
			Suppression: []byte("hang\n" + e.String()),
			Hanged:      true,
		}); err != nil {
			return err
		}
		return ErrHung
	}
	if output == nil {
		return nil
	}
	supp := output
	if panicked {
		supp = extractSuppression(output)
	}
	return d.noteCrasher(Crash{
		Entry:       e,
		Output:      output,
		Suppression: supp,
		Panicked:    panicked,
	})
}

// Note records err as a crash of e that happened outside the driver, such
// as a fragment failing during bootstrap.
func (d *Driver) Note(e harness.Entry, err error) error {
	if err == nil {
		return nil
	}
	output := []byte(err.Error())
	return d.noteCrasher(Crash{Entry: e, Output: output, Suppression: output})
}

func (d *Driver) runEntryWithTimeout(e harness.Entry) (output []byte, panicked, hanged bool) {
	d.execs++
	if d.timeout <= 0 {
		output, panicked = d.runEntry(e)
		return output, panicked, false
	}
	type result struct {
		output   []byte
		panicked bool
	}
	done := make(chan result, 1)
	go func() {
		output, panicked := d.runEntry(e)
		done <- result{output, panicked}
	}()
	timer := time.NewTimer(d.timeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.output, r.panicked, false
	case <-timer.C:
		return []byte(fmt.Sprintf("%s hanged (timeout %v)", e, d.timeout)), false, true
	}
}

func (d *Driver) runEntry(e harness.Entry) (output []byte, panicked bool) {
	defer func() {
		if err := recover(); err != nil {
			panicked = true
			output = []byte(fmt.Sprintf("panic: %v\n\n%s", err, debug.Stack()))
		}
	}()
	if err := d.h.Dispatch(e); err != nil {
		return []byte(err.Error()), false
	}
	return nil, false
}

func (d *Driver) noteCrasher(c Crash) error {
	sig := hash(c.Suppression)
	if _, ok := d.suppressedSigs[sig]; ok {
		return nil
	}
	d.suppressedSigs[sig] = struct{}{}
	d.crashers = append(d.crashers, c)
	d.logger.Warn("new crasher",
		zap.Stringer("entry", c.Entry),
		zap.Bool("panicked", c.Panicked),
		zap.Bool("hanged", c.Hanged),
		zap.String("sig", hex.EncodeToString(sig[:])),
		zap.ByteString("suppression", bytes.TrimSpace(c.Suppression)),
	)
	if d.workdir == "" {
		return nil
	}
	dir := filepath.Join(d.workdir, "crashers")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create crashers dir: %w", err)
	}
	name := filepath.Join(dir, hex.EncodeToString(sig[:])+".output")
	if err := os.WriteFile(name, c.Output, 0600); err != nil {
		return fmt.Errorf("save crasher: %w", err)
	}
	return nil
}

// Crashers returns the distinct crashes seen so far, oldest first.
func (d *Driver) Crashers() []Crash {
	return d.crashers
}

// Execs returns the number of entry invocations made by the driver.
func (d *Driver) Execs() uint64 {
	return d.execs
}

func (d *Driver) broadcastStats() {
	if time.Since(d.lastSync) < syncPeriod {
		return
	}
	d.lastSync = time.Now()
	uptime := time.Since(d.startTime)
	execsPerSec := float64(d.execs) * 1e9 / float64(uptime)
	d.logger.Info("stats",
		zap.Int("crashers", len(d.crashers)),
		zap.Uint64("execs", d.execs),
		zap.Float64("execs_per_sec", execsPerSec),
		zap.Duration("uptime", uptime.Truncate(time.Second)),
	)
}
