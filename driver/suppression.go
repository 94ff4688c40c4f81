// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package driver

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/maruel/panicparse/v2/stack"
)

// dispatchFunc is the frame that calls into fragments. Frames below it
// belong to the harness and driver, not the code under test.
const dispatchFunc = "/harness.(*Harness).Dispatch"

// extractSuppression reduces a panic dump to the panic site plus the call
// chain up to Dispatch. Dumps that cannot be parsed are used whole.
func extractSuppression(out []byte) []byte {
	snap, _, err := stack.ScanSnapshot(bytes.NewReader(out), io.Discard, stack.DefaultOpts())
	if err != nil && err != io.EOF {
		return out
	}
	if snap == nil || len(snap.Goroutines) == 0 {
		return out
	}

	calls := snap.Goroutines[0].Stack.Calls
	i := 0
	for i < len(calls) && isPanicMachinery(calls[i].Func.Complete) {
		i++
	}
	if i == len(calls) {
		return out
	}

	// first part of suppression should include line number
	suppression := []byte(fmt.Sprintf("\n%s %s:%d", shortName(calls[i].Func.Complete), calls[i].SrcName, calls[i].Line))
	for _, c := range calls[i+1:] {
		if strings.HasSuffix(c.Func.Complete, dispatchFunc) {
			break
		}
		suppression = append(suppression, []byte("\n"+shortName(c.Func.Complete))...)
	}
	return suppression
}

// shortName drops the import path, leaving pkg.Func.
func shortName(complete string) string {
	if i := strings.LastIndexByte(complete, '/'); i >= 0 {
		return complete[i+1:]
	}
	return complete
}

// isPanicMachinery matches the frames debug.Stack and panic add on top of
// the panicking code.
func isPanicMachinery(name string) bool {
	return name == "" || name == "panic" ||
		strings.HasPrefix(name, "runtime.") ||
		strings.HasPrefix(name, "runtime/debug.") ||
		strings.Contains(name, "driver.(*Driver).runEntry")
}
