// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package inject substitutes fuzz payloads into harness templates.
package inject

import (
	"errors"
	"fmt"
	"strings"
)

// Marker is the fragment-substitution marker. A template holds one per
// entry body.
const Marker = "/*<jsfuzzer>*/"

var ErrMarkerCount = errors.New("marker count does not match payload count")

// Count returns the number of markers in template.
func Count(template string) int {
	return strings.Count(template, Marker)
}

// Fill replaces the i-th marker in template with payloads[i].
func Fill(template string, payloads []string) (string, error) {
	if n := Count(template); n != len(payloads) {
		return "", fmt.Errorf("%w: %d markers, %d payloads", ErrMarkerCount, n, len(payloads))
	}
	var b strings.Builder
	b.Grow(len(template))
	rest := template
	for _, p := range payloads {
		i := strings.Index(rest, Marker)
		b.WriteString(rest[:i])
		b.WriteString(p)
		rest = rest[i+len(Marker):]
	}
	b.WriteString(rest)
	return b.String(), nil
}
