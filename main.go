// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"io/ioutil"
	"os"
	"path/filepath"
	"text/template"

	"golang.org/x/tools/imports"

	"github.com/bradleyjkemp/fuzz-harness/harness"
	"github.com/bradleyjkemp/fuzz-harness/inject"
)

var (
	flagOut      = flag.String("o", "", "if set, write the generated fragments to this file instead of stdout")
	flagPkg      = flag.String("pkg", "fragments", "package name of the generated file")
	flagPayloads = flag.String("payloads", ".", "directory with one <entry>.go.txt payload per entry point")
)

// payloadExt is appended to the entry name to find its payload file.
const payloadExt = ".go.txt"

// entryIdents are the harness identifiers of each entry, in bootstrap order.
var entryIdents = map[harness.Entry]string{
	harness.JSFuzzer:      "JSFuzzer",
	harness.EventHandler1: "EventHandler1",
	harness.EventHandler2: "EventHandler2",
	harness.EventHandler3: "EventHandler3",
	harness.EventHandler4: "EventHandler4",
	harness.EventHandler5: "EventHandler5",
}

// main renders the fragment template, substitutes one payload into each
// entry body and writes the formatted Go source.
func main() {
	flag.Parse()
	c := new(Context)

	if flag.NArg() > 0 {
		c.failf("usage: fuzz-harness [-o file] [-pkg name] [-payloads dir]")
	}

	payloads, err := loadPayloads(*flagPayloads)
	if err != nil {
		c.failf("%v", err)
	}
	src, err := generate(*flagPkg, payloads)
	if err != nil {
		c.failf("%v", err)
	}
	if *flagOut == "" {
		os.Stdout.Write(src)
		return
	}
	c.writeFile(*flagOut, src)
}

// Context holds state for a generator run.
type Context struct{}

func (c *Context) failf(str string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, str+"\n", args...)
	os.Exit(1)
}

func (c *Context) writeFile(name string, data []byte) {
	if err := ioutil.WriteFile(name, data, 0644); err != nil {
		c.failf("failed to write output file: %v", err)
	}
}

// loadPayloads reads the payload of every entry from dir. A missing file
// leaves that entry's body empty.
func loadPayloads(dir string) ([]string, error) {
	var payloads []string
	for _, e := range harness.Entries() {
		data, err := ioutil.ReadFile(filepath.Join(dir, e.String()+payloadExt))
		if errors.Is(err, fs.ErrNotExist) {
			payloads = append(payloads, "")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read payload for %s: %w", e, err)
		}
		payloads = append(payloads, string(data))
	}
	return payloads, nil
}

// generate produces the fragments file for pkg. payloads are in bootstrap order.
func generate(pkg string, payloads []string) ([]byte, error) {
	var idents []string
	for _, e := range harness.Entries() {
		idents = append(idents, entryIdents[e])
	}
	buf := new(bytes.Buffer)
	err := fragmentsTmpl.Execute(buf, struct {
		Package string
		Entries []string
		Marker  string
	}{pkg, idents, inject.Marker})
	if err != nil {
		return nil, fmt.Errorf("failed to execute fragments template: %w", err)
	}
	filled, err := inject.Fill(buf.String(), payloads)
	if err != nil {
		return nil, err
	}
	src, err := imports.Process(pkg+".go", []byte(filled), nil)
	if err != nil {
		return nil, fmt.Errorf("generated source does not compile: %w", err)
	}
	return src, nil
}

var fragmentsTmpl = template.Must(template.New("fragments").Parse(`// Code generated by fuzz-harness. DO NOT EDIT.

package {{.Package}}

import "github.com/bradleyjkemp/fuzz-harness/harness"

// Fragments returns the injected entry point bodies as harness options.
func Fragments() []harness.Option {
	return []harness.Option{
{{range .Entries}}		harness.WithFragment(harness.{{.}}, func(h *harness.Harness) error {
			{{$.Marker}}
			return nil
		}),
{{end}}	}
}
`))
