// Copyright 2023 the Vello Authors
// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package main

import (
	"bytes"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"honnef.co/go/gp0replay/internal/logger"
)

var (
	nl            = []byte("\n")
	space         = []byte(" ")
	commentMarker = []byte("//")
	let           = []byte("let ")
)

// Preprocessor expands #import, #ifdef, #ifndef, #else and #endif
// directives in WGSL sources. Directives must be the first non-whitespace
// item on their line.
//
// Module-scope "let" declarations are rewritten to "const".
type Preprocessor struct {
	// Imports contains the importable sources, named <name>.wgsl.
	Imports fs.FS
	Defines map[string]struct{}
	Logger  *slog.Logger

	imports map[string][]byte
}

type branch struct {
	active     bool
	elsePassed bool
}

func (p *Preprocessor) log() *slog.Logger {
	if p.Logger == nil {
		return logger.L()
	}
	return p.Logger
}

func (p *Preprocessor) getImport(name string) ([]byte, error) {
	if src, ok := p.imports[name]; ok {
		return src, nil
	}
	p.log().Debug("loading import", "name", name)
	src, err := fs.ReadFile(p.Imports, name+".wgsl")
	if err != nil {
		return nil, err
	}
	if p.imports == nil {
		p.imports = make(map[string][]byte)
	}
	p.imports[name] = src
	return src, nil
}

// Preprocess expands source. Every import is included at most once, at
// its first active #import.
func (p *Preprocessor) Preprocess(source []byte, name string) ([]byte, error) {
	return p.preprocess(nil, source, name, map[string]struct{}{})
}

func (p *Preprocessor) preprocess(out []byte, source []byte, name string, seen map[string]struct{}) ([]byte, error) {
	var stack []branch
	lineNo := 0
	errorf := func(f string, v ...any) error {
		return fmt.Errorf("%s:%d: %s", name, lineNo, fmt.Sprintf(f, v...))
	}
	active := func() bool {
		for _, b := range stack {
			if !b.active {
				return false
			}
		}
		return true
	}

	for len(source) > 0 {
		lineNo++
		var line []byte
		line, source, _ = bytes.Cut(source, nl)

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 || trimmed[0] != '#' {
			if active() {
				if bytes.HasPrefix(line, let) {
					out = append(out, "const"...)
					line = line[len("let"):]
				}
				out = append(out, line...)
				out = append(out, '\n')
			}
			continue
		}

		directive, arg, _ := bytes.Cut(trimmed[1:], space)
		arg = bytes.TrimSpace(arg)
		p.log().Debug("processing directive", "file", name, "line", lineNo, "directive", string(directive))

		switch string(directive) {
		case "ifdef", "ifndef":
			if len(arg) == 0 {
				return nil, errorf("#%s needs an argument", directive)
			}
			_, defined := p.Defines[string(arg)]
			stack = append(stack, branch{active: defined == (string(directive) == "ifdef")})

		case "else":
			if len(stack) == 0 {
				return nil, errorf("#else without #ifdef or #ifndef")
			}
			if len(arg) != 0 {
				return nil, errorf("#else directive doesn't accept arguments")
			}
			b := &stack[len(stack)-1]
			if b.elsePassed {
				return nil, errorf("second #else for the same #ifdef or #ifndef")
			}
			b.elsePassed = true
			b.active = !b.active

		case "endif":
			if len(stack) == 0 {
				return nil, errorf("mismatched #endif")
			}
			if len(arg) != 0 && !bytes.HasPrefix(arg, commentMarker) {
				return nil, errorf("#endif directive doesn't accept arguments")
			}
			stack = stack[:len(stack)-1]

		case "import":
			if len(arg) == 0 {
				return nil, errorf("#import needs an argument")
			}
			if !active() {
				continue
			}
			importName := string(arg)
			if _, ok := seen[importName]; ok {
				p.log().Debug("skipping repeated import", "name", importName)
				continue
			}
			seen[importName] = struct{}{}
			src, err := p.getImport(importName)
			if err != nil {
				return nil, errorf("couldn't import %q: %s", importName, err)
			}
			out, err = p.preprocess(out, src, importName+".wgsl", seen)
			if err != nil {
				return nil, err
			}

		default:
			return nil, errorf("unknown preprocessor directive %q", directive)
		}
	}

	if len(stack) != 0 {
		return nil, errorf("missing #endif")
	}
	return out, nil
}

type Permutation struct {
	Name    string
	Defines []string
}

// parsePermutations parses a permutations file. A line names a source
// shader; the lines following it that start with + name one output each,
// optionally followed by a colon and a list of defines. Lines starting with
// # are comments.
func parsePermutations(source []byte) (map[string][]Permutation, error) {
	out := make(map[string][]Permutation)
	var current string
	lineNo := 0
	for len(source) > 0 {
		lineNo++
		var line []byte
		line, source, _ = bytes.Cut(source, nl)
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if line[0] != '+' {
			current = string(line)
			continue
		}
		if current == "" {
			return nil, fmt.Errorf("line %d: permutation before any shader", lineNo)
		}
		name, defines, _ := strings.Cut(string(line[1:]), ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("line %d: permutation has no name", lineNo)
		}
		out[current] = append(out[current], Permutation{name, strings.Fields(defines)})
	}
	return out, nil
}
