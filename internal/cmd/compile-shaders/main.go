// Copyright 2023 the Vello Authors
// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Command compile-shaders preprocesses the WGSL sources of the compute
// kernels into self-contained shaders.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"honnef.co/go/gp0replay/internal/logger"
)

const header = "// Code generated by compile-shaders. DO NOT EDIT.\n\n"

func main() {
	var (
		in      string
		out     string
		verbose bool
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-v] -in <dir> -out <dir>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.StringVar(&in, "in", "", "Path to `directory` to process")
	flag.StringVar(&out, "out", "./out", "Path to output `directory`")
	flag.BoolVar(&verbose, "v", false, "Be verbose")
	flag.Parse()

	if len(flag.Args()) != 0 || in == "" {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := compile(os.DirFS(in), out, log); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Shader is a preprocessed output.
type Shader struct {
	Name string
	Code []byte
}

// compileFS preprocesses every *.wgsl file at the root of src, once per
// permutation. Imports are looked up in src's shared directory.
func compileFS(src fs.FS, log *slog.Logger) ([]Shader, error) {
	if log == nil {
		log = logger.L()
	}
	var permutations map[string][]Permutation
	permSource, err := fs.ReadFile(src, "permutations")
	switch {
	case err == nil:
		permutations, err = parsePermutations(permSource)
		if err != nil {
			return nil, fmt.Errorf("couldn't parse permutations: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		log.Debug("didn't find permutations")
	default:
		return nil, fmt.Errorf("couldn't read permutations: %w", err)
	}

	shared, err := fs.Sub(src, "shared")
	if err != nil {
		return nil, err
	}
	p := Preprocessor{Imports: shared, Logger: log}

	matches, err := fs.Glob(src, "*.wgsl")
	if err != nil {
		return nil, err
	}

	var out []Shader
	for _, m := range matches {
		log.Debug("compiling", "file", m)
		source, err := fs.ReadFile(src, m)
		if err != nil {
			return nil, fmt.Errorf("couldn't read %q: %w", m, err)
		}

		shaderName := strings.TrimSuffix(m, ".wgsl")
		perms, ok := permutations[shaderName]
		if !ok {
			perms = []Permutation{{Name: shaderName}}
		}
		for _, perm := range perms {
			defines := make(map[string]struct{}, len(perm.Defines))
			for _, d := range perm.Defines {
				defines[d] = struct{}{}
			}
			log.Debug("preprocessing permutation", "name", perm.Name, "defines", perm.Defines)
			p.Defines = defines
			code, err := p.Preprocess(source, m)
			if err != nil {
				return nil, fmt.Errorf("couldn't preprocess %s: %w", perm.Name, err)
			}
			out = append(out, Shader{Name: perm.Name, Code: append([]byte(header), code...)})
		}
	}
	return out, nil
}

func compile(src fs.FS, dir string, log *slog.Logger) error {
	shaders, err := compileFS(src, log)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0777); err != nil {
		return fmt.Errorf("couldn't create output directory: %w", err)
	}
	for _, s := range shaders {
		if err := os.WriteFile(filepath.Join(dir, s.Name+".wgsl"), s.Code, 0666); err != nil {
			return err
		}
	}
	return nil
}
