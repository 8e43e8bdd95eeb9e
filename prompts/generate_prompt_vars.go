// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

//go:build ignore

package main

import (
	"bytes"
	"fmt"
	"go/format"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

const header = `// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package prompts

// Automatically generated convenience vars for the filenames in prompts/
const (
`

func main() {
	log.SetFlags(0)

	versions := versionDirs()
	if len(versions) == 0 {
		log.Fatal("no prompt version directories found")
	}

	// Every version carries the same template names.
	names := templateNames(versions[len(versions)-1])
	for _, version := range versions[:len(versions)-1] {
		if got := templateNames(version); !slices.Equal(got, names) {
			log.Fatalf("%s has templates %v, latest version has %v", version, got, names)
		}
	}

	var output bytes.Buffer
	output.WriteString(header)
	for _, name := range names {
		fmt.Fprintf(&output, "\tPrompt%s = %q\n", camelCase(name), name)
	}
	output.WriteString(")\n")

	formatted, err := format.Source(output.Bytes())
	if err != nil {
		log.Fatalf("formatting output: %v", err)
	}
	if err := os.WriteFile("prompts_vars.go", formatted, 0644); err != nil {
		log.Fatalf("writing prompts_vars.go: %v", err)
	}
}

// versionDirs returns the v<N> directories ordered by N.
func versionDirs() []string {
	entries, err := os.ReadDir(".")
	if err != nil {
		log.Fatalf("reading prompts directory: %v", err)
	}

	type version struct {
		dir string
		num int
	}
	var found []version
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		num, err := strconv.Atoi(strings.TrimPrefix(entry.Name(), "v"))
		if err != nil || !strings.HasPrefix(entry.Name(), "v") {
			continue
		}
		found = append(found, version{dir: entry.Name(), num: num})
	}
	slices.SortFunc(found, func(a, b version) int { return a.num - b.num })

	dirs := make([]string, len(found))
	for i, v := range found {
		dirs[i] = v.dir
	}
	return dirs
}

func templateNames(dir string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, "*.tmpl"))
	if err != nil {
		log.Fatalf("listing %s: %v", dir, err)
	}

	names := make([]string, 0, len(matches))
	for _, match := range matches {
		name := strings.TrimSuffix(filepath.Base(match), ".tmpl")
		// Fragments are only included by other templates.
		if strings.HasPrefix(name, "_") {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func camelCase(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' })
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
	}
	return strings.Join(words, "")
}
