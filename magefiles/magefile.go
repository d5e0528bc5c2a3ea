//go:build mage

// Package main contains Mage build targets for alignoa developer tooling.
package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// projectDirs lists the working directories the default configuration
// expects.
var projectDirs = []string{
	"dumps/meta",
	"dumps/openalex/data",
	"work/meta_tables",
	"work/openalex_tables",
	"out/mapping",
	"out/inverted",
}

// Init creates the working directories and a default alignoa.yaml.
func Init() error {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	if _, err := os.Stat("alignoa.yaml"); os.IsNotExist(err) {
		mg.Deps(Build)
		if err := sh.RunV(binPath(), "config", "init"); err != nil {
			return err
		}
	}
	fmt.Println("Project directories initialized.")
	return nil
}

const (
	binDir  = "bin"
	binName = "alignoa"
	cmdPkg  = "./cmd/alignoa"
)

func binPath() string {
	return filepath.Join(binDir, binName)
}

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	if err := sh.RunV("go", "build", "-o", binPath(), cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", binPath())
	return nil
}

// Test runs the unit tests of every package.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Stats prints Go line counts per package and the word count of the
// markdown documents at the repository root.
func Stats() error {
	prod, tests := map[string]int{}, map[string]int{}
	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if name := d.Name(); path != "." && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		n, err := nonBlankLines(path)
		if err != nil {
			return err
		}
		if strings.HasSuffix(path, "_test.go") {
			tests[filepath.Dir(path)] += n
		} else {
			prod[filepath.Dir(path)] += n
		}
		return nil
	})
	if err != nil {
		return err
	}

	dirs := make([]string, 0, len(prod))
	for dir := range prod {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	var totalProd, totalTests int
	for _, dir := range dirs {
		fmt.Printf("%-24s %6d %6d\n", dir, prod[dir], tests[dir])
		totalProd += prod[dir]
		totalTests += tests[dir]
	}
	fmt.Printf("%-24s %6d %6d\n", "total (prod, tests)", totalProd, totalTests)

	docs, _ := filepath.Glob("*.md")
	words := 0
	for _, doc := range docs {
		data, err := os.ReadFile(doc)
		if err != nil {
			return fmt.Errorf("reading %s: %w", doc, err)
		}
		words += len(strings.Fields(string(data)))
	}
	fmt.Printf("Words (markdown): %d\n", words)
	return nil
}

func nonBlankLines(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	n := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n, nil
}
