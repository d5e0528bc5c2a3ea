//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Pipeline runs the alignoa stages in order against alignoa.yaml.
type Pipeline mg.Namespace

func alignoa(args ...string) error {
	mg.Deps(Build)
	return sh.RunV(binPath(), args...)
}

// Meta extracts the identifier tables from the Meta CSV dump.
func (Pipeline) Meta() error {
	return alignoa("meta")
}

// OpenAlex extracts candidate tables for every OpenAlex entity kind.
func (Pipeline) OpenAlex() error {
	return alignoa("openalex", "--kind", "all")
}

// Index builds every lookup table, replacing existing ones.
func (Pipeline) Index() error {
	mg.Deps(Pipeline.OpenAlex)
	return alignoa("index", "all", "--replace")
}

// Map resolves bibliographic resources, venues and agents.
func (Pipeline) Map() error {
	mg.SerialDeps(Pipeline.Meta, Pipeline.Index)
	for _, args := range [][]string{
		{"map"},
		{"map", "--venues"},
		{"map", "--agents"},
	} {
		if err := alignoa(args...); err != nil {
			return err
		}
	}
	return nil
}

// Analyse runs the fan-out, inverted and coverage reports over an existing
// mapping.
func (Pipeline) Analyse() error {
	for _, args := range [][]string{
		{"stats"},
		{"fanout"},
		{"inverted"},
	} {
		if err := alignoa(args...); err != nil {
			return err
		}
	}
	return nil
}

// All runs every stage.
func (Pipeline) All() {
	mg.SerialDeps(Pipeline.Map, Pipeline.Analyse)
}
