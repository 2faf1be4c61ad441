// Package gameid builds human-memorable game ids of the form
// adjective-noun-suffix, e.g. "quantum-vector-alpha". Ids are not unique by
// construction; callers retry on store conflicts.
package gameid

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

var adjectives = []string{
	"quantum", "atomic", "neural", "stellar", "cosmic", "optical", "kinetic",
	"thermal", "magnetic", "electric", "photonic", "sonic", "crystalline",
	"molecular", "orbital", "plasma", "gamma", "alpha", "beta", "delta",
	"micro", "nano", "meta", "ultra", "hyper", "neo", "proto", "pseudo",
	"cyber", "digital", "analog", "synthetic", "organic", "bionic", "ionic",
	"spectral", "temporal", "spatial", "dimensional", "fractal", "holographic",
}

var nouns = []string{
	"vector", "matrix", "prism", "catalyst", "reactor", "generator", "scanner",
	"analyzer", "synthesizer", "amplifier", "detector", "sensor", "probe",
	"beacon", "transmitter", "receiver", "oscillator", "resonator", "capacitor",
	"conductor", "isolator", "converter", "processor", "calculator", "computer",
	"algorithm", "protocol", "sequence", "pattern", "frequency", "wavelength",
	"spectrum", "field", "chamber", "module", "unit", "device", "apparatus",
	"instrument", "mechanism", "engine", "turbine", "dynamo", "circuit",
	"array", "grid", "network", "system", "core", "nexus", "hub", "node",
}

var suffixes = []string{
	"alpha", "beta", "gamma", "delta", "omega", "prime", "max", "ultra",
	"plus", "neo", "pro", "x", "z", "one", "two", "three", "seven", "nine",
}

// Generator is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func New(src rand.Source) *Generator {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Generator{rng: rand.New(src)}
}

var defaultGenerator = New(nil)

// Generate returns adjective-noun-suffix from the default generator.
func Generate() string {
	return defaultGenerator.Generate()
}

func (g *Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pick(adjectives) + "-" + g.pick(nouns) + "-" + g.pick(suffixes)
}

func (g *Generator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

// Display formats an id for UI: "quantum-vector-alpha" -> "QUANTUM VECTOR ALPHA".
func Display(id string) string {
	return strings.ReplaceAll(strings.ToUpper(id), "-", " ")
}
