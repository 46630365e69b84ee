// Package cli provides terminal presentation helpers for melograph
// command-line tools: aligned tables for listings, structured YAML/JSON
// output, and human-readable size and duration formatting.
package cli
