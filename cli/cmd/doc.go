// Package cmd implements the cask subcommands: run, check, eval, exts, init
// and repl. Every command shares the engine configuration carried by
// [Host].
package cmd

var (
	// CacheIdentifier is the kong variable identifier containing the path to
	// the runtime cache directory.
	CacheIdentifier = "cache"

	// ConfigIdentifier is the kong variable identifier containing the path to
	// the YAML configuration file.
	ConfigIdentifier = "config"
)
