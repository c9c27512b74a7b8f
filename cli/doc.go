// Package cli contains the command line interface for cask.
//
// # Commands
//
//	cask [run] SCRIPT [ARGS...]   run a script (default command)
//	cask check SCRIPT...          parse scripts without running them
//	cask eval SOURCE...           evaluate source and print its value
//	cask exts [-m]                list permitted extensions or curated modules
//	cask repl                     interactive session
//	cask init [-f]                write the configuration file
//
// # Host options
//
//   - --basedir: directories searched for scripts (the .apy suffix is
//     optional)
//   - --allow: extensions scripts may load
//   - --policy: expr-lang expression over name and allowed deciding
//     whether an extension may load, e.g. `name in allowed || name
//     startsWith "t"`
//   - --modules: curated modules installed before the script runs
//   - --flatten: bind every assignment in the global scope
//   - --step-limit: terminate runaway scripts
//
// # Configuration
//
// Flag defaults are read from config.yaml in the user configuration
// directory. Its extensions section holds options passed to every
// extension (allow_system, allow_getenv, file_root, sql_root). Use
// `cask init` to write the current settings.
//
// # Logging Options
//
//   - --log-level: trace, debug, info, warn, error
//   - --log-format: json, text
//   - --log-time-layout: RFC3339, RFC3339Nano, Kitchen, or a Go layout
//   - --[no-]log-caller, --[no-]log-pretty
//
// # Profiling Options
//
// Profiling is only available when built with the pprof build tag:
//
//	go build -tags pprof -o cask .
//
//   - --pprof-mode: allocs, block, clock, cpu, goroutine, heap, mem, mutex,
//     thread, trace
//   - --pprof-dir: profile output directory (default: cache dir/pprof)
package cli
