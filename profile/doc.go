// Package profile provides optional runtime profiling for cask.
//
// Profiling wraps [github.com/pkg/profile] and is compiled in only with the
// "pprof" build tag:
//
//	go build -tags pprof -o cask .
//
// Without the tag [Modes] yields nothing and [Start] returns a no-op
// [Stopper], so callers need no build constraints of their own.
//
// # Modes
//
//   - allocs:    memory allocation profiling (all allocations)
//   - block:     block (synchronization) profiling
//   - clock:     wall-clock profiling
//   - cpu:       CPU profiling
//   - goroutine: goroutine profiling
//   - heap:      heap profiling (live allocations)
//   - mem:       general memory profiling
//   - mutex:     mutex contention profiling
//   - thread:    thread creation profiling
//   - trace:     execution trace
//
// A long-running script is the usual subject:
//
//	cask --pprof-mode=cpu --pprof-dir=/tmp/prof run worker.apy
//	go tool pprof -http=: /tmp/prof/cpu.pprof
//
// Profile files are named after the mode (cpu.pprof, mem.pprof, trace.out).
// The default directory is the pprof subdirectory of the cask cache
// directory.
package profile

// Tag is the build tag required to enable pprof profiling.
const Tag = `pprof`
