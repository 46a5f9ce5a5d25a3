// Package profiling captures pprof profiles and an execution trace for one
// CLI invocation.
package profiling

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// File names written into the profile directory.
const (
	CPUFile       = "cpu.prof"
	TraceFile     = "trace.out"
	HeapFile      = "heap.prof"
	AllocsFile    = "allocs.prof"
	GoroutineFile = "goroutine.prof"
)

// Session records profiles into a directory between Start and Stop.
type Session struct {
	dir       string
	cpuFile   *os.File
	traceFile *os.File
}

// Start creates dir and begins CPU profiling and tracing.
func Start(dir string) (*Session, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}
	s := &Session{dir: dir}

	f, err := os.Create(filepath.Join(dir, CPUFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create CPU profile file: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to start CPU profile: %w", err)
	}
	s.cpuFile = f

	tf, err := os.Create(filepath.Join(dir, TraceFile))
	if err != nil {
		s.stopCPU()
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}
	if err := trace.Start(tf); err != nil {
		_ = tf.Close()
		s.stopCPU()
		return nil, fmt.Errorf("failed to start trace: %w", err)
	}
	s.traceFile = tf

	return s, nil
}

// Dir returns the profile directory.
func (s *Session) Dir() string {
	return s.dir
}

// Stop ends CPU profiling and tracing, then writes heap, allocation and
// goroutine snapshots. It is safe to call more than once.
func (s *Session) Stop() error {
	if s.cpuFile == nil && s.traceFile == nil {
		return nil
	}
	if s.traceFile != nil {
		trace.Stop()
		_ = s.traceFile.Close()
		s.traceFile = nil
	}
	s.stopCPU()

	// Collect garbage first so the heap profile shows live objects only.
	runtime.GC()
	return errors.Join(
		s.writeProfile("heap", HeapFile, 0),
		s.writeProfile("allocs", AllocsFile, 0),
		s.writeProfile("goroutine", GoroutineFile, 1),
	)
}

func (s *Session) stopCPU() {
	if s.cpuFile == nil {
		return
	}
	pprof.StopCPUProfile()
	_ = s.cpuFile.Close()
	s.cpuFile = nil
}

func (s *Session) writeProfile(name, file string, debug int) error {
	p := pprof.Lookup(name)
	if p == nil {
		return fmt.Errorf("unknown profile %q", name)
	}
	f, err := os.Create(filepath.Join(s.dir, file))
	if err != nil {
		return fmt.Errorf("failed to create %s profile file: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	if err := p.WriteTo(f, debug); err != nil {
		return fmt.Errorf("failed to write %s profile: %w", name, err)
	}
	return nil
}

// MemStats returns current memory statistics.
func MemStats() runtime.MemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m
}

// FormatBytes formats bytes into human-readable form.
func FormatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
