package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// GCPolicy expires fallback files for one key prefix by age.
type GCPolicy struct {
	Prefix string
	MaxAge time.Duration
}

// DefaultGCPolicies mirror the primary-store TTLs.
func DefaultGCPolicies() []GCPolicy {
	return []GCPolicy{
		{Prefix: PrefixSession, MaxAge: 24 * time.Hour},
		{Prefix: PrefixProgress, MaxAge: 1 * time.Hour},
		{Prefix: PrefixAnalysis, MaxAge: 7 * 24 * time.Hour},
	}
}

// File is the local fallback store: one JSON file per key under the data
// directory, append-only .log files for streams. Files survive restarts
// even without the primary store. Expiry is age-based per key prefix since
// the filesystem has no per-key TTL.
type File struct {
	root     string
	policies []GCPolicy
	logger   *slog.Logger

	mu sync.Mutex // serializes appends and GC against writes

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewFile creates a file store rooted at dir. With no explicit policies the
// defaults apply.
func NewFile(dir string, policies ...GCPolicy) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	if len(policies) == 0 {
		policies = DefaultGCPolicies()
	}
	return &File{
		root:     dir,
		policies: policies,
		logger:   slog.With("component", "file_store", "dir", dir),
		stopCh:   make(chan struct{}),
	}, nil
}

// fileName maps a key to its on-disk name: ":" becomes "_", ".json" suffix.
func (f *File) fileName(key string) string {
	return strings.ReplaceAll(key, ":", "_") + ".json"
}

// streamFileName maps a stream key to its on-disk name.
func (f *File) streamFileName(streamKey string) string {
	name := strings.ReplaceAll(streamKey, ":", "_")
	if !strings.HasSuffix(name, ".log") {
		name += ".log"
	}
	return name
}

func (f *File) maxAgeFor(key string) time.Duration {
	for _, p := range f.policies {
		if strings.HasPrefix(key, p.Prefix) {
			return p.MaxAge
		}
	}
	return 0
}

// Get implements Store. Files past their age policy are removed on read.
func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	path := filepath.Join(f.root, f.fileName(key))

	if maxAge := f.maxAgeFor(key); maxAge > 0 {
		info, err := os.Stat(path)
		if err == nil && time.Since(info.ModTime()) > maxAge {
			_ = os.Remove(path)
			return nil, ErrNotFound
		}
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Set implements Store. Writes are temp-then-rename so a partially written
// snapshot is never observable.
func (f *File) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	path := filepath.Join(f.root, f.fileName(key))

	tmp, err := os.CreateTemp(f.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// Del implements Store.
func (f *File) Del(_ context.Context, key string) error {
	err := os.Remove(filepath.Join(f.root, f.fileName(key)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Append implements Store. Records are JSON lines.
func (f *File) Append(_ context.Context, streamKey string, record []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := filepath.Join(f.root, f.streamFileName(streamKey))
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open stream %s: %w", streamKey, err)
	}
	defer file.Close()

	if _, err := file.Write(append(record, '\n')); err != nil {
		return fmt.Errorf("append to stream %s: %w", streamKey, err)
	}
	return nil
}

// Stream implements Store.
func (f *File) Stream(_ context.Context, streamKey string) ([][]byte, error) {
	path := filepath.Join(f.root, f.streamFileName(streamKey))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", streamKey, err)
	}

	var records [][]byte
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		records = append(records, line)
	}
	return records, nil
}

// Keys implements Store. The prefix is mapped to its file form and matching
// names are mapped back, so keys with "_" in their id survive the round trip.
func (f *File) Keys(_ context.Context, prefix string) ([]string, error) {
	filePrefix := strings.ReplaceAll(prefix, ":", "_")

	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, prefix+strings.TrimSuffix(name[len(filePrefix):], ".json"))
	}
	return keys, nil
}

// StartGC launches the background age sweep. Stop with Close.
func (f *File) StartGC(interval time.Duration) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				f.Sweep()
			case <-f.stopCh:
				return
			}
		}
	}()
}

// Sweep removes every expired snapshot file once.
func (f *File) Sweep() {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.root)
	if err != nil {
		f.logger.Warn("GC sweep failed to read data dir", "error", err)
		return
	}

	removed := 0
	now := time.Now()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		maxAge := f.maxAgeForFileName(entry.Name())
		if maxAge == 0 {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > maxAge {
			if err := os.Remove(filepath.Join(f.root, entry.Name())); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		f.logger.Info("GC sweep removed expired files", "count", removed)
	}
}

func (f *File) maxAgeForFileName(name string) time.Duration {
	for _, p := range f.policies {
		if strings.HasPrefix(name, strings.ReplaceAll(p.Prefix, ":", "_")) {
			return p.MaxAge
		}
	}
	return 0
}

// Close stops the GC goroutine.
func (f *File) Close() error {
	f.stopOnce.Do(func() { close(f.stopCh) })
	f.wg.Wait()
	return nil
}
