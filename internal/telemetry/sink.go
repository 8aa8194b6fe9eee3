package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Sink receives telemetry records. Writes are best-effort: a failing sink
// never stalls the vehicle.
type Sink interface {
	Name() string
	Write(ctx context.Context, r Record) error
	Close() error
}

// FileSink keeps the latest record in a JSON file, replacing it on every
// write so readers never observe a partial document.
type FileSink struct {
	path string
}

// NewFileSink creates a sink writing to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Name() string { return "file" }

// Write replaces the file contents with r.
func (s *FileSink) Write(_ context.Context, r Record) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".telemetry-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write telemetry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close telemetry: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

func (s *FileSink) Close() error { return nil }

// ReadFile loads the record stored at path.
func ReadFile(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	return Decode(data)
}
