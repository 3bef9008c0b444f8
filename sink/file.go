package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/c360/fieldstream/errors"
	"github.com/c360/fieldstream/event"
)

// FileSink appends records to a JSONL archive file, one envelope per line.
type FileSink struct {
	name string
	path string

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	closed bool
}

// NewFileSink opens (or creates) the archive file for appending.
func NewFileSink(name, path string) (*FileSink, error) {
	if path == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "FileSink", "NewFileSink", "path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, errors.WrapTransient(err, "FileSink", "NewFileSink", "create directory")
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, errors.WrapTransient(err, "FileSink", "NewFileSink", "open "+path)
	}
	return &FileSink{
		name:   name,
		path:   path,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// Name implements Sink.
func (s *FileSink) Name() string { return s.name }

// Write implements Sink. Each record is flushed immediately; the archive
// is the durability backstop, so buffering across records is not worth a
// lost tail on crash.
func (s *FileSink) Write(_ context.Context, rec event.Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return errors.WrapInvalid(err, "FileSink", "Write", "marshal record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.WrapTransient(errors.ErrSinkUnavailable, "FileSink", "Write", "write to closed sink")
	}

	if _, err := s.writer.Write(append(line, '\n')); err != nil {
		return errors.WrapTransient(err, "FileSink", "Write", "append "+s.path)
	}
	if err := s.writer.Flush(); err != nil {
		return errors.WrapTransient(err, "FileSink", "Write", "flush "+s.path)
	}
	return nil
}

// Close flushes and closes the archive.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.writer.Flush(); err != nil {
		_ = s.file.Close()
		return errors.WrapTransient(err, "FileSink", "Close", "flush "+s.path)
	}
	if err := s.file.Close(); err != nil {
		return errors.WrapTransient(err, "FileSink", "Close", "close "+s.path)
	}
	return nil
}
