package dlq

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

// FileStore persists dead-lettered records as a JSONL operation log:
// "add" lines carry the record, "remove" lines tombstone an ID. The live
// set is replayed into memory on open, and the log is compacted on Close.
type FileStore struct {
	path string

	mu      sync.Mutex
	file    *os.File
	writer  *bufio.Writer
	records map[string]*event.DLQRecord
	closed  bool
}

type logEntry struct {
	Op     string           `json:"op"` // "add" or "remove"
	ID     string           `json:"id,omitempty"`
	Record *event.DLQRecord `json:"record,omitempty"`
}

// NewFileStore opens the log, replaying any existing entries.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "FileStore", "NewFileStore", "path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, errors.WrapTransient(err, "FileStore", "NewFileStore", "create directory")
	}

	records, err := replayLog(path)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, errors.WrapTransient(err, "FileStore", "NewFileStore", "open "+path)
	}

	return &FileStore{
		path:    path,
		file:    file,
		writer:  bufio.NewWriter(file),
		records: records,
	}, nil
}

func replayLog(path string) (map[string]*event.DLQRecord, error) {
	records := make(map[string]*event.DLQRecord)

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return records, nil
		}
		return nil, errors.WrapTransient(err, "FileStore", "replayLog", "open "+path)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry logEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			// a torn tail line from a crash is expected; stop there
			break
		}
		switch entry.Op {
		case "add":
			if entry.Record != nil && entry.Record.ID != "" {
				records[entry.Record.ID] = entry.Record
			}
		case "remove":
			delete(records, entry.ID)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WrapTransient(err, "FileStore", "replayLog", "scan "+path)
	}
	return records, nil
}

func (s *FileStore) appendLocked(entry logEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return errors.WrapInvalid(err, "FileStore", "append", "marshal entry")
	}
	if _, err := s.writer.Write(append(line, '\n')); err != nil {
		return errors.WrapTransient(err, "FileStore", "append", "write "+s.path)
	}
	if err := s.writer.Flush(); err != nil {
		return errors.WrapTransient(err, "FileStore", "append", "flush "+s.path)
	}
	return nil
}

// Add implements Store.
func (s *FileStore) Add(_ context.Context, rec *event.DLQRecord) error {
	if rec == nil || rec.ID == "" {
		return errors.WrapInvalid(errors.ErrMissingField, "FileStore", "Add", "record id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.WrapTransient(errors.ErrStorageUnavailable, "FileStore", "Add", "store closed")
	}

	if err := s.appendLocked(logEntry{Op: "add", Record: rec}); err != nil {
		return err
	}
	s.records[rec.ID] = rec
	return nil
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, id string) (*event.DLQRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrFieldNotFound, "FileStore", "Get", "lookup "+id)
	}
	return rec, nil
}

// List implements Store.
func (s *FileStore) List(_ context.Context, limit int) ([]*event.DLQRecord, error) {
	s.mu.Lock()
	out := make([]*event.DLQRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.Unlock()

	sortByFirstSeen(out)
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Remove implements Store.
func (s *FileStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.WrapTransient(errors.ErrStorageUnavailable, "FileStore", "Remove", "store closed")
	}

	if _, ok := s.records[id]; !ok {
		return errors.WrapInvalid(errors.ErrFieldNotFound, "FileStore", "Remove", "lookup "+id)
	}
	if err := s.appendLocked(logEntry{Op: "remove", ID: id}); err != nil {
		return err
	}
	delete(s.records, id)
	return nil
}

// Size implements Store.
func (s *FileStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Close compacts the log to the live set and closes the file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.writer.Flush(); err != nil {
		_ = s.file.Close()
		return errors.WrapTransient(err, "FileStore", "Close", "flush "+s.path)
	}
	if err := s.file.Close(); err != nil {
		return errors.WrapTransient(err, "FileStore", "Close", "close "+s.path)
	}

	// Compaction: rewrite the log with only live adds. Best effort; the
	// uncompacted log replays identically.
	live := make([]*event.DLQRecord, 0, len(s.records))
	for _, rec := range s.records {
		live = append(live, rec)
	}
	sortByFirstSeen(live)

	tmp := s.path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil
	}
	writer := bufio.NewWriter(file)
	for _, rec := range live {
		line, err := json.Marshal(logEntry{Op: "add", Record: rec})
		if err != nil {
			continue
		}
		if _, err := writer.Write(append(line, '\n')); err != nil {
			_ = file.Close()
			_ = os.Remove(tmp)
			return nil
		}
	}
	if err := writer.Flush(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return nil
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return nil
	}
	_ = os.Rename(tmp, s.path)
	return nil
}
