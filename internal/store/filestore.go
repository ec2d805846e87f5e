package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// FileStore persists one JSON file per record under a directory.
type FileStore struct {
	mu          sync.Mutex
	dir         string
	initialized bool
}

// NewFileStore creates a file store rooted at dir. The directory is created by Initialize.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: strings.TrimSpace(dir)}
}

// Dir returns the directory records are written to.
func (s *FileStore) Dir() string {
	return s.dir
}

// Initialize creates the record directory.
func (s *FileStore) Initialize(_ context.Context) error {
	if s.dir == "" {
		return fmt.Errorf("file store: directory not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("file store: create directory: %w", err)
	}
	s.initialized = true
	return nil
}

// AddAccount writes the record to google-<email>-<id>.json.
func (s *FileStore) AddAccount(_ context.Context, record *Record) error {
	if err := record.validate(); err != nil {
		return fmt.Errorf("file store: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	path, err := writeRecordFile(s.dir, record)
	if err != nil {
		return fmt.Errorf("file store: %w", err)
	}
	log.WithField("email", record.Email).Debugf("file store: wrote %s", path)
	return nil
}

// ListAccounts reads every record file in the directory.
func (s *FileStore) ListAccounts(_ context.Context) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil, ErrNotInitialized
	}
	records, err := readRecordDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	return records, nil
}

// writeRecordFile stores record in dir through a temp file and rename so readers never
// observe a partial file.
func writeRecordFile(dir string, record *Record) (string, error) {
	raw, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	path := filepath.Join(dir, record.FileName())
	tmp, err := os.CreateTemp(dir, ".record-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err = tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err = tmp.Write(raw); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		cleanup()
		return "", fmt.Errorf("rename record file: %w", err)
	}
	return path, nil
}

func readRecordDir(dir string) ([]*Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	records := make([]*Record, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(strings.ToLower(name), ".json") {
			continue
		}
		data, errRead := os.ReadFile(filepath.Join(dir, name))
		if errRead != nil {
			log.WithError(errRead).Warnf("credential store: skip unreadable %s", name)
			continue
		}
		rec, errDecode := decodeRecord(data)
		if errDecode != nil {
			log.WithError(errDecode).Warnf("credential store: skip invalid %s", name)
			continue
		}
		records = append(records, rec)
	}
	sortRecords(records)
	return records, nil
}
