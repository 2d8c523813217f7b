package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps each document as an independent JSON file under dir.
type FileStore struct {
	dir string
	log *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// OpenFile creates a file-backed store rooted at dir.
func OpenFile(dir string, log *slog.Logger) *FileStore {
	if dir == "" {
		dir = "."
	}
	return &FileStore{
		dir:   dir,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Load reads a document. Missing or corrupt files degrade to an empty
// document; read and parse errors are logged, never returned.
func (s *FileStore) Load(ctx context.Context, name string) Document {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Error("load document", "resource", name, "error", err)
		}
		return Document{}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Error("parse document", "resource", name, "error", err)
		return Document{}
	}
	if doc == nil {
		doc = Document{}
	}
	return doc
}

// Save writes a document atomically (temp file + rename). Returns false
// and logs on any failure.
func (s *FileStore) Save(ctx context.Context, name string, doc Document) bool {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.log.Error("encode document", "resource", name, "error", err)
		return false
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.log.Error("create data dir", "dir", s.dir, "error", err)
		return false
	}

	tmp := s.path(name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.log.Error("write document", "resource", name, "error", err)
		return false
	}
	if err := os.Rename(tmp, s.path(name)); err != nil {
		os.Remove(tmp)
		s.log.Error("replace document", "resource", name, "error", err)
		return false
	}
	return true
}

// Update runs a locked read-modify-write. A per-document mutex serializes
// mutations within the process; a sidecar lock file excludes the other
// process sharing the same data directory.
func (s *FileStore) Update(ctx context.Context, name string, fn func(Document) Document) bool {
	s.keyLock(name).Lock()
	defer s.keyLock(name).Unlock()

	release, ok := s.acquireLockFile(ctx, name)
	if !ok {
		s.log.Error("acquire document lock", "resource", name)
		return false
	}
	defer release()

	doc := fn(s.Load(ctx, name).Clone())
	if doc == nil {
		return true
	}
	return s.Save(ctx, name, doc)
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) keyLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

const (
	lockRetry    = 25 * time.Millisecond
	lockTimeout  = 5 * time.Second
	lockStaleAge = 30 * time.Second
)

// acquireLockFile takes <name>.lock via exclusive create. Locks older than
// lockStaleAge are assumed abandoned by a crashed process and removed.
func (s *FileStore) acquireLockFile(ctx context.Context, name string) (func(), bool) {
	lockPath := s.path(name) + ".lock"
	os.MkdirAll(s.dir, 0o755)

	deadline := time.Now().Add(lockTimeout)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return func() { os.Remove(lockPath) }, true
		}

		if info, statErr := os.Stat(lockPath); statErr == nil {
			if time.Since(info.ModTime()) > lockStaleAge {
				s.log.Warn("removing stale document lock", "resource", name)
				os.Remove(lockPath)
				continue
			}
		}

		if time.Now().After(deadline) {
			return nil, false
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(lockRetry):
		}
	}
}
