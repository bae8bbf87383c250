package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/defectctl/internal/application"
	"github.com/felixgeelhaar/defectctl/internal/domain"
)

const (
	// DefaultPath is where bounce-rate history is kept.
	DefaultPath = ".defectctl/history.json"
	// DefaultMaxEntries is the number of runs kept per pillar.
	DefaultMaxEntries = 100
)

// FileStore keeps bounce-rate history in a JSON file.
type FileStore struct {
	Path       string
	MaxEntries int
}

var _ application.HistoryStore = (*FileStore)(nil)

// Load reads the history file. A missing file is an empty history.
func (s *FileStore) Load() (domain.History, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.History{}, nil
		}
		return domain.History{}, err
	}

	var h domain.History
	if err := json.Unmarshal(data, &h); err != nil {
		return domain.History{}, fmt.Errorf("%s: %w", s.Path, err)
	}
	return h, nil
}

// Save replaces the history file through a temporary file in the same directory.
func (s *FileStore) Save(h domain.History) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}

// Append records entry under an exclusive lock so concurrent runs do not
// lose each other's entries. Only the newest MaxEntries runs of the
// entry's pillar are kept.
func (s *FileStore) Append(entry domain.HistoryEntry) error {
	lock, err := s.acquireLock()
	if err != nil {
		return fmt.Errorf("lock history: %w", err)
	}
	defer func() { _ = lock.release() }()

	h, err := s.Load()
	if err != nil {
		return err
	}
	h.Entries = append(h.Entries, entry)
	h.Entries = trim(h.Entries, entry.Pillar, s.maxEntries())
	return s.Save(h)
}

func (s *FileStore) maxEntries() int {
	if s.MaxEntries > 0 {
		return s.MaxEntries
	}
	return DefaultMaxEntries
}

// trim drops the oldest entries of pillar beyond max, keeping file order.
func trim(entries []domain.HistoryEntry, pillar string, max int) []domain.HistoryEntry {
	count := 0
	for _, e := range entries {
		if e.Pillar == pillar {
			count++
		}
	}
	drop := count - max
	if drop <= 0 {
		return entries
	}
	out := entries[:0]
	for _, e := range entries {
		if e.Pillar == pillar && drop > 0 {
			drop--
			continue
		}
		out = append(out, e)
	}
	return out
}

// fileLock holds an exclusive lock on the sidecar lock file. Locking and
// unlocking are platform specific (lock_unix.go, lock_windows.go).
type fileLock struct {
	file *os.File
}

func (s *FileStore) acquireLock() (*fileLock, error) {
	lockPath := s.Path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o750); err != nil {
		return nil, err
	}
	// #nosec G304 -- path comes from the operator's flags
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := lockFile(file); err != nil {
		_ = file.Close()
		return nil, err
	}
	return &fileLock{file: file}, nil
}

func (l *fileLock) release() error {
	if l.file == nil {
		return nil
	}
	unlockErr := unlockFile(l.file)
	closeErr := l.file.Close()
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
