package tle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FileStore persists catalog text as timestamped files on disk.
// Each write goes to a temporary file that is synced and then renamed into
// place, so a failed write never damages a previously stored document.
type FileStore struct {
	dir      string
	maxFiles int
}

// NewFileStore creates a FileStore that stores files in dir and keeps at most maxFiles.
func NewFileStore(dir string, maxFiles int) *FileStore {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &FileStore{
		dir:      dir,
		maxFiles: maxFiles,
	}
}

// Save writes data as tle_<unix>.txt and prunes old files beyond maxFiles.
func (s *FileStore) Save(_ context.Context, data []byte, ts time.Time) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tle-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp cache file: %w", err)
	}

	final := filepath.Join(s.dir, fmt.Sprintf("tle_%d.txt", ts.Unix()))
	if err := os.Rename(tmpName, final); err != nil {
		return fmt.Errorf("publishing cache file: %w", err)
	}
	committed = true

	return s.prune()
}

// Load reads the newest cache file by the timestamp in its name.
// Returns ErrNoCachedCatalog when no file exists.
func (s *FileStore) Load(_ context.Context) ([]byte, time.Time, error) {
	files, err := s.listFiles()
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(files) == 0 {
		return nil, time.Time{}, ErrNoCachedCatalog
	}

	// Sorted oldest first.
	latest := files[len(files)-1]
	data, err := os.ReadFile(filepath.Join(s.dir, latest.name))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading cache file: %w", err)
	}

	return data, latest.ts, nil
}

type cacheFile struct {
	name string
	ts   time.Time
}

func (s *FileStore) listFiles() ([]cacheFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var files []cacheFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "tle_") || !strings.HasSuffix(name, ".txt") {
			continue
		}
		tsStr := strings.TrimSuffix(strings.TrimPrefix(name, "tle_"), ".txt")
		unix, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			continue
		}
		files = append(files, cacheFile{name: name, ts: time.Unix(unix, 0).UTC()})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ts.Before(files[j].ts)
	})

	return files, nil
}

func (s *FileStore) prune() error {
	files, err := s.listFiles()
	if err != nil {
		return err
	}
	if len(files) <= s.maxFiles {
		return nil
	}

	for _, f := range files[:len(files)-s.maxFiles] {
		if err := os.Remove(filepath.Join(s.dir, f.name)); err != nil {
			return fmt.Errorf("pruning cache file %s: %w", f.name, err)
		}
	}
	return nil
}
