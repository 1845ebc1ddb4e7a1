// internal/storage/file_storage.go
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/senushidinara/DreamStruct/internal/models"
)

const (
	sessionsDir     = "sessions"
	sessionFileName = "session.json"
)

// ErrNotFound is returned when a stored record does not exist.
var ErrNotFound = errors.New("not found")

// FileStorage stores JSON documents under BaseDir with atomic writes.
type FileStorage struct {
	BaseDir string

	fileLocks sync.Map // path -> *sync.RWMutex

	cache        map[string]*CacheEntry
	cacheMutex   sync.RWMutex
	cacheExpiry  time.Duration
	maxCacheSize int
}

// CacheEntry is a cached file body.
type CacheEntry struct {
	Data      []byte
	Timestamp time.Time
}

// NewFileStorage creates baseDir if needed.
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	return &FileStorage{
		BaseDir:      baseDir,
		cache:        make(map[string]*CacheEntry),
		cacheExpiry:  5 * time.Minute,
		maxCacheSize: 100,
	}, nil
}

func (fs *FileStorage) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := fs.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

// SaveTextFile writes content through a temp file and rename.
func (fs *FileStorage) SaveTextFile(dirPath, filename string, content []byte) error {
	fullDirPath := filepath.Join(fs.BaseDir, dirPath)
	fullPath := filepath.Join(fullDirPath, filename)

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(fullDirPath, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("save file: %w", err)
	}

	fs.invalidateCache(fullPath)
	return nil
}

// SaveJSONFile encodes data as indented JSON and saves it.
func (fs *FileStorage) SaveJSONFile(dirPath, filename string, data interface{}) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return fs.SaveTextFile(dirPath, filename, content)
}

// LoadTextFile reads a file, serving recent reads from memory.
func (fs *FileStorage) LoadTextFile(dirPath, filename string) ([]byte, error) {
	fullPath := filepath.Join(fs.BaseDir, dirPath, filename)

	if data, ok := fs.cached(fullPath); ok {
		return data, nil
	}

	lock := fs.getFileLock(fullPath)
	lock.RLock()
	defer lock.RUnlock()

	content, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", filepath.Join(dirPath, filename), ErrNotFound)
		}
		return nil, fmt.Errorf("read file: %w", err)
	}

	fs.updateCache(fullPath, content)
	return content, nil
}

// LoadJSONFile reads and decodes a JSON file into v.
func (fs *FileStorage) LoadJSONFile(dirPath, filename string, v interface{}) error {
	content, err := fs.LoadTextFile(dirPath, filename)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// FileExists reports whether dirPath/filename exists.
func (fs *FileStorage) FileExists(dirPath, filename string) bool {
	_, err := os.Stat(filepath.Join(fs.BaseDir, dirPath, filename))
	return err == nil
}

// DeleteDir removes a directory and its contents. A missing directory is not an error.
func (fs *FileStorage) DeleteDir(dirPath string) error {
	fullPath := filepath.Join(fs.BaseDir, dirPath)

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(fullPath); err != nil {
		return fmt.Errorf("remove directory: %w", err)
	}

	fs.cacheMutex.Lock()
	for key := range fs.cache {
		if filepath.Dir(key) == fullPath {
			delete(fs.cache, key)
		}
	}
	fs.cacheMutex.Unlock()
	return nil
}

// ListDirs lists the subdirectories of dirPath. A missing directory yields none.
func (fs *FileStorage) ListDirs(dirPath string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(fs.BaseDir, dirPath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// SaveSession persists a session view to sessions/<id>/session.json.
func (fs *FileStorage) SaveSession(view models.SessionView) error {
	return fs.SaveJSONFile(filepath.Join(sessionsDir, view.ID), sessionFileName, view)
}

// LoadSession reads one persisted session view.
func (fs *FileStorage) LoadSession(id string) (models.SessionView, error) {
	var view models.SessionView
	err := fs.LoadJSONFile(filepath.Join(sessionsDir, id), sessionFileName, &view)
	return view, err
}

// DeleteSession removes a persisted session.
func (fs *FileStorage) DeleteSession(id string) error {
	return fs.DeleteDir(filepath.Join(sessionsDir, id))
}

// LoadSessions reads every persisted session. Unreadable entries are
// returned in skipped instead of failing the whole load.
func (fs *FileStorage) LoadSessions() (views []models.SessionView, skipped map[string]error, err error) {
	ids, err := fs.ListDirs(sessionsDir)
	if err != nil {
		return nil, nil, err
	}

	skipped = make(map[string]error)
	for _, id := range ids {
		view, err := fs.LoadSession(id)
		if err != nil {
			skipped[id] = err
			continue
		}
		views = append(views, view)
	}
	return views, skipped, nil
}

func (fs *FileStorage) cached(path string) ([]byte, bool) {
	fs.cacheMutex.RLock()
	defer fs.cacheMutex.RUnlock()

	entry, ok := fs.cache[path]
	if !ok || time.Since(entry.Timestamp) >= fs.cacheExpiry {
		return nil, false
	}
	return entry.Data, true
}

func (fs *FileStorage) updateCache(path string, data []byte) {
	fs.cacheMutex.Lock()
	defer fs.cacheMutex.Unlock()

	fs.cache[path] = &CacheEntry{Data: data, Timestamp: time.Now()}

	if len(fs.cache) <= fs.maxCacheSize {
		return
	}

	// evict the oldest entry
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range fs.cache {
		if oldestKey == "" || entry.Timestamp.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.Timestamp
		}
	}
	delete(fs.cache, oldestKey)
}

func (fs *FileStorage) invalidateCache(path string) {
	fs.cacheMutex.Lock()
	defer fs.cacheMutex.Unlock()

	delete(fs.cache, path)
}
