// Package storage persists saved workspace documents on the local
// filesystem.
package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DocumentInfo is the metadata for one saved workspace document.
type DocumentInfo struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	SavedAt time.Time `json:"savedAt"`
}

// Store defines the interface for saved-document storage.
type Store interface {
	Save(name string, r io.Reader) (*DocumentInfo, error)
	Get(id string) (*DocumentInfo, error)
	Read(id string) ([]byte, error)
	List(limit int) ([]*DocumentInfo, error)
	Delete(id string) error
	Rename(id string, newName string) (*DocumentInfo, error)
}

// indexFile holds the metadata map next to the payloads so names and save
// stamps survive a restart.
const indexFile = "index.json"

// LocalStore implements Store using the local filesystem. Document payloads
// live under the documents directory keyed by id; metadata is held in
// memory, mirrored to an index file on every change, and rebuilt from that
// file (plus a directory scan for strays) on startup.
type LocalStore struct {
	mu   sync.RWMutex
	dir  string
	docs map[string]*DocumentInfo
}

// NewLocalStore creates a LocalStore rooted at dir and reloads the metadata
// for any documents already saved there.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating documents directory: %w", err)
	}
	s := &LocalStore{
		dir:  dir,
		docs: make(map[string]*DocumentInfo),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// reload rebuilds the metadata map: the index file is authoritative for
// names, then the directory scan drops entries whose payload vanished and
// adopts payloads the index does not know about.
func (s *LocalStore) reload() error {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFile))
	if err == nil {
		var list []*DocumentInfo
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("reading document index: %w", err)
		}
		for _, info := range list {
			s.docs[info.ID] = info
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("reading document index: %w", err)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("scanning documents directory: %w", err)
	}
	onDisk := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() || e.Name() == indexFile {
			continue
		}
		onDisk[e.Name()] = true
		if s.docs[e.Name()] != nil {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		s.docs[e.Name()] = &DocumentInfo{
			ID:      e.Name(),
			Name:    e.Name(),
			Size:    fi.Size(),
			SavedAt: fi.ModTime(),
		}
	}
	for id := range s.docs {
		if !onDisk[id] {
			delete(s.docs, id)
		}
	}
	return nil
}

// writeIndex mirrors the metadata map to the index file. Callers hold the
// write lock.
func (s *LocalStore) writeIndex() error {
	list := make([]*DocumentInfo, 0, len(s.docs))
	for _, info := range s.docs {
		list = append(list, info)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding document index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, indexFile), data, 0644); err != nil {
		return fmt.Errorf("writing document index: %w", err)
	}
	return nil
}

// Save writes a document to disk under a fresh id.
func (s *LocalStore) Save(name string, r io.Reader) (*DocumentInfo, error) {
	id := uuid.New().String()
	path := filepath.Join(s.dir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating document file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing document: %w", err)
	}

	info := &DocumentInfo{
		ID:      id,
		Name:    name,
		Size:    size,
		SavedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id] = info
	if err := s.writeIndex(); err != nil {
		return nil, err
	}

	return info, nil
}

// Get retrieves document metadata by id.
func (s *LocalStore) Get(id string) (*DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	return info, nil
}

// Read returns a saved document's payload.
func (s *LocalStore) Read(id string) ([]byte, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, id))
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", id, err)
	}
	return data, nil
}

// List returns the most recently saved documents.
func (s *LocalStore) List(limit int) ([]*DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*DocumentInfo
	for _, info := range s.docs {
		list = append(list, info)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].SavedAt.After(list[j].SavedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Delete removes a document from storage.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	if err := os.Remove(filepath.Join(s.dir, id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	delete(s.docs, id)
	return s.writeIndex()
}

// Rename changes a document's display name.
func (s *LocalStore) Rename(id string, newName string) (*DocumentInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	info.Name = newName
	if err := s.writeIndex(); err != nil {
		return nil, err
	}
	return info, nil
}
