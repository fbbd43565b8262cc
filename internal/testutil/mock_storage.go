// mock_storage.go - In-memory storage.Store for testing
package testutil

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/blockpad/backend/internal/storage"
)

// MockStore implements storage.Store in memory, with injectable failures
// for paths the real filesystem store cannot produce on demand.
type MockStore struct {
	mu   sync.RWMutex
	docs map[string]*storage.DocumentInfo
	data map[string][]byte

	// FailSave makes every Save call return an error when set.
	FailSave error
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		docs: make(map[string]*storage.DocumentInfo),
		data: make(map[string][]byte),
	}
}

func (m *MockStore) Save(name string, r io.Reader) (*storage.DocumentInfo, error) {
	if m.FailSave != nil {
		return nil, m.FailSave
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	info := &storage.DocumentInfo{
		ID:      generateTestID(),
		Name:    name,
		Size:    int64(len(payload)),
		SavedAt: time.Now(),
	}
	m.docs[info.ID] = info
	m.data[info.ID] = payload
	return info, nil
}

func (m *MockStore) Get(id string) (*storage.DocumentInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	return info, nil
}

func (m *MockStore) Read(id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.data[id]
	if !ok {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	return payload, nil
}

func (m *MockStore) List(limit int) ([]*storage.DocumentInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var list []*storage.DocumentInfo
	for _, info := range m.docs {
		list = append(list, info)
		if limit > 0 && len(list) >= limit {
			break
		}
	}
	return list, nil
}

func (m *MockStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	delete(m.docs, id)
	delete(m.data, id)
	return nil
}

func (m *MockStore) Rename(id string, newName string) (*storage.DocumentInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	info.Name = newName
	return info, nil
}

// AddDocument seeds the mock directly, bypassing Save.
func (m *MockStore) AddDocument(id, name string, payload []byte) *storage.DocumentInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := &storage.DocumentInfo{
		ID:      id,
		Name:    name,
		Size:    int64(len(payload)),
		SavedAt: time.Now(),
	}
	m.docs[id] = info
	m.data[id] = payload
	return info
}

// Count returns the number of stored documents.
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Ensure MockStore implements storage.Store
var _ storage.Store = (*MockStore)(nil)

var (
	testIDCounter int
	testIDMutex   sync.Mutex
)

func generateTestID() string {
	testIDMutex.Lock()
	defer testIDMutex.Unlock()
	testIDCounter++
	return fmt.Sprintf("test-id-%d", testIDCounter)
}
