package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cardroomhq/cardroom/internal/game"
)

// MemoryStore is an in-process TableStore and EventLog. It is the reference
// implementation of the optimistic-concurrency contract and the test double
// for the document store.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]*TableDoc
	events map[string][]game.Event
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string]*TableDoc),
		events: make(map[string][]game.Event),
	}
}

var _ TableStore = (*MemoryStore)(nil)
var _ EventLog = (*MemoryStore)(nil)

// CreateTable stores a new document at version 1.
func (m *MemoryStore) CreateTable(_ context.Context, doc *TableDoc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tables[doc.ID]; ok {
		return fmt.Errorf("table %s already exists", doc.ID)
	}
	copied, err := copyDoc(doc)
	if err != nil {
		return err
	}
	copied.Version = 1
	m.tables[doc.ID] = copied
	doc.Version = 1
	return nil
}

// Table returns a private copy of the document.
func (m *MemoryStore) Table(_ context.Context, id string) (*TableDoc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.tables[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDoc(doc)
}

// Tables returns private copies of every document.
func (m *MemoryStore) Tables(_ context.Context) ([]*TableDoc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := make([]*TableDoc, 0, len(m.tables))
	for _, doc := range m.tables {
		copied, err := copyDoc(doc)
		if err != nil {
			return nil, err
		}
		docs = append(docs, copied)
	}
	return docs, nil
}

// SaveTable writes doc iff the stored version still matches expectedVersion.
func (m *MemoryStore) SaveTable(_ context.Context, doc *TableDoc, expectedVersion uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.tables[doc.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	copied, err := copyDoc(doc)
	if err != nil {
		return err
	}
	copied.Version = expectedVersion + 1
	m.tables[doc.ID] = copied
	doc.Version = copied.Version
	return nil
}

// DeleteTable removes the document and its event partition.
func (m *MemoryStore) DeleteTable(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tables[id]; !ok {
		return ErrNotFound
	}
	delete(m.tables, id)
	delete(m.events, id)
	return nil
}

// Append adds an event to the table's log.
func (m *MemoryStore) Append(_ context.Context, tableID string, ev game.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[tableID] = append(m.events[tableID], ev)
	return nil
}

// Query returns matching events, most recent first.
func (m *MemoryStore) Query(_ context.Context, tableID string, f EventFilter) ([]game.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	log := m.events[tableID]
	matches := make([]game.Event, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		ev := log[i]
		if f.HandNum != 0 && ev.HandNum != f.HandNum {
			continue
		}
		if f.PlayerID != "" && ev.PlayerID != f.PlayerID {
			continue
		}
		if f.Kind != "" && ev.Kind != f.Kind {
			continue
		}
		matches = append(matches, ev)
		if f.Limit > 0 && len(matches) >= f.Limit {
			break
		}
	}
	return matches, nil
}

// copyDoc deep-copies a document so callers never alias stored state.
func copyDoc(doc *TableDoc) (*TableDoc, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("copy table doc: %w", err)
	}
	var copied TableDoc
	if err := json.Unmarshal(raw, &copied); err != nil {
		return nil, fmt.Errorf("copy table doc: %w", err)
	}
	return &copied, nil
}
