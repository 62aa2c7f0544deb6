package docstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store guarded by an RWMutex. It backs tests and
// the LOSTLINK_STORE=memory mode used for local development without Postgres.
type MemoryStore struct {
	mu    sync.RWMutex
	colls map[string]*memCollection
	subs  map[string][]chan []Doc
}

type memCollection struct {
	docs  map[string]Doc
	order []string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		colls: make(map[string]*memCollection),
		subs:  make(map[string][]chan []Doc),
	}
}

func (m *MemoryStore) collection(name string) *memCollection {
	c, ok := m.colls[name]
	if !ok {
		c = &memCollection{docs: make(map[string]Doc)}
		m.colls[name] = c
	}
	return c
}

func copyDoc(d Doc) Doc {
	out := make(Doc, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Insert stores a document, preserving a caller-supplied id. Re-inserting an
// existing id is a no-op so retried inserts stay idempotent.
func (m *MemoryStore) Insert(_ context.Context, collection string, doc Doc) (string, error) {
	m.mu.Lock()
	c := m.collection(collection)
	id := doc.ID()
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := c.docs[id]; exists {
		m.mu.Unlock()
		return id, nil
	}
	stored := copyDoc(doc)
	stored["id"] = id
	c.docs[id] = stored
	c.order = append(c.order, id)
	m.mu.Unlock()
	m.notify(collection)
	return id, nil
}

// Update merges patch fields into an existing document.
func (m *MemoryStore) Update(_ context.Context, collection, id string, patch Doc) error {
	m.mu.Lock()
	c := m.collection(collection)
	doc, ok := c.docs[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	for k, v := range patch {
		if k == "id" {
			continue
		}
		doc[k] = v
	}
	m.mu.Unlock()
	m.notify(collection)
	return nil
}

// Delete removes a document; exactly one concurrent deleter succeeds.
func (m *MemoryStore) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	c := m.collection(collection)
	if _, ok := c.docs[id]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	m.notify(collection)
	return nil
}

// Get returns a copy of the document so callers cannot mutate internal state.
func (m *MemoryStore) Get(_ context.Context, collection, id string) (Doc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.colls[collection]
	if !ok {
		return nil, ErrNotFound
	}
	doc, ok := c.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDoc(doc), nil
}

// QueryEquals filters on string equality in insertion order.
func (m *MemoryStore) QueryEquals(_ context.Context, collection, field, value string) ([]Doc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.colls[collection]
	if !ok {
		return nil, nil
	}
	var out []Doc
	for _, id := range c.order {
		doc := c.docs[id]
		if s, ok := doc[field].(string); ok && s == value {
			out = append(out, copyDoc(doc))
		}
	}
	return out, nil
}

// List returns every document in insertion order.
func (m *MemoryStore) List(_ context.Context, collection string) ([]Doc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(collection), nil
}

func (m *MemoryStore) snapshotLocked(collection string) []Doc {
	c, ok := m.colls[collection]
	if !ok {
		return nil
	}
	out := make([]Doc, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, copyDoc(c.docs[id]))
	}
	return out
}

// Subscribe emits the current snapshot immediately and again after every
// mutation of the collection.
func (m *MemoryStore) Subscribe(ctx context.Context, collection string) (<-chan []Doc, func(), error) {
	ch := make(chan []Doc, 8)
	m.mu.Lock()
	m.subs[collection] = append(m.subs[collection], ch)
	initial := m.snapshotLocked(collection)
	m.mu.Unlock()
	ch <- initial

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			// Closing under the write lock excludes in-flight notify sends,
			// which hold the read lock.
			m.mu.Lock()
			subs := m.subs[collection]
			for i, existing := range subs {
				if existing == ch {
					m.subs[collection] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			close(ch)
			m.mu.Unlock()
		})
	}
	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return ch, cancel, nil
}

func (m *MemoryStore) notify(collection string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := m.snapshotLocked(collection)
	for _, ch := range m.subs[collection] {
		select {
		case ch <- snapshot:
		default:
			// Slow subscriber; it will catch up on the next change.
		}
	}
}
