package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tiendafacil/ledger_backend/models"
)

// MemoryStore is an in-process Store for tests. It records the order of
// applied mutations so tests can assert on dispatch sequencing.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int
	docs   map[string]map[string]Document
	subs   map[string][]subscriber

	// AppliedOps is "<op>:<collection>:<docId>" per mutation, in order.
	AppliedOps []string

	// FailWith, when set, makes every mutation return this error.
	FailWith error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]Document),
		subs: make(map[string][]subscriber),
	}
}

func (s *MemoryStore) Create(_ context.Context, empresaId string, collection models.SyncCollection, data Document) (string, error) {
	s.mu.Lock()
	if s.FailWith != nil {
		err := s.FailWith
		s.mu.Unlock()
		return "", err
	}
	key := scopeKey(empresaId, collection)
	if s.docs[key] == nil {
		s.docs[key] = make(map[string]Document)
	}
	id := uuid.NewString()
	clone := make(Document, len(data))
	for k, v := range data {
		clone[k] = v
	}
	s.docs[key][id] = clone
	s.AppliedOps = append(s.AppliedOps, fmt.Sprintf("create:%s:%s", collection, id))
	s.mu.Unlock()
	s.notify(empresaId, collection)
	return id, nil
}

func (s *MemoryStore) Update(_ context.Context, empresaId string, collection models.SyncCollection, docId string, data Document) error {
	s.mu.Lock()
	if s.FailWith != nil {
		err := s.FailWith
		s.mu.Unlock()
		return err
	}
	key := scopeKey(empresaId, collection)
	doc, ok := s.docs[key][docId]
	if !ok {
		s.mu.Unlock()
		return gorm.ErrRecordNotFound
	}
	for k, v := range data {
		doc[k] = v
	}
	s.AppliedOps = append(s.AppliedOps, fmt.Sprintf("update:%s:%s", collection, docId))
	s.mu.Unlock()
	s.notify(empresaId, collection)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, empresaId string, collection models.SyncCollection, docId string) error {
	s.mu.Lock()
	if s.FailWith != nil {
		err := s.FailWith
		s.mu.Unlock()
		return err
	}
	key := scopeKey(empresaId, collection)
	if _, ok := s.docs[key][docId]; !ok {
		s.mu.Unlock()
		return gorm.ErrRecordNotFound
	}
	delete(s.docs[key], docId)
	s.AppliedOps = append(s.AppliedOps, fmt.Sprintf("delete:%s:%s", collection, docId))
	s.mu.Unlock()
	s.notify(empresaId, collection)
	return nil
}

func (s *MemoryStore) Subscribe(empresaId string, collection models.SyncCollection, fn func([]Document)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	key := scopeKey(empresaId, collection)
	s.subs[key] = append(s.subs[key], subscriber{id: id, fn: fn})
	s.mu.Unlock()

	fn(s.snapshot(empresaId, collection))

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		kept := s.subs[key][:0]
		for _, sub := range s.subs[key] {
			if sub.id != id {
				kept = append(kept, sub)
			}
		}
		s.subs[key] = kept
	}
}

// Get returns a stored document by id, for test assertions.
func (s *MemoryStore) Get(empresaId string, collection models.SyncCollection, docId string) (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[scopeKey(empresaId, collection)][docId]
	return doc, ok
}

// Count returns the number of documents in a collection, for test assertions.
func (s *MemoryStore) Count(empresaId string, collection models.SyncCollection) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs[scopeKey(empresaId, collection)])
}

func (s *MemoryStore) snapshot(empresaId string, collection models.SyncCollection) []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scopeKey(empresaId, collection)
	docs := make([]Document, 0, len(s.docs[key]))
	for id, doc := range s.docs[key] {
		clone := make(Document, len(doc)+1)
		for k, v := range doc {
			clone[k] = v
		}
		clone["id"] = id
		docs = append(docs, clone)
	}
	return docs
}

func (s *MemoryStore) notify(empresaId string, collection models.SyncCollection) {
	s.mu.Lock()
	subs := append([]subscriber(nil), s.subs[scopeKey(empresaId, collection)]...)
	s.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	docs := s.snapshot(empresaId, collection)
	for _, sub := range subs {
		sub.fn(docs)
	}
}
