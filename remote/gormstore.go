package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/tiendafacil/ledger_backend/models"
)

// DocumentRow is one stored document. Payload is the JSON-encoded document
// body; EmpresaId plus Collection scope every query so tenants never see
// each other's rows.
type DocumentRow struct {
	ID         string `gorm:"primaryKey;size:64"`
	EmpresaId  string `gorm:"size:64;index:idx_doc_scope,priority:1"`
	Collection string `gorm:"size:32;index:idx_doc_scope,priority:2"`
	Payload    []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (DocumentRow) TableName() string {
	return "documents"
}

type subscriber struct {
	id int
	fn func([]Document)
}

// GormStore implements Store on a relational table of JSON documents.
// Subscriptions are in-process: every committed mutation re-reads the
// affected collection and fans it out to registered callbacks, which is the
// same contract the hosted store gives a connected client.
type GormStore struct {
	db     *gorm.DB
	logger *logrus.Logger

	mu     sync.Mutex
	nextID int
	subs   map[string][]subscriber
}

func NewGormStore(db *gorm.DB, logger *logrus.Logger) *GormStore {
	return &GormStore{
		db:     db,
		logger: logger,
		subs:   make(map[string][]subscriber),
	}
}

// Migrate creates the documents table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&DocumentRow{})
}

func scopeKey(empresaId string, collection models.SyncCollection) string {
	return empresaId + "|" + string(collection)
}

func (s *GormStore) Create(ctx context.Context, empresaId string, collection models.SyncCollection, data Document) (string, error) {
	if empresaId == "" {
		return "", fmt.Errorf("create %s: empresaId is required", collection)
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	row := DocumentRow{
		ID:         uuid.NewString(),
		EmpresaId:  empresaId,
		Collection: string(collection),
		Payload:    payload,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", err
	}
	s.notify(ctx, empresaId, collection)
	return row.ID, nil
}

func (s *GormStore) Update(ctx context.Context, empresaId string, collection models.SyncCollection, docId string, data Document) error {
	if docId == "" {
		return fmt.Errorf("update %s: document id is required", collection)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row DocumentRow
		err := tx.Where("id = ? AND empresa_id = ? AND collection = ?", docId, empresaId, collection).
			First(&row).Error
		if err != nil {
			return err
		}
		var current Document
		if err := json.Unmarshal(row.Payload, &current); err != nil {
			return err
		}
		if current == nil {
			current = Document{}
		}
		// Shallow merge, matching the hosted store's partial-update semantics.
		for k, v := range data {
			current[k] = v
		}
		payload, err := json.Marshal(current)
		if err != nil {
			return err
		}
		return tx.Model(&DocumentRow{}).Where("id = ?", row.ID).
			Update("payload", payload).Error
	})
	if err != nil {
		return err
	}
	s.notify(ctx, empresaId, collection)
	return nil
}

func (s *GormStore) Delete(ctx context.Context, empresaId string, collection models.SyncCollection, docId string) error {
	if docId == "" {
		return fmt.Errorf("delete %s: document id is required", collection)
	}
	res := s.db.WithContext(ctx).
		Where("id = ? AND empresa_id = ? AND collection = ?", docId, empresaId, collection).
		Delete(&DocumentRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	s.notify(ctx, empresaId, collection)
	return nil
}

func (s *GormStore) Subscribe(empresaId string, collection models.SyncCollection, fn func([]Document)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	key := scopeKey(empresaId, collection)
	s.subs[key] = append(s.subs[key], subscriber{id: id, fn: fn})
	s.mu.Unlock()

	// Deliver the current snapshot immediately so a fresh subscriber does
	// not wait for the next write.
	go s.notify(context.Background(), empresaId, collection)

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

// List returns every document in a collection with its id injected under
// "id", mirroring what subscribers receive.
func (s *GormStore) List(ctx context.Context, empresaId string, collection models.SyncCollection) ([]Document, error) {
	var rows []DocumentRow
	err := s.db.WithContext(ctx).
		Where("empresa_id = ? AND collection = ?", empresaId, collection).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		var doc Document
		if err := json.Unmarshal(row.Payload, &doc); err != nil {
			s.logger.WithFields(logrus.Fields{
				"docId":      row.ID,
				"collection": collection,
			}).WithError(err).Warn("skipping undecodable document payload")
			continue
		}
		doc["id"] = row.ID
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *GormStore) notify(ctx context.Context, empresaId string, collection models.SyncCollection) {
	s.mu.Lock()
	subs := append([]subscriber(nil), s.subs[scopeKey(empresaId, collection)]...)
	s.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	docs, err := s.List(ctx, empresaId, collection)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"empresaId":  empresaId,
			"collection": collection,
		}).WithError(err).Error("failed to load collection for subscribers")
		return
	}
	for _, sub := range subs {
		sub.fn(docs)
	}
}
