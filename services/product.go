package services

import (
	"context"

	"github.com/tiendafacil/ledger_backend/models"
	"github.com/tiendafacil/ledger_backend/remote"
	"github.com/tiendafacil/ledger_backend/utils"
)

type ProductService struct {
	Deps
}

func NewProductService(deps Deps) *ProductService {
	return &ProductService{Deps: deps}
}

func (s *ProductService) CreateProduct(ctx context.Context, p models.Producto) (string, error) {
	p.Creado = models.NewTimestamp(s.now())
	p.Borrado = false
	if msgs := utils.ValidateStruct(p); len(msgs) > 0 {
		return "", validationErr(msgs)
	}
	doc, err := remote.ToDocument(p)
	if err != nil {
		return "", err
	}
	delete(doc, "id")
	id, err := s.write(ctx, p.EmpresaId, models.SyncCollectionProducts,
		models.SyncItemTypeCreate, "", doc, models.SyncPriorityNormal)
	if err != nil {
		return "", err
	}
	p.ID = id
	s.upsertCached(ctx, p)
	logWriteMode(s.Logger, "producto", "create", id, s.Queue.IsOnline())
	return id, nil
}

func (s *ProductService) UpdateProduct(ctx context.Context, p models.Producto) error {
	if p.ID == "" {
		return &ValidationError{Messages: []string{"id is required"}}
	}
	edited := models.NewTimestamp(s.now())
	p.Editado = &edited
	if msgs := utils.ValidateStruct(p); len(msgs) > 0 {
		return validationErr(msgs)
	}
	doc, err := remote.ToDocument(p)
	if err != nil {
		return err
	}
	delete(doc, "id")
	if _, err := s.write(ctx, p.EmpresaId, models.SyncCollectionProducts,
		models.SyncItemTypeUpdate, p.ID, doc, models.SyncPriorityNormal); err != nil {
		return err
	}
	s.upsertCached(ctx, p)
	logWriteMode(s.Logger, "producto", "update", p.ID, s.Queue.IsOnline())
	return nil
}

// DeleteProduct soft-deletes: the document stays in the store with borrado
// set so historic sales keep resolving their product names.
func (s *ProductService) DeleteProduct(ctx context.Context, empresaId, productId string) error {
	if productId == "" {
		return &ValidationError{Messages: []string{"id is required"}}
	}
	edited := models.NewTimestamp(s.now())
	doc := remote.Document{"borrado": true, "editado": edited}
	if _, err := s.write(ctx, empresaId, models.SyncCollectionProducts,
		models.SyncItemTypeUpdate, productId, doc, models.SyncPriorityNormal); err != nil {
		return err
	}
	s.removeCached(ctx, empresaId, productId)
	logWriteMode(s.Logger, "producto", "delete", productId, s.Queue.IsOnline())
	return nil
}

// GetProducts reads from the offline snapshot; subscriptions keep it fresh
// while online. Soft-deleted entries are filtered out.
func (s *ProductService) GetProducts(ctx context.Context, empresaId string) []models.Producto {
	cached, ok := s.Cache.GetCachedProducts(ctx, empresaId)
	if !ok {
		return nil
	}
	out := cached[:0:0]
	for _, p := range cached {
		if !p.Borrado {
			out = append(out, p)
		}
	}
	return out
}

func (s *ProductService) upsertCached(ctx context.Context, p models.Producto) {
	cached, _ := s.Cache.GetCachedProducts(ctx, p.EmpresaId)
	replaced := false
	for i := range cached {
		if cached[i].ID == p.ID {
			cached[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		cached = append(cached, p)
	}
	if err := s.Cache.CacheProducts(ctx, p.EmpresaId, cached); err != nil {
		s.Logger.WithError(err).Warn("product cache refresh failed")
	}
}

func (s *ProductService) removeCached(ctx context.Context, empresaId, productId string) {
	cached, ok := s.Cache.GetCachedProducts(ctx, empresaId)
	if !ok {
		return
	}
	kept := cached[:0]
	for _, p := range cached {
		if p.ID != productId {
			kept = append(kept, p)
		}
	}
	if err := s.Cache.CacheProducts(ctx, empresaId, kept); err != nil {
		s.Logger.WithError(err).Warn("product cache refresh failed")
	}
}
