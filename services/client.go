package services

import (
	"context"

	"github.com/tiendafacil/ledger_backend/models"
	"github.com/tiendafacil/ledger_backend/remote"
	"github.com/tiendafacil/ledger_backend/utils"
)

type ClientService struct {
	Deps
}

func NewClientService(deps Deps) *ClientService {
	return &ClientService{Deps: deps}
}

func (s *ClientService) CreateClient(ctx context.Context, c models.Cliente) (string, error) {
	c.Creado = models.NewTimestamp(s.now())
	c.Borrado = false
	if msgs := utils.ValidateStruct(c); len(msgs) > 0 {
		return "", validationErr(msgs)
	}
	doc, err := remote.ToDocument(c)
	if err != nil {
		return "", err
	}
	delete(doc, "id")
	id, err := s.write(ctx, c.EmpresaId, models.SyncCollectionClients,
		models.SyncItemTypeCreate, "", doc, models.SyncPriorityNormal)
	if err != nil {
		return "", err
	}
	c.ID = id
	s.upsertCached(ctx, c)
	logWriteMode(s.Logger, "cliente", "create", id, s.Queue.IsOnline())
	return id, nil
}

func (s *ClientService) UpdateClient(ctx context.Context, c models.Cliente) error {
	if c.ID == "" {
		return &ValidationError{Messages: []string{"id is required"}}
	}
	edited := models.NewTimestamp(s.now())
	c.Editado = &edited
	if msgs := utils.ValidateStruct(c); len(msgs) > 0 {
		return validationErr(msgs)
	}
	doc, err := remote.ToDocument(c)
	if err != nil {
		return err
	}
	delete(doc, "id")
	if _, err := s.write(ctx, c.EmpresaId, models.SyncCollectionClients,
		models.SyncItemTypeUpdate, c.ID, doc, models.SyncPriorityNormal); err != nil {
		return err
	}
	s.upsertCached(ctx, c)
	logWriteMode(s.Logger, "cliente", "update", c.ID, s.Queue.IsOnline())
	return nil
}

// DeleteClient soft-deletes. The client's events stay in the store; debt
// history must survive the client leaving.
func (s *ClientService) DeleteClient(ctx context.Context, empresaId, clienteId string) error {
	if clienteId == "" {
		return &ValidationError{Messages: []string{"id is required"}}
	}
	edited := models.NewTimestamp(s.now())
	doc := remote.Document{"borrado": true, "editado": edited}
	if _, err := s.write(ctx, empresaId, models.SyncCollectionClients,
		models.SyncItemTypeUpdate, clienteId, doc, models.SyncPriorityNormal); err != nil {
		return err
	}
	s.removeCached(ctx, empresaId, clienteId)
	logWriteMode(s.Logger, "cliente", "delete", clienteId, s.Queue.IsOnline())
	return nil
}

func (s *ClientService) GetClients(ctx context.Context, empresaId string) []models.Cliente {
	cached, ok := s.Cache.GetCachedClients(ctx, empresaId)
	if !ok {
		return nil
	}
	out := cached[:0:0]
	for _, c := range cached {
		if !c.Borrado {
			out = append(out, c)
		}
	}
	return out
}

func (s *ClientService) upsertCached(ctx context.Context, c models.Cliente) {
	cached, _ := s.Cache.GetCachedClients(ctx, c.EmpresaId)
	replaced := false
	for i := range cached {
		if cached[i].ID == c.ID {
			cached[i] = c
			replaced = true
			break
		}
	}
	if !replaced {
		cached = append(cached, c)
	}
	if err := s.Cache.CacheClients(ctx, c.EmpresaId, cached); err != nil {
		s.Logger.WithError(err).Warn("client cache refresh failed")
	}
}

func (s *ClientService) removeCached(ctx context.Context, empresaId, clienteId string) {
	cached, ok := s.Cache.GetCachedClients(ctx, empresaId)
	if !ok {
		return
	}
	kept := cached[:0]
	for _, c := range cached {
		if c.ID != clienteId {
			kept = append(kept, c)
		}
	}
	if err := s.Cache.CacheClients(ctx, empresaId, kept); err != nil {
		s.Logger.WithError(err).Warn("client cache refresh failed")
	}
}
