package services

import (
	"context"

	"github.com/tiendafacil/ledger_backend/models"
	"github.com/tiendafacil/ledger_backend/remote"
	"github.com/tiendafacil/ledger_backend/utils"
)

type MemberService struct {
	Deps
}

func NewMemberService(deps Deps) *MemberService {
	return &MemberService{Deps: deps}
}

func (s *MemberService) CreateMember(ctx context.Context, m models.Miembro) (string, error) {
	m.Creado = models.NewTimestamp(s.now())
	m.Borrado = false
	if msgs := utils.ValidateStruct(m); len(msgs) > 0 {
		return "", validationErr(msgs)
	}
	doc, err := remote.ToDocument(m)
	if err != nil {
		return "", err
	}
	delete(doc, "id")
	id, err := s.write(ctx, m.EmpresaId, models.SyncCollectionMembers,
		models.SyncItemTypeCreate, "", doc, models.SyncPriorityLow)
	if err != nil {
		return "", err
	}
	m.ID = id
	s.upsertCached(ctx, m)
	logWriteMode(s.Logger, "miembro", "create", id, s.Queue.IsOnline())
	return id, nil
}

func (s *MemberService) UpdateMember(ctx context.Context, m models.Miembro) error {
	if m.ID == "" {
		return &ValidationError{Messages: []string{"id is required"}}
	}
	edited := models.NewTimestamp(s.now())
	m.Editado = &edited
	if msgs := utils.ValidateStruct(m); len(msgs) > 0 {
		return validationErr(msgs)
	}
	doc, err := remote.ToDocument(m)
	if err != nil {
		return err
	}
	delete(doc, "id")
	if _, err := s.write(ctx, m.EmpresaId, models.SyncCollectionMembers,
		models.SyncItemTypeUpdate, m.ID, doc, models.SyncPriorityLow); err != nil {
		return err
	}
	s.upsertCached(ctx, m)
	logWriteMode(s.Logger, "miembro", "update", m.ID, s.Queue.IsOnline())
	return nil
}

func (s *MemberService) DeleteMember(ctx context.Context, empresaId, memberId string) error {
	if memberId == "" {
		return &ValidationError{Messages: []string{"id is required"}}
	}
	edited := models.NewTimestamp(s.now())
	doc := remote.Document{"borrado": true, "activo": false, "editado": edited}
	if _, err := s.write(ctx, empresaId, models.SyncCollectionMembers,
		models.SyncItemTypeUpdate, memberId, doc, models.SyncPriorityLow); err != nil {
		return err
	}
	s.removeCached(ctx, empresaId, memberId)
	logWriteMode(s.Logger, "miembro", "delete", memberId, s.Queue.IsOnline())
	return nil
}

func (s *MemberService) GetMembers(ctx context.Context, empresaId string) []models.Miembro {
	cached, ok := s.Cache.GetCachedMiembros(ctx, empresaId)
	if !ok {
		return nil
	}
	out := cached[:0:0]
	for _, m := range cached {
		if !m.Borrado {
			out = append(out, m)
		}
	}
	return out
}

func (s *MemberService) upsertCached(ctx context.Context, m models.Miembro) {
	cached, _ := s.Cache.GetCachedMiembros(ctx, m.EmpresaId)
	replaced := false
	for i := range cached {
		if cached[i].ID == m.ID {
			cached[i] = m
			replaced = true
			break
		}
	}
	if !replaced {
		cached = append(cached, m)
	}
	if err := s.Cache.CacheMiembros(ctx, m.EmpresaId, cached); err != nil {
		s.Logger.WithError(err).Warn("member cache refresh failed")
	}
}

func (s *MemberService) removeCached(ctx context.Context, empresaId, memberId string) {
	cached, ok := s.Cache.GetCachedMiembros(ctx, empresaId)
	if !ok {
		return
	}
	kept := cached[:0]
	for _, m := range cached {
		if m.ID != memberId {
			kept = append(kept, m)
		}
	}
	if err := s.Cache.CacheMiembros(ctx, empresaId, kept); err != nil {
		s.Logger.WithError(err).Warn("member cache refresh failed")
	}
}
