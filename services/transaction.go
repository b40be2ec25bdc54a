package services

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tiendafacil/ledger_backend/ledger"
	"github.com/tiendafacil/ledger_backend/models"
	"github.com/tiendafacil/ledger_backend/remote"
)

// TransactionService owns the event log: sales, payments, the derived debt
// views, and consistency checks. Events are high priority in the sync
// queue; a lost payment is worse than a stale catalog.
type TransactionService struct {
	Deps
}

func NewTransactionService(deps Deps) *TransactionService {
	return &TransactionService{Deps: deps}
}

func (s *TransactionService) CreateEvent(ctx context.Context, empresaId string, e models.TransactionEvent) (string, error) {
	now := s.now()
	e.Creado = models.NewTimestamp(now)
	if e.Fecha.IsZero() {
		e.Fecha = e.Creado
	}
	e.Borrado = false
	if msgs := e.Validate(); len(msgs) > 0 {
		return "", validationErr(msgs)
	}
	doc, err := remote.ToDocument(e)
	if err != nil {
		return "", err
	}
	delete(doc, "id")
	id, err := s.write(ctx, empresaId, models.SyncCollectionEvents,
		models.SyncItemTypeCreate, "", doc, models.SyncPriorityHigh)
	if err != nil {
		return "", err
	}
	e.ID = id
	s.upsertCached(ctx, empresaId, e)
	logWriteMode(s.Logger, "evento", "create", id, s.Queue.IsOnline())
	return id, nil
}

func (s *TransactionService) UpdateEvent(ctx context.Context, empresaId string, e models.TransactionEvent) error {
	if e.ID == "" {
		return &ValidationError{Messages: []string{"id is required"}}
	}
	edited := models.NewTimestamp(s.now())
	e.Editado = &edited
	if msgs := e.Validate(); len(msgs) > 0 {
		return validationErr(msgs)
	}
	doc, err := remote.ToDocument(e)
	if err != nil {
		return err
	}
	delete(doc, "id")
	if _, err := s.write(ctx, empresaId, models.SyncCollectionEvents,
		models.SyncItemTypeUpdate, e.ID, doc, models.SyncPriorityHigh); err != nil {
		return err
	}
	s.upsertCached(ctx, empresaId, e)
	logWriteMode(s.Logger, "evento", "update", e.ID, s.Queue.IsOnline())
	return nil
}

// DeleteEvent soft-deletes: the event stays stored with borrado set and the
// debt fold skips it. This is the normal delete path; the history view can
// still show it struck through.
func (s *TransactionService) DeleteEvent(ctx context.Context, empresaId, clienteId, eventId string) error {
	if eventId == "" {
		return &ValidationError{Messages: []string{"id is required"}}
	}
	edited := models.NewTimestamp(s.now())
	doc := remote.Document{"borrado": true, "editado": edited}
	if _, err := s.write(ctx, empresaId, models.SyncCollectionEvents,
		models.SyncItemTypeUpdate, eventId, doc, models.SyncPriorityHigh); err != nil {
		return err
	}
	s.markCachedDeleted(ctx, empresaId, clienteId, eventId)
	logWriteMode(s.Logger, "evento", "delete", eventId, s.Queue.IsOnline())
	return nil
}

// HardDeleteEvent removes the document entirely. Reserved for cleanup of
// mistaken entries; normal deletion is the soft path.
func (s *TransactionService) HardDeleteEvent(ctx context.Context, empresaId, clienteId, eventId string) error {
	if eventId == "" {
		return &ValidationError{Messages: []string{"id is required"}}
	}
	if _, err := s.write(ctx, empresaId, models.SyncCollectionEvents,
		models.SyncItemTypeDelete, eventId, nil, models.SyncPriorityHigh); err != nil {
		return err
	}
	s.removeCached(ctx, empresaId, clienteId, eventId)
	logWriteMode(s.Logger, "evento", "hardDelete", eventId, s.Queue.IsOnline())
	return nil
}

// GetClientEvents returns the cached event log for one client, deleted
// entries included so the UI can render them struck through.
func (s *TransactionService) GetClientEvents(ctx context.Context, empresaId, clienteId string) []models.TransactionEvent {
	events, ok := s.Cache.GetCachedClientEvents(ctx, empresaId, clienteId)
	if !ok {
		return nil
	}
	return events
}

// GetClientDebt folds the client's cached event log into the current debt
// picture.
func (s *TransactionService) GetClientDebt(ctx context.Context, empresaId, clienteId string) ledger.DebtCalculation {
	events, _ := s.Cache.GetCachedClientEvents(ctx, empresaId, clienteId)
	return ledger.CalculateClientDebt(events)
}

// PreviewEventImpact reports what saving the event would do to the client's
// balance, without writing anything.
func (s *TransactionService) PreviewEventImpact(ctx context.Context, empresaId string, e models.TransactionEvent) ledger.DebtImpact {
	current := s.GetClientDebt(ctx, empresaId, e.ClienteId)
	return ledger.CalculateDebtImpact(current.TotalDebt, e)
}

// PreviewPayment returns the debt/favor split and the display rows for a
// candidate payment amount.
func (s *TransactionService) PreviewPayment(ctx context.Context, empresaId, clienteId string, amount decimal.Decimal) (ledger.PaymentSplit, []ledger.DisplayEvent) {
	current := s.GetClientDebt(ctx, empresaId, clienteId)
	split := ledger.SplitPayment(current.TotalDebt, amount)
	rows := ledger.ApplyPaymentWithVisualization(current.TotalDebt, amount)
	return split, rows
}

// CheckConsistency validates the client's cached event log.
func (s *TransactionService) CheckConsistency(ctx context.Context, empresaId, clienteId string) ledger.ConsistencyReport {
	events, _ := s.Cache.GetCachedClientEvents(ctx, empresaId, clienteId)
	return ledger.ValidateTransactionConsistency(events)
}

func (s *TransactionService) upsertCached(ctx context.Context, empresaId string, e models.TransactionEvent) {
	cached, _ := s.Cache.GetCachedClientEvents(ctx, empresaId, e.ClienteId)
	replaced := false
	for i := range cached {
		if cached[i].ID == e.ID {
			cached[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		cached = append(cached, e)
	}
	if err := s.Cache.CacheClientEvents(ctx, empresaId, e.ClienteId, cached); err != nil {
		s.Logger.WithError(err).Warn("event cache refresh failed")
	}
}

func (s *TransactionService) markCachedDeleted(ctx context.Context, empresaId, clienteId, eventId string) {
	cached, ok := s.Cache.GetCachedClientEvents(ctx, empresaId, clienteId)
	if !ok {
		return
	}
	for i := range cached {
		if cached[i].ID == eventId {
			cached[i].Borrado = true
		}
	}
	if err := s.Cache.CacheClientEvents(ctx, empresaId, clienteId, cached); err != nil {
		s.Logger.WithError(err).Warn("event cache refresh failed")
	}
}

func (s *TransactionService) removeCached(ctx context.Context, empresaId, clienteId, eventId string) {
	cached, ok := s.Cache.GetCachedClientEvents(ctx, empresaId, clienteId)
	if !ok {
		return
	}
	kept := cached[:0]
	for _, e := range cached {
		if e.ID != eventId {
			kept = append(kept, e)
		}
	}
	if err := s.Cache.CacheClientEvents(ctx, empresaId, clienteId, kept); err != nil {
		s.Logger.WithError(err).Warn("event cache refresh failed")
	}
}
