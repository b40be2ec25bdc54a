package remote

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tiendafacil/ledger_backend/models"
)

func TestDocumentRoundTrip(t *testing.T) {
	p := models.Producto{
		ID:        "p1",
		EmpresaId: "emp-1",
		Nombre:    "Blusa",
		Costo:     decimal.NewFromInt(80),
		Ganancia:  decimal.NewFromInt(40),
	}
	doc, err := ToDocument(p)
	if err != nil {
		t.Fatalf("ToDocument: %v", err)
	}
	if doc["nombre"] != "Blusa" {
		t.Errorf("doc = %v", doc)
	}
	back, err := FromDocument[models.Producto](doc)
	if err != nil {
		t.Fatalf("FromDocument: %v", err)
	}
	if back.Nombre != p.Nombre || !back.Precio().Equal(decimal.NewFromInt(120)) {
		t.Fatalf("round trip = %+v", back)
	}
}

func TestMemoryStore_CRUDAndSubscribe(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var snapshots [][]Document
	cancel := s.Subscribe("emp-1", models.SyncCollectionClients, func(docs []Document) {
		snapshots = append(snapshots, docs)
	})
	defer cancel()

	id, err := s.Create(ctx, "emp-1", models.SyncCollectionClients, Document{"nombre": "Ana"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Update(ctx, "emp-1", models.SyncCollectionClients, id, Document{"telefono": "555"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	doc, ok := s.Get("emp-1", models.SyncCollectionClients, id)
	if !ok || doc["nombre"] != "Ana" || doc["telefono"] != "555" {
		t.Fatalf("merged doc = %v", doc)
	}

	if err := s.Delete(ctx, "emp-1", models.SyncCollectionClients, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Count("emp-1", models.SyncCollectionClients) != 0 {
		t.Error("delete left the document behind")
	}

	// Initial snapshot plus one per mutation.
	if len(snapshots) != 4 {
		t.Fatalf("got %d snapshots, want 4", len(snapshots))
	}
	last := snapshots[len(snapshots)-1]
	if len(last) != 0 {
		t.Fatalf("final snapshot = %v, want empty", last)
	}

	want := []string{
		"create:clients:" + id,
		"update:clients:" + id,
		"delete:clients:" + id,
	}
	if len(s.AppliedOps) != len(want) {
		t.Fatalf("ops = %v", s.AppliedOps)
	}
	for i := range want {
		if s.AppliedOps[i] != want[i] {
			t.Errorf("op[%d] = %s, want %s", i, s.AppliedOps[i], want[i])
		}
	}

	if err := s.Update(ctx, "emp-1", models.SyncCollectionClients, "missing", Document{"x": 1}); err == nil {
		t.Error("update of missing document should fail")
	}
}
