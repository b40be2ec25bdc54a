// seed-demo loads a demo empresa with a small catalog, a few clients and a
// realistic event history, so a fresh environment has data to click through.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-demo
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tiendafacil/ledger_backend/config"
	"github.com/tiendafacil/ledger_backend/models"
	"github.com/tiendafacil/ledger_backend/remote"
)

const demoEmpresa = "demo"

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if err := remote.Migrate(db); err != nil {
		fmt.Fprintf(os.Stderr, "migrate failed: %v\n", err)
		os.Exit(1)
	}

	logger := config.GetLogger()
	store := remote.NewGormStore(db, logger)

	products := []models.Producto{
		{EmpresaId: demoEmpresa, Nombre: "Blusa floreada", Colores: []string{"rojo", "azul"},
			Costo: decimal.NewFromInt(80), Ganancia: decimal.NewFromInt(40), Stock: 12},
		{EmpresaId: demoEmpresa, Nombre: "Falda larga",
			Costo: decimal.NewFromInt(120), Ganancia: decimal.NewFromInt(60), Stock: 8},
		{EmpresaId: demoEmpresa, Nombre: "Pantalon de mezclilla",
			Costo: decimal.NewFromInt(200), Ganancia: decimal.NewFromInt(100), Stock: 5},
	}
	for _, p := range products {
		p.Creado = models.TimestampNow()
		if _, err := createDoc(ctx, store, models.SyncCollectionProducts, p); err != nil {
			fmt.Fprintf(os.Stderr, "failed to seed product %q: %v\n", p.Nombre, err)
			os.Exit(1)
		}
	}

	clients := []models.Cliente{
		{EmpresaId: demoEmpresa, Nombre: "Ana Torres", Telefono: "555-1001"},
		{EmpresaId: demoEmpresa, Nombre: "Lucia Mendez", Telefono: "555-1002"},
	}
	clientIds := make([]string, 0, len(clients))
	for _, c := range clients {
		c.Creado = models.TimestampNow()
		id, err := createDoc(ctx, store, models.SyncCollectionClients, c)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to seed client %q: %v\n", c.Nombre, err)
			os.Exit(1)
		}
		clientIds = append(clientIds, id)
	}

	base := time.Now().AddDate(0, 0, -30)
	events := []models.TransactionEvent{
		{ClienteId: clientIds[0], Tipo: models.EventTypeVenta, Producto: "Blusa floreada",
			ProductoColor: "rojo", Cantidad: decimal.NewFromInt(2),
			CostoUnitario: decimal.NewFromInt(80), GananciaUnitaria: decimal.NewFromInt(40),
			TotalVenta: decimal.NewFromInt(240), Fecha: models.NewTimestamp(base)},
		{ClienteId: clientIds[0], Tipo: models.EventTypePago,
			MontoPago: decimal.NewFromInt(100), Fecha: models.NewTimestamp(base.AddDate(0, 0, 7))},
		{ClienteId: clientIds[1], Tipo: models.EventTypeVenta, Producto: "Falda larga",
			Cantidad:      decimal.NewFromInt(1),
			CostoUnitario: decimal.NewFromInt(120), GananciaUnitaria: decimal.NewFromInt(60),
			TotalVenta: decimal.NewFromInt(180), Fecha: models.NewTimestamp(base.AddDate(0, 0, 3))},
		{ClienteId: clientIds[1], Tipo: models.EventTypePago,
			MontoPago: decimal.NewFromInt(180), Fecha: models.NewTimestamp(base.AddDate(0, 0, 14))},
	}
	for _, e := range events {
		e.Creado = models.TimestampNow()
		if msgs := e.Validate(); len(msgs) > 0 {
			fmt.Fprintf(os.Stderr, "invalid seed event: %v\n", msgs)
			os.Exit(1)
		}
		if _, err := createDoc(ctx, store, models.SyncCollectionEvents, e); err != nil {
			fmt.Fprintf(os.Stderr, "failed to seed event: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Seeded empresa %q: %d products, %d clients, %d events\n",
		demoEmpresa, len(products), len(clients), len(events))
}

func createDoc(ctx context.Context, store remote.Store, collection models.SyncCollection, v any) (string, error) {
	doc, err := remote.ToDocument(v)
	if err != nil {
		return "", err
	}
	delete(doc, "id")
	return store.Create(ctx, demoEmpresa, collection, doc)
}
