package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/safar/mute-store/internal/database"
	"github.com/safar/mute-store/internal/models"
	"github.com/safar/mute-store/internal/store"
)

func testOrder(email string) models.Order {
	return models.Order{
		CustomerEmail: email,
		Total:         decimal.NewFromInt(1),
		Products: []models.OrderLine{
			{ProductID: "MUTE-001", Name: "Camiseta", Price: decimal.RequireFromString("25.50"), Quantity: 2, Size: "M"},
			{ProductID: "MUTE-002", Name: "Gorra", Price: decimal.NewFromInt(15), Quantity: 1, Size: "U"},
		},
		Phone:         "3001234567",
		Address:       "Calle 1 # 2-3",
		Location:      &models.Location{Latitude: 4.711, Longitude: -74.0721},
		PaymentMethod: "tarjeta **** 4242",
	}
}

func TestCreatePurchase(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	mustCreateCustomer(t, db, "ana@example.com")

	purchase, err := store.CreatePurchase(ctx, db, testOrder("ana@example.com"))
	if err != nil {
		t.Fatalf("Create purchase: %v", err)
	}

	if !purchase.Total.Equal(decimal.NewFromInt(66)) {
		t.Errorf("Expected total recomputed to 66, got %s", purchase.Total)
	}
	if purchase.Status != models.PurchaseStatusPending {
		t.Errorf("Expected status pending, got %s", purchase.Status)
	}
	if len(purchase.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(purchase.Items))
	}
	if !purchase.Items[0].Subtotal.Equal(decimal.NewFromInt(51)) {
		t.Errorf("Expected subtotal 51, got %s", purchase.Items[0].Subtotal)
	}

	page, err := store.ListPurchasesByEmail(ctx, db, "ana@example.com", "", 10)
	if err != nil {
		t.Fatalf("List purchases: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("Expected 1 purchase, got %d", len(page.Items))
	}
	stored := page.Items[0]
	if stored.OrderNumber != purchase.OrderNumber {
		t.Errorf("Expected order %s, got %s", purchase.OrderNumber, stored.OrderNumber)
	}
	if stored.Location.Latitude != 4.711 || stored.PaymentMethod != "tarjeta **** 4242" {
		t.Errorf("Unexpected stored purchase: %+v", stored)
	}
	if len(stored.Items) != 2 || stored.Items[1].Size != "U" {
		t.Errorf("Expected items to be attached, got %+v", stored.Items)
	}
}

func TestCreatePurchaseUnknownCustomer(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	_, err := store.CreatePurchase(ctx, db, testOrder("nadie@example.com"))
	if !errors.Is(err, database.ErrCustomerNotFound) {
		t.Fatalf("Expected ErrCustomerNotFound, got: %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM purchases").Scan(&count); err != nil {
		t.Fatalf("Count purchases: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected no purchases stored, got %d", count)
	}
}

func TestListPurchasesPagination(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	mustCreateCustomer(t, db, "ana@example.com")
	mustCreateCustomer(t, db, "otro@example.com")

	var created []string
	for i := 0; i < 5; i++ {
		p, err := store.CreatePurchase(ctx, db, testOrder("ana@example.com"))
		if err != nil {
			t.Fatalf("Create purchase %d: %v", i, err)
		}
		created = append(created, p.OrderNumber)
	}
	if _, err := store.CreatePurchase(ctx, db, testOrder("otro@example.com")); err != nil {
		t.Fatalf("Create other purchase: %v", err)
	}

	var seen []string
	cursor := ""
	for pages := 0; ; pages++ {
		if pages > 5 {
			t.Fatal("Pagination did not terminate")
		}
		page, err := store.ListPurchasesByEmail(ctx, db, "ana@example.com", cursor, 2)
		if err != nil {
			t.Fatalf("List page %d: %v", pages, err)
		}
		for _, p := range page.Items {
			if p.CustomerEmail != "ana@example.com" {
				t.Errorf("Purchase of %s leaked into listing", p.CustomerEmail)
			}
			seen = append(seen, p.OrderNumber)
		}
		if !page.HasMore {
			if page.NextCursor != "" {
				t.Error("Last page should not carry a cursor")
			}
			break
		}
		cursor = page.NextCursor
	}

	if len(seen) != len(created) {
		t.Fatalf("Expected %d purchases, got %d", len(created), len(seen))
	}
	for i := range created {
		if seen[i] != created[len(created)-1-i] {
			t.Errorf("Position %d: expected %s, got %s", i, created[len(created)-1-i], seen[i])
		}
	}
}

func TestListPurchasesUnknownEmail(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	page, err := store.ListPurchasesByEmail(context.Background(), db, "nadie@example.com", "", 0)
	if err != nil {
		t.Fatalf("List purchases: %v", err)
	}
	if len(page.Items) != 0 || page.HasMore {
		t.Errorf("Expected an empty page, got %+v", page)
	}
}

func TestConcurrentPurchases(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	mustCreateCustomer(t, db, "ana@example.com")

	concurrency := 10
	var wg sync.WaitGroup
	results := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order := testOrder("ana@example.com")
			order.Address = fmt.Sprintf("Calle %d", i)
			_, err := store.CreatePurchase(ctx, db, order)
			results <- err
		}(i)
	}

	wg.Wait()
	close(results)

	for err := range results {
		if err != nil {
			t.Errorf("Concurrent purchase failed: %v", err)
		}
	}

	var purchases, items, distinct int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT order_number) FROM purchases").Scan(&purchases, &distinct)
	if err != nil {
		t.Fatalf("Count purchases: %v", err)
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM purchase_items").Scan(&items); err != nil {
		t.Fatalf("Count items: %v", err)
	}
	if purchases != concurrency || distinct != concurrency {
		t.Errorf("Expected %d distinct purchases, got %d (%d distinct)", concurrency, purchases, distinct)
	}
	if items != 2*concurrency {
		t.Errorf("Expected %d items, got %d", 2*concurrency, items)
	}
}

func TestReadOnlyTransactionRejectsWrites(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	mustCreateCustomer(t, db, "ana@example.com")

	err := database.WithTransaction(ctx, db, database.ReadOnlyTxOptions(), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE customers SET name = 'x'")
		return err
	})
	if err == nil {
		t.Fatal("Expected a write inside a read-only transaction to fail")
	}

	page, err := store.ListPurchasesByEmail(ctx, db, "ana@example.com", "", 10)
	if err != nil {
		t.Fatalf("List purchases through a read-only transaction: %v", err)
	}
	if len(page.Items) != 0 {
		t.Errorf("Expected no purchases, got %d", len(page.Items))
	}
}
