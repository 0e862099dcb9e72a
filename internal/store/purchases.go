package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/safar/mute-store/internal/database"
	"github.com/safar/mute-store/internal/models"
)

func generateOrderNumber() string {
	return "MUTE-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// PurchaseTotal sums price times quantity over the order lines.
func PurchaseTotal(lines []models.OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// CreatePurchase stores an order for the customer owning order.CustomerEmail.
// The purchase row and all of its items are written in one transaction; the
// stored total is recomputed from the lines.
func CreatePurchase(ctx context.Context, db *sql.DB, order models.Order) (*models.Purchase, error) {
	if len(order.Products) == 0 {
		return nil, database.ErrEmptyPurchase
	}

	var purchase *models.Purchase

	err := database.WithRetry(ctx, db, database.TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		MaxRetries:     3,
	}, func(tx *sql.Tx) error {
		var customerID int64
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM customers WHERE email = $1",
			order.CustomerEmail).Scan(&customerID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrCustomerNotFound
			}
			return fmt.Errorf("find customer: %w", err)
		}

		p := &models.Purchase{
			OrderNumber:   generateOrderNumber(),
			CustomerID:    customerID,
			CustomerEmail: order.CustomerEmail,
			Status:        models.PurchaseStatusPending,
			Total:         PurchaseTotal(order.Products),
			Phone:         order.Phone,
			Address:       order.Address,
			PaymentMethod: order.PaymentMethod,
		}
		if order.Location != nil {
			p.Location = *order.Location
		}

		err = tx.QueryRowContext(ctx,
			`INSERT INTO purchases (order_number, customer_id, customer_email, status, total,
			                        phone, address, latitude, longitude, payment_method, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
			 RETURNING id, created_at`,
			p.OrderNumber, p.CustomerID, p.CustomerEmail, p.Status, p.Total,
			p.Phone, p.Address, p.Location.Latitude, p.Location.Longitude, p.PaymentMethod,
		).Scan(&p.ID, &p.CreatedAt)
		if err != nil {
			return fmt.Errorf("create purchase: %w", err)
		}

		for _, line := range order.Products {
			item := models.PurchaseItem{
				PurchaseID: p.ID,
				ProductID:  line.ProductID,
				Name:       line.Name,
				ImageURL:   line.ImageURL,
				Size:       line.Size,
				Quantity:   line.Quantity,
				UnitPrice:  line.Price,
				Subtotal:   line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))),
			}
			err = tx.QueryRowContext(ctx,
				`INSERT INTO purchase_items (purchase_id, product_id, name, image_url, size, quantity, unit_price, subtotal)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				 RETURNING id`,
				item.PurchaseID, item.ProductID, item.Name, item.ImageURL, item.Size,
				item.Quantity, item.UnitPrice, item.Subtotal,
			).Scan(&item.ID)
			if err != nil {
				return fmt.Errorf("create purchase item: %w", err)
			}
			p.Items = append(p.Items, item)
		}

		purchase = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	return purchase, nil
}

// ListPurchasesByEmail returns one page of the customer's purchases, newest
// first, each with its items.
func ListPurchasesByEmail(ctx context.Context, db *sql.DB, email, cursor string, limit int) (*PurchasePage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = ClampPageSize(limit)

	query := `
		SELECT id, order_number, customer_id, customer_email, status, total,
		       phone, address, latitude, longitude, payment_method, created_at
		FROM purchases
		WHERE customer_email = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	// One snapshot for the page and its items.
	var (
		purchases []models.Purchase
		hasMore   bool
	)
	err = database.WithTransaction(ctx, db, database.ReadOnlyTxOptions(), func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, email, cursorData.CreatedAt, cursorData.ID, limit+1)
		if err != nil {
			return fmt.Errorf("list purchases: %w", err)
		}
		defer rows.Close()

		purchases = []models.Purchase{}
		for rows.Next() {
			var p models.Purchase
			err := rows.Scan(
				&p.ID,
				&p.OrderNumber,
				&p.CustomerID,
				&p.CustomerEmail,
				&p.Status,
				&p.Total,
				&p.Phone,
				&p.Address,
				&p.Location.Latitude,
				&p.Location.Longitude,
				&p.PaymentMethod,
				&p.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("scan purchase: %w", err)
			}
			purchases = append(purchases, p)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		hasMore = len(purchases) > limit
		if hasMore {
			purchases = purchases[:limit]
		}
		return attachItems(ctx, tx, purchases)
	})
	if err != nil {
		return nil, err
	}

	var nextCursor string
	if hasMore && len(purchases) > 0 {
		last := purchases[len(purchases)-1]
		nextCursor = EncodeCursor(PurchaseCursor{
			CreatedAt: last.CreatedAt.UTC().Truncate(time.Microsecond),
			ID:        last.ID,
		})
	}

	return &PurchasePage{
		Items:      purchases,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func attachItems(ctx context.Context, tx *sql.Tx, purchases []models.Purchase) error {
	if len(purchases) == 0 {
		return nil
	}

	ids := make([]int64, len(purchases))
	index := make(map[int64]int, len(purchases))
	for i, p := range purchases {
		ids[i] = p.ID
		index[p.ID] = i
		purchases[i].Items = []models.PurchaseItem{}
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, purchase_id, product_id, name, image_url, size, quantity, unit_price, subtotal
		 FROM purchase_items
		 WHERE purchase_id = ANY($1)
		 ORDER BY id`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("list purchase items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.PurchaseItem
		err := rows.Scan(
			&item.ID,
			&item.PurchaseID,
			&item.ProductID,
			&item.Name,
			&item.ImageURL,
			&item.Size,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
		)
		if err != nil {
			return fmt.Errorf("scan purchase item: %w", err)
		}
		i := index[item.PurchaseID]
		purchases[i].Items = append(purchases[i].Items, item)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}
	return nil
}
