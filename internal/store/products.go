package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/safar/mute-store/internal/database"
	"github.com/safar/mute-store/internal/models"
)

type NewProduct struct {
	SKU         string
	Name        string
	Description string
	Price       decimal.Decimal
	ImageURL    string
	Sizes       []string
}

func CreateProduct(ctx context.Context, db *sql.DB, np NewProduct) (*models.Product, error) {
	product := &models.Product{}
	sizes := np.Sizes
	if sizes == nil {
		sizes = []string{}
	}

	query := `
		INSERT INTO products (sku, name, description, price, image_url, sizes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, sku, name, description, price, image_url, sizes, created_at, updated_at`

	err := db.QueryRowContext(ctx, query, np.SKU, np.Name, np.Description, np.Price, np.ImageURL, pq.Array(sizes)).Scan(
		&product.ID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.ImageURL,
		pq.Array(&product.Sizes),
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

// ListProducts returns the whole catalog in insertion order. An empty
// catalog is database.ErrNoProducts.
func ListProducts(ctx context.Context, db *sql.DB) ([]models.Product, error) {
	query := `
		SELECT id, sku, name, description, price, image_url, sizes, created_at, updated_at
		FROM products
		ORDER BY id`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var product models.Product
		err := rows.Scan(
			&product.ID,
			&product.SKU,
			&product.Name,
			&product.Description,
			&product.Price,
			&product.ImageURL,
			pq.Array(&product.Sizes),
			&product.CreatedAt,
			&product.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(products) == 0 {
		return nil, database.ErrNoProducts
	}
	return products, nil
}
