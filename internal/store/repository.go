package store

import (
	"context"
	"database/sql"

	"github.com/safar/mute-store/internal/models"
)

// Postgres binds the store functions to one connection pool.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) CreateCustomer(ctx context.Context, nc NewCustomer) (*models.Customer, error) {
	return CreateCustomer(ctx, p.db, nc)
}

func (p *Postgres) GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	return GetCustomerByEmail(ctx, p.db, email)
}

func (p *Postgres) UpsertProviderCustomer(ctx context.Context, externalID, email, name string) (*models.Customer, bool, error) {
	return UpsertProviderCustomer(ctx, p.db, externalID, email, name)
}

func (p *Postgres) ListProducts(ctx context.Context) ([]models.Product, error) {
	return ListProducts(ctx, p.db)
}

func (p *Postgres) CreatePurchase(ctx context.Context, order models.Order) (*models.Purchase, error) {
	return CreatePurchase(ctx, p.db, order)
}

func (p *Postgres) ListPurchasesByEmail(ctx context.Context, email, cursor string, limit int) (*PurchasePage, error) {
	return ListPurchasesByEmail(ctx, p.db, email, cursor, limit)
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
