package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/mute-store/internal/database"
	"github.com/safar/mute-store/internal/models"
)

const customerColumns = `id, COALESCE(external_id, ''), name, email, COALESCE(password_hash, ''), phone, address, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (*models.Customer, error) {
	c := &models.Customer{}
	err := row.Scan(
		&c.ID,
		&c.ExternalID,
		&c.Name,
		&c.Email,
		&c.PasswordHash,
		&c.Phone,
		&c.Address,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.Version,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type NewCustomer struct {
	Name         string
	Email        string
	PasswordHash string
	Phone        string
	Address      string
}

// CreateCustomer inserts a password account. A duplicate email returns
// database.ErrEmailTaken.
func CreateCustomer(ctx context.Context, db *sql.DB, nc NewCustomer) (*models.Customer, error) {
	query := `
		INSERT INTO customers (name, email, password_hash, phone, address, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 1)
		RETURNING ` + customerColumns

	c, err := scanCustomer(db.QueryRowContext(ctx, query, nc.Name, nc.Email, nc.PasswordHash, nc.Phone, nc.Address))
	if err != nil {
		if database.IsUniqueViolation(err, "customers_email_key") {
			return nil, database.ErrEmailTaken
		}
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return c, nil
}

func GetCustomerByEmail(ctx context.Context, db *sql.DB, email string) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE email = $1`

	c, err := scanCustomer(db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

// UpsertProviderCustomer records an identity-provider account. An account
// already linked to externalID is returned untouched; otherwise a password
// account with the same email is linked, or a new customer is created.
// created reports whether a row was inserted.
func UpsertProviderCustomer(ctx context.Context, db *sql.DB, externalID, email, name string) (c *models.Customer, created bool, err error) {
	err = database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		existing, err := scanCustomer(tx.QueryRowContext(ctx,
			`SELECT `+customerColumns+` FROM customers WHERE external_id = $1`, externalID))
		if err == nil {
			c, created = existing, false
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("find provider customer: %w", err)
		}

		var inserted bool
		query := `
			INSERT INTO customers (external_id, name, email, created_at, updated_at, version)
			VALUES ($1, $2, $3, NOW(), NOW(), 1)
			ON CONFLICT (email) DO UPDATE
			SET external_id = EXCLUDED.external_id,
			    updated_at = NOW(),
			    version = customers.version + 1
			RETURNING ` + customerColumns + `, (xmax = 0)`

		row := tx.QueryRowContext(ctx, query, externalID, name, email)
		c = &models.Customer{}
		err = row.Scan(
			&c.ID,
			&c.ExternalID,
			&c.Name,
			&c.Email,
			&c.PasswordHash,
			&c.Phone,
			&c.Address,
			&c.CreatedAt,
			&c.UpdatedAt,
			&c.Version,
			&inserted,
		)
		if err != nil {
			return fmt.Errorf("upsert provider customer: %w", err)
		}
		created = inserted
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return c, created, nil
}
