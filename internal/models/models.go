package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	ID           int64     `json:"-"`
	ExternalID   string    `json:"id,omitempty"`
	Name         string    `json:"nombre"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Phone        string    `json:"telefono,omitempty"`
	Address      string    `json:"direccion,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      int       `json:"-"`
}

type Product struct {
	ID          int64           `json:"-"`
	SKU         string          `json:"id"`
	Name        string          `json:"nombre"`
	Description string          `json:"descripcion,omitempty"`
	Price       decimal.Decimal `json:"precio"`
	ImageURL    string          `json:"imagen"`
	Sizes       []string        `json:"tallas"`
	CreatedAt   time.Time       `json:"-"`
	UpdatedAt   time.Time       `json:"-"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// OrderLine is one product entry of a submitted order.
type OrderLine struct {
	ProductID string          `json:"id" validate:"required"`
	Name      string          `json:"nombre"`
	ImageURL  string          `json:"imagen"`
	Price     decimal.Decimal `json:"precio" validate:"gte=0"`
	Quantity  int             `json:"cantidad" validate:"min=1"`
	Size      string          `json:"talla"`
}

// Order is the payload accepted by POST /auth/comprar.
type Order struct {
	CustomerEmail string          `json:"cliente_email" validate:"required,email"`
	Total         decimal.Decimal `json:"total"`
	Products      []OrderLine     `json:"productos" validate:"required,min=1,dive"`
	Phone         string          `json:"telefono" validate:"required"`
	Address       string          `json:"direccion" validate:"required"`
	Location      *Location       `json:"ubicacion" validate:"required"`
	PaymentMethod string          `json:"metodo_pago"`
}

type Purchase struct {
	ID            int64           `json:"-"`
	OrderNumber   string          `json:"id"`
	CustomerID    int64           `json:"-"`
	CustomerEmail string          `json:"cliente_email"`
	Status        string          `json:"estado"`
	Total         decimal.Decimal `json:"total"`
	Phone         string          `json:"telefono"`
	Address       string          `json:"direccion"`
	Location      Location        `json:"ubicacion"`
	PaymentMethod string          `json:"metodo_pago"`
	CreatedAt     time.Time       `json:"fecha"`
	Items         []PurchaseItem  `json:"productos"`
}

type PurchaseItem struct {
	ID         int64           `json:"-"`
	PurchaseID int64           `json:"-"`
	ProductID  string          `json:"id"`
	Name       string          `json:"nombre"`
	ImageURL   string          `json:"imagen"`
	Size       string          `json:"talla"`
	Quantity   int             `json:"cantidad"`
	UnitPrice  decimal.Decimal `json:"precio"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// PurchaseStatusPending is the status of every stored purchase; nothing
// advances it yet.
const PurchaseStatusPending = "pending"
