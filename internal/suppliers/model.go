package suppliers

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/clinicstock/internal/platform/httpx"
)

// Supplier represents a vendor that fulfils purchase orders.
type Supplier struct {
	ID            int64     `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	ContactPerson string    `json:"contact_person"`
	Address       string    `json:"address"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

var (
	// ErrNotFound is returned when the supplier does not exist.
	ErrNotFound = fmt.Errorf("suppliers: %w", httpx.ErrNotFound)
	// ErrInvalidInput signals a rejected payload.
	ErrInvalidInput = fmt.Errorf("suppliers: %w", httpx.ErrValidation)
	// ErrDuplicateCode is returned when the code is already taken.
	ErrDuplicateCode = fmt.Errorf("suppliers: code %w", httpx.ErrDuplicate)
	// ErrInUse is returned when a supplier still has catalog items or orders.
	ErrInUse = fmt.Errorf("suppliers: supplier is referenced by items or orders: %w", httpx.ErrConflict)
)
