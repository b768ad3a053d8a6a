package settings

import (
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/clinicstock/internal/platform/httpx"
)

// DefaultLowStockThreshold applies when no configuration row exists.
const DefaultLowStockThreshold = 10

// SystemConfiguration holds the clinic wide inventory switches.
type SystemConfiguration struct {
	AutoReorder       bool      `json:"auto_reorder"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Defaults returns the configuration used before an operator saves one.
func Defaults() SystemConfiguration {
	return SystemConfiguration{AutoReorder: false, LowStockThreshold: DefaultLowStockThreshold}
}

// Validate checks the configuration values.
func (c SystemConfiguration) Validate() error {
	if c.LowStockThreshold < 0 {
		return ErrInvalidThreshold
	}
	return nil
}

var (
	// ErrNotConfigured is returned by repositories when the singleton row is missing.
	ErrNotConfigured = errors.New("settings: configuration not found")
	// ErrInvalidThreshold rejects negative thresholds.
	ErrInvalidThreshold = fmt.Errorf("settings: low stock threshold must be >= 0: %w", httpx.ErrValidation)
)
