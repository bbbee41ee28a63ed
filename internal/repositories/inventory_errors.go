package repositories

import "fmt"

// StockError reports that a stock adjustment would leave a product below zero.
type StockError struct {
	ProductID string
	Requested int
	Available int
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("stock: product %s has %d available, %d requested", e.ProductID, e.Available, e.Requested)
}

// IsNotFound implements RepositoryError.
func (e *StockError) IsNotFound() bool { return false }

// IsConflict implements RepositoryError.
func (e *StockError) IsConflict() bool { return true }

// IsUnavailable implements RepositoryError.
func (e *StockError) IsUnavailable() bool { return false }

var _ RepositoryError = (*StockError)(nil)
