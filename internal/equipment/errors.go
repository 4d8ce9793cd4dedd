package equipment

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the item does not exist or was retired.
	ErrNotFound = errors.New("equipment not found")
	// ErrInsufficientStock is returned when a decrement would take stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStockChanged is returned when a direct stock edit raced a concurrent movement.
	ErrStockChanged = errors.New("stock changed concurrently")
)

// StockError carries the quantities involved in a rejected decrement.
type StockError struct {
	Available int
	Requested int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock: available %d, requested %d", e.Available, e.Requested)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ErrCollaboratorNotFound is returned by suggestion lookups keyed by collaborator.
var ErrCollaboratorNotFound = errors.New("collaborator not found")
