package allocation

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyInput          = errors.New("no allocations found")
	ErrMalformedRow        = errors.New("row must have exactly two columns: address,amount")
	ErrDuplicateAddress    = errors.New("duplicate address")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrZeroAddress         = errors.New("zero address")
	ErrNotANumber          = errors.New("amount is not an integer")
	ErrNonPositiveAmount   = errors.New("amount must be greater than zero")
	ErrAlreadyClaimed      = errors.New("allocation id already exists")
	ErrRegistryUnavailable = errors.New("claim registry unavailable")
	ErrHistoricalID        = errors.New("allocation id used by a previous report")
	ErrHistoricalAddress   = errors.New("address used by a previous report")
)

// RowError reports which input row failed and the id it was assigned
type RowError struct {
	Row int   // 1-based line number
	ID  int64 // -1 when the row failed before an id was assigned
	Err error
}

func (e *RowError) Error() string {
	if e.ID < 0 {
		return fmt.Sprintf("row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("row %d (id %d): %v", e.Row, e.ID, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Reason short label for err, used for metrics and log fields
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, ErrMalformedRow):
		return "malformed_row"
	case errors.Is(err, ErrDuplicateAddress):
		return "duplicate_address"
	case errors.Is(err, ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, ErrZeroAddress):
		return "zero_address"
	case errors.Is(err, ErrNotANumber):
		return "not_a_number"
	case errors.Is(err, ErrNonPositiveAmount):
		return "non_positive_amount"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrRegistryUnavailable):
		return "registry_unavailable"
	case errors.Is(err, ErrHistoricalID):
		return "historical_id"
	case errors.Is(err, ErrHistoricalAddress):
		return "historical_address"
	default:
		return "other"
	}
}
