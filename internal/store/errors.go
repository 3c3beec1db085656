package store

import "errors"

var (
	// ErrUnauthenticated is returned when an operation that needs a caller
	// identity receives none.
	ErrUnauthenticated = errors.New("user not authenticated")
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
)

func requireUser(userID int64) error {
	if userID <= 0 {
		return ErrUnauthenticated
	}
	return nil
}
