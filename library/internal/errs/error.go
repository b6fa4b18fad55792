package errs

import (
	"errors"
)

var (
	ErrInvalidID       = errors.New("invalid identifier")
	ErrAlreadyBorrowed = errors.New("You already borrowed the book!!!") //nolint:stylecheck
	ErrBorrowLimit     = errors.New("You already borrowed 3 books!!!")  //nolint:stylecheck
	ErrUnknownDriver   = errors.New("unknown store driver")
)
