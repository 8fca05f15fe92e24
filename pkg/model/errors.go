package model

import "errors"

var (
	ErrEmptyField        = errors.New("required field is empty")
	ErrInvalidURL        = errors.New("invalid URL")
	ErrInvalidMethod     = errors.New("invalid HTTP method")
	ErrInvalidStatusCode = errors.New("invalid status code (must be 100-599)")
)
