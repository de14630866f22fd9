package domain

import "errors"

var (
	ErrUnsupportedPlatform  = errors.New("unsupported platform")
	ErrCredentialsExhausted = errors.New("all credentials exhausted")
	ErrProcessingFailed     = errors.New("search processing failed")
)

var (
	ErrEmptyQuery    = errors.New("empty query")
	ErrQueryTooLong  = errors.New("query too long")
	ErrEmptyPlatform = errors.New("empty platform")
)
