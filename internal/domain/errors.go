package domain

import "errors"

var (
	ErrInvalidPlatform = errors.New("unknown platform")
	ErrInvalidLimit    = errors.New("limit must be between 1 and 100")
	ErrEmptyUsername   = errors.New("username is required")

	// ErrDuplicateGame marks the benign outcome of inserting a game
	// whose (platform, external_id) already exists.
	ErrDuplicateGame = errors.New("game already imported")
)
