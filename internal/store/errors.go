package store

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrUserExists = errors.New("username already taken")
)
