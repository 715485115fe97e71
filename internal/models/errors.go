package models

import "errors"

var (
	// ErrNotFound means the referenced campaign or image does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation means the request input is malformed.
	ErrValidation = errors.New("validation failed")
	// ErrUpstream means a required external generation call failed and no
	// fallback could produce usable output.
	ErrUpstream = errors.New("upstream generation failed")
)
