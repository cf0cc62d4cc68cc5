package service

import (
	"errors"
	"fmt"
)

// ParseError reports a model reply that holds no decodable JSON object.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse model response: %v", e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError reports a decodable reply that breaks the response contract.
type ValidationError struct {
	Raw    string
	Reason string
}

func (e *ValidationError) Error() string { return "invalid model response: " + e.Reason }

// ErrInvalidCategory is returned for manual edits naming a category outside the taxonomy.
var ErrInvalidCategory = errors.New("category is not in the taxonomy")

// IsModelError reports whether err came from a malformed or invalid model reply.
func IsModelError(err error) bool {
	var pe *ParseError
	var ve *ValidationError
	return errors.As(err, &pe) || errors.As(err, &ve)
}
