package record

import "errors"

var (
	// ErrInvalidInput indicates a record is missing a required field.
	ErrInvalidInput = errors.New("invalid record input")
	// ErrRecordNotFound indicates no visible record has the id.
	ErrRecordNotFound = errors.New("record not found")
	// ErrInvalidStatus indicates an unknown action status.
	ErrInvalidStatus = errors.New("invalid action status")
)
