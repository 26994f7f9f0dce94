package workspace

import "errors"

var (
	// ErrNotOpen is returned for operations before Open or after Close.
	ErrNotOpen = errors.New("workspace not open")
	// ErrUploadsDisabled is returned when no uploader is configured.
	ErrUploadsDisabled = errors.New("uploads are not configured")
	// ErrInvalidInput indicates missing workspace options.
	ErrInvalidInput = errors.New("invalid workspace input")
)
