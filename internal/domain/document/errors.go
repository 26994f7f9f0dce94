package document

import "errors"

var (
	// ErrInvalidInput indicates a file or folder is missing a required field.
	ErrInvalidInput = errors.New("invalid document input")
	// ErrFolderNotFound indicates the target folder does not exist.
	ErrFolderNotFound = errors.New("folder not found")
	// ErrDuplicateFolder indicates a folder id is already taken.
	ErrDuplicateFolder = errors.New("folder already exists")
	// ErrFileNotFound indicates no folder holds the file.
	ErrFileNotFound = errors.New("file not found")
)
