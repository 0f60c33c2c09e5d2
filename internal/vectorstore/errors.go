package vectorstore

import "errors"

var (
	// ErrNotFound reports that a location holds no vector data. Returned
	// from Open when the caller required an existing collection.
	ErrNotFound = errors.New("vectorstore: collection not found")

	// ErrScheme reports a location URI whose scheme maps to no engine.
	ErrScheme = errors.New("vectorstore: unsupported location scheme")
)
