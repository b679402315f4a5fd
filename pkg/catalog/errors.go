package catalog

import "errors"

var (
	// ErrDuplicateView is returned when registering a name that already exists
	ErrDuplicateView = errors.New("view already exists")
	// ErrInvalidView is returned when a view record fails validation
	ErrInvalidView = errors.New("invalid view")
	// ErrUnknownDependency is returned when a view depends on a view that is not registered
	ErrUnknownDependency = errors.New("unknown view dependency")
	// ErrUnknownTable is returned when a base table is not part of the schema
	ErrUnknownTable = errors.New("unknown base table")
	// ErrDependencyCycle is returned when view dependencies would form a cycle
	ErrDependencyCycle = errors.New("view dependency cycle")
	// ErrViewNotFound is returned when mutating a view that does not exist
	ErrViewNotFound = errors.New("view not found")
	// ErrEditConflict is returned when an edit keeps losing races with other writers
	ErrEditConflict = errors.New("view edit conflict")
	// ErrStorage wraps failures of the backing store
	ErrStorage = errors.New("catalog storage failure")
)
