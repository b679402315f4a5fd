package schema

import "errors"

var (
	// ErrTableNotFound is returned when an operation references a table that is not in the graph
	ErrTableNotFound = errors.New("table not found")
	// ErrNoPath is returned when two tables are in different connected components
	ErrNoPath = errors.New("no join path between tables")
)
