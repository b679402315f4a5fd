package catalog

import (
	"context"
	"time"
)

// EditFunc derives the next version of a record from the current one
type EditFunc func(cur *View) (*View, error)

// Store persists view records. Lookups return (nil, nil) on a miss.
type Store interface {
	// Insert assigns v.ID and writes the record, failing with ErrDuplicateView if the name is taken.
	// The name is added to the used-by set of every view in v.DependsOnViews.
	Insert(ctx context.Context, v *View) error
	Get(ctx context.Context, name string) (*View, error)
	GetByID(ctx context.Context, id int64) (*View, error)
	List(ctx context.Context, filter Filter) ([]*View, error)
	// Modify passes the current record to edit and overwrites its editable fields
	// with the result, keeping secondary indexes and used-by sets in step. edit
	// may run more than once when other writers race it. With lineage set the
	// write is serialized against every other dependency change. Returning a nil
	// view from edit leaves the record untouched.
	Modify(ctx context.Context, name string, lineage bool, edit EditFunc) error
	// IncrementUsage bumps the usage counter and promotes a DRAFT record once the
	// count reaches threshold, atomically
	IncrementUsage(ctx context.Context, name string, at time.Time, threshold int64) (count int64, promoted bool, err error)
	// Transition moves a record to status to. When from is set the record must
	// currently be in that state. It reports whether the record changed.
	Transition(ctx context.Context, name string, from, to Status, at time.Time) (bool, error)
}
