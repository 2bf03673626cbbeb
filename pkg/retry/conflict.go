package retry

import "context"

// OnConflict is the entity-level tier. It runs op and, if op fails with an
// error isConflict accepts, calls reload and runs op exactly once more. A
// second failure is returned as is.
func OnConflict(ctx context.Context, isConflict func(error) bool, op, reload func(context.Context) error) error {
	err := op(ctx)
	if err == nil || !isConflict(err) {
		return err
	}
	if err := reload(ctx); err != nil {
		return err
	}
	return op(ctx)
}
