package localdb

import (
	"context"
	"fmt"
	"time"
)

// OpenWithRetry opens the cache file at path, retrying a handful of times
// with linear backoff if the file is transiently locked by another
// process start racing this one. Adapted from the teacher's per-cluster
// OpenManager retry loop, collapsed to a single global cache file since
// this engine has no cluster/tenant partitioning of its local store.
func OpenWithRetry(ctx context.Context, path string) (*DB, error) {
	const attempts = 5
	var (
		db  *DB
		err error
	)
	for i := 0; i < attempts; i++ {
		db, err = Open(path)
		if err == nil {
			return db, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(200*(i+1)) * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("open cache db %q after %d attempts: %w", path, attempts, err)
}
