package repo

import (
	"context"
	"time"
)

// AttemptRepo counts failed logins per key inside a sliding window.
type AttemptRepo interface {
	Failures(ctx context.Context, key string) (int64, error)

	RecordFailure(ctx context.Context, key string, window time.Duration) (int64, error)

	Reset(ctx context.Context, key string) error
}
