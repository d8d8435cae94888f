package cache

import (
	"context"
)

// KV is a durable key-value backend for collection snapshots. Get reports
// whether the key exists; a missing key is not an error.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

type NoopKV struct{}

func (NoopKV) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoopKV) Set(_ context.Context, _ string, _ []byte) error {
	return nil
}
