package ports

import (
	"context"

	"pkg-exporter/internal/types"
)

// StorePort is the read-only query surface over the build system's
// persistence layer. The exporter never writes through it.
type StorePort interface {
	// Platforms returns non-reference platforms with their repositories
	// and sign keys loaded. An empty name set selects all of them.
	Platforms(ctx context.Context, names []string) ([]types.Platform, error)
	Repositories(ctx context.Context, ids []int64) ([]types.Repository, error)
	Release(ctx context.Context, id int64) (types.Release, error)
	Distribution(ctx context.Context, name string) (types.Distribution, error)
	SignKeys(ctx context.Context) ([]types.SignKey, error)
}
