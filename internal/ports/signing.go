package ports

import "context"

// SignServicePort submits a metadata blob to the remote signing service
// and returns the detached signature content.
type SignServicePort interface {
	Sign(ctx context.Context, content []byte, keyID string) ([]byte, error)
}
