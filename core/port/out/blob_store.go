package out

import "context"

// BlobStore is the abstract classifier-artifact/state blob contract (§4.C):
// get_bytes/put_bytes keyed by a versioned path
// (classifier/v<N>/pipeline.json, classifier/state.json).
type BlobStore interface {
	GetBytes(ctx context.Context, path string) ([]byte, error)
	PutBytes(ctx context.Context, path string, data []byte) error
}
