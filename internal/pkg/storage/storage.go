package storage

import (
	"context"
	"io"
)

// ObjectStore is the minimal surface the ledger archiver needs from an
// S3-compatible bucket: write a batch, check whether it is already there.
type ObjectStore interface {
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
}
