package storage

import (
	"context"
	"io"
)

// Uploader stores an uploaded file and returns the object key it was saved under.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}
