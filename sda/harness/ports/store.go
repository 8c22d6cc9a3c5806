package harnessports

import (
	"context"
)

// CheckpointStore persists opaque thread checkpoints beyond process lifetime.
type CheckpointStore interface {
	Save(ctx context.Context, threadID string, blob []byte) error
	Load(ctx context.Context, threadID string) (blob []byte, ok bool, err error)
	Delete(ctx context.Context, threadID string) error
}
