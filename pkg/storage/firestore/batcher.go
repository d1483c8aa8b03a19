package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	shared "github.com/vitalsync/server/pkg"
)

// Batcher accumulates merge writes and commits them in chunks below the
// store's 500-operation transactional ceiling. A full sync over many
// days may commit several partial batches; that is intentional — every
// write is a merge, so partial progress is safe to resume.
type Batcher struct {
	fs     *firestore.Client
	batch  *firestore.WriteBatch
	staged []shared.BatchWrite
	limit  int
}

func NewBatcher(fs *firestore.Client) *Batcher {
	return &Batcher{fs: fs, limit: shared.MaxBatchWrites}
}

// Set stages a merge write of fields at the given document path,
// auto-flushing when the pending batch reaches the ceiling. Sentinel
// values from the shared package are translated to their SDK forms.
// A staging-time error concerns only this write; a *shared.CommitError
// means an auto-flushed chunk failed wholesale.
func (b *Batcher) Set(ctx context.Context, path string, fields map[string]any) error {
	ref := b.fs.Doc(path)
	if ref == nil {
		return fmt.Errorf("invalid document path %q", path)
	}
	if b.batch == nil {
		b.batch = b.fs.Batch()
	}
	b.batch.Set(ref, translateSentinels(fields), firestore.MergeAll)
	b.staged = append(b.staged, shared.BatchWrite{Path: path, Fields: fields})

	if len(b.staged) >= b.limit {
		return b.Flush(ctx)
	}
	return nil
}

// Flush commits any staged writes. Safe to call with an empty batch.
// On failure the whole chunk is reported back as a *shared.CommitError
// so the caller can recover it write by write.
func (b *Batcher) Flush(ctx context.Context) error {
	if b.batch == nil || len(b.staged) == 0 {
		return nil
	}
	chunk := b.staged
	_, err := b.batch.Commit(ctx)
	b.batch = nil
	b.staged = nil
	if err != nil {
		return &shared.CommitError{Writes: chunk, Err: err}
	}
	return nil
}

// translateSentinels maps the store-agnostic sentinels onto the SDK's
// own, walking nested maps so record envelopes can carry them anywhere.
func translateSentinels(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch x := v.(type) {
		case map[string]any:
			out[k] = translateSentinels(x)
		default:
			if v == shared.ServerTimestamp {
				out[k] = firestore.ServerTimestamp
			} else if v == shared.DeleteField {
				out[k] = firestore.Delete
			} else {
				out[k] = v
			}
		}
	}
	return out
}
