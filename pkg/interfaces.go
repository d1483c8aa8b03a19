package shared

import (
	"context"
	"fmt"

	"github.com/vitalsync/server/pkg/types"
)

// --- Persistence Interfaces ---

// Sentinel values translated by the Firestore adapter at write time.
// ServerTimestamp becomes the store-assigned commit time; DeleteField
// removes the named field from the document.
var (
	ServerTimestamp any = serverTimestampSentinel{}
	DeleteField     any = deleteFieldSentinel{}
)

type serverTimestampSentinel struct{}
type deleteFieldSentinel struct{}

// Batch stages merge writes and commits them in size-bounded chunks.
// Set may flush automatically when the pending batch reaches the
// provider's operation ceiling; Flush must be called at the end of any
// write sequence.
type Batch interface {
	Set(ctx context.Context, path string, fields map[string]any) error
	Flush(ctx context.Context) error
}

// BatchWrite is one staged merge write, surfaced on commit failure so
// callers can retry the chunk document by document.
type BatchWrite struct {
	Path   string
	Fields map[string]any
}

// CommitError reports a rejected chunk commit. Set returns it when an
// auto-flush commit fails and Flush when the terminal commit fails.
// Distinct from a staging rejection: none of the attached writes reached
// the store.
type CommitError struct {
	Writes []BatchWrite
	Err    error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("batch commit of %d writes: %v", len(e.Writes), e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

type Database interface {
	// Garmin connection state, stored at users/{uid}/settings/garmin
	GetGarminConfig(ctx context.Context, userID string) (*types.GarminConfig, error)
	UpdateGarminConfig(ctx context.Context, userID string, fields map[string]any) error
	ListConnectedUsers(ctx context.Context) ([]string, error)

	// StreamActivities pages through users/{uid}/activities in document-ID
	// order, pageSize at a time, invoking fn for each document.
	StreamActivities(ctx context.Context, userID string, pageSize int, fn func(id string, data map[string]any) error) error

	// ReadCollection returns every document of a collection path keyed by ID.
	ReadCollection(ctx context.Context, path string) (map[string]map[string]any, error)

	// DeleteCollection removes all documents under path, batchSize at a time.
	DeleteCollection(ctx context.Context, path string, batchSize int) error

	// Execution audit trail
	SetExecution(ctx context.Context, record *types.ExecutionRecord) error
	UpdateExecution(ctx context.Context, id string, fields map[string]any) error
	AddAuditEvent(ctx context.Context, action string) error

	// NewBatch returns a merge-write batcher bound to this store.
	NewBatch() Batch
}

// --- Messaging Interfaces ---

type Publisher interface {
	Publish(ctx context.Context, topicID string, data []byte) (string, error)
}

// --- Storage Interfaces ---

type BlobStore interface {
	Write(ctx context.Context, bucket, object string, data []byte) error
	Read(ctx context.Context, bucket, object string) ([]byte, error)
}

// --- Notification Interfaces ---

type Notifier interface {
	SendPushNotification(ctx context.Context, userID, title, body string, data map[string]string) error
}
