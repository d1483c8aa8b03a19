package database

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	shared "github.com/vitalsync/server/pkg"
	storage "github.com/vitalsync/server/pkg/storage/firestore"
	"github.com/vitalsync/server/pkg/types"
)

// FirestoreAdapter provides database operations using Firestore.
// It wraps our typed storage client.
type FirestoreAdapter struct {
	Client  *firestore.Client
	storage *storage.Client
}

func NewFirestoreAdapter(client *firestore.Client) *FirestoreAdapter {
	return &FirestoreAdapter{
		Client:  client,
		storage: storage.NewClient(client),
	}
}

func (a *FirestoreAdapter) GetGarminConfig(ctx context.Context, userID string) (*types.GarminConfig, error) {
	cfg, err := a.storage.GarminConfig(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		// Never connected: no settings document exists yet.
		return &types.GarminConfig{}, nil
	}
	return cfg, err
}

func (a *FirestoreAdapter) UpdateGarminConfig(ctx context.Context, userID string, fields map[string]any) error {
	return a.storage.GarminConfig(userID).Update(ctx, translate(fields))
}

// ListConnectedUsers returns the IDs of every user whose garmin settings
// document has connected == true.
func (a *FirestoreAdapter) ListConnectedUsers(ctx context.Context) ([]string, error) {
	var ids []string
	it := a.storage.ConnectedSettings().Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("stream connected settings: %w", err)
		}
		// settings/garmin sits two levels under the user document.
		if user := snap.Ref.Parent.Parent; user != nil {
			ids = append(ids, user.ID)
		}
	}
	return ids, nil
}

// StreamActivities pages through the activity log in document-ID order,
// pageSize at a time, so an unbounded log never loads at once.
func (a *FirestoreAdapter) StreamActivities(ctx context.Context, userID string, pageSize int, fn func(id string, data map[string]any) error) error {
	coll := a.storage.Activities(userID)
	var last *firestore.DocumentSnapshot
	for {
		q := coll.OrderBy(firestore.DocumentID, firestore.Asc).Limit(pageSize)
		if last != nil {
			q = q.StartAfter(last)
		}
		it := q.Documents(ctx)
		count := 0
		for {
			snap, err := it.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				it.Stop()
				return fmt.Errorf("stream activities: %w", err)
			}
			if err := fn(snap.Ref.ID, snap.Data()); err != nil {
				it.Stop()
				return err
			}
			last = snap
			count++
		}
		it.Stop()
		if count < pageSize {
			return nil
		}
	}
}

func (a *FirestoreAdapter) ReadCollection(ctx context.Context, path string) (map[string]map[string]any, error) {
	out := map[string]map[string]any{}
	it := a.Client.Collection(path).Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read collection %s: %w", path, err)
		}
		out[snap.Ref.ID] = snap.Data()
	}
	return out, nil
}

func (a *FirestoreAdapter) DeleteCollection(ctx context.Context, path string, batchSize int) error {
	coll := a.Client.Collection(path)
	for {
		it := coll.Limit(batchSize).Documents(ctx)
		batch := a.Client.Batch()
		count := 0
		for {
			snap, err := it.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				it.Stop()
				return fmt.Errorf("delete collection %s: %w", path, err)
			}
			batch.Delete(snap.Ref)
			count++
		}
		it.Stop()
		if count == 0 {
			return nil
		}
		if _, err := batch.Commit(ctx); err != nil {
			return fmt.Errorf("delete commit %s: %w", path, err)
		}
	}
}

func (a *FirestoreAdapter) SetExecution(ctx context.Context, record *types.ExecutionRecord) error {
	return a.storage.Executions().Doc(record.ExecutionID).Set(ctx, record)
}

func (a *FirestoreAdapter) UpdateExecution(ctx context.Context, id string, fields map[string]any) error {
	return a.storage.Executions().Doc(id).Update(ctx, translate(fields))
}

// AddAuditEvent records an anonymised audit entry.
func (a *FirestoreAdapter) AddAuditEvent(ctx context.Context, action string) error {
	_, _, err := a.Client.Collection(shared.CollectionAuditLog).Add(ctx, map[string]any{
		"action":    action,
		"timestamp": firestore.ServerTimestamp,
	})
	return err
}

func (a *FirestoreAdapter) NewBatch() shared.Batch {
	return storage.NewBatcher(a.Client)
}

// translate maps shared sentinels to SDK values for direct updates.
func translate(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch {
		case v == shared.ServerTimestamp:
			out[k] = firestore.ServerTimestamp
		case v == shared.DeleteField:
			out[k] = firestore.Delete
		default:
			if t, ok := v.(time.Time); ok {
				out[k] = t.UTC()
			} else {
				out[k] = v
			}
		}
	}
	return out
}
