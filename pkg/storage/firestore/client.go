package firestore

import (
	"cloud.google.com/go/firestore"

	shared "github.com/vitalsync/server/pkg"
	"github.com/vitalsync/server/pkg/types"
)

type Client struct {
	fs *firestore.Client
}

func NewClient(client *firestore.Client) *Client {
	return &Client{fs: client}
}

func (c *Client) Close() error {
	return c.fs.Close()
}

// Raw exposes the underlying SDK client for path-based operations.
func (c *Client) Raw() *firestore.Client {
	return c.fs
}

// GarminConfig is the per-user connection document:
// users/{uid}/settings/garmin
func (c *Client) GarminConfig(userID string) *DocumentRef[types.GarminConfig] {
	return &DocumentRef[types.GarminConfig]{
		Ref: c.fs.Collection(shared.CollectionUsers).Doc(userID).
			Collection(shared.CollectionSettings).Doc("garmin"),
	}
}

// ConnectedSettings queries all settings/garmin documents with
// connected == true across users.
func (c *Client) ConnectedSettings() firestore.Query {
	return c.fs.CollectionGroup(shared.CollectionSettings).
		Where("connected", "==", true)
}

// Dailies holds one schema-free document per calendar date:
// users/{uid}/garminDailies/{YYYY-MM-DD}
func (c *Client) Dailies(userID string) *firestore.CollectionRef {
	return c.fs.Collection(shared.CollectionUsers).Doc(userID).
		Collection(shared.CollectionDailies)
}

// Activities holds one sanitized payload per external activity ID:
// users/{uid}/activities/{activityId}
func (c *Client) Activities(userID string) *firestore.CollectionRef {
	return c.fs.Collection(shared.CollectionUsers).Doc(userID).
		Collection(shared.CollectionActivities)
}

// ActivityStats holds derived rollups keyed {periodType}_{periodKey}:
// users/{uid}/activityStats/{key}
func (c *Client) ActivityStats(userID string) *firestore.CollectionRef {
	return c.fs.Collection(shared.CollectionUsers).Doc(userID).
		Collection(shared.CollectionActivityStats)
}

// Executions is the root-level function audit trail.
func (c *Client) Executions() *Collection[types.ExecutionRecord] {
	return &Collection[types.ExecutionRecord]{
		Ref: c.fs.Collection(shared.CollectionExecutions),
	}
}
