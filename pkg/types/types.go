// Package types holds the persisted document shapes for vitalsync.
// Payload fields pulled from the wearable provider are schema-free maps
// that have already passed through the sanitizer; only the envelope
// around them is typed.
package types

import "time"

// Backfill lifecycle states stored on GarminConfig.
const (
	BackfillPending  = "pending"
	BackfillSyncing  = "syncing"
	BackfillComplete = "complete"
)

// Sync origin markers stamped on every record write.
const (
	SourcePull     = "garmin_pull"
	SourceBackfill = "garmin_backfill"
)

// GarminConfig is the per-user connection document at
// users/{uid}/settings/garmin. Connected == true implies
// EncryptedSession is present and decryptable with the current key.
type GarminConfig struct {
	Connected        bool       `firestore:"connected"`
	EncryptedSession string     `firestore:"garthSession,omitempty"`
	EncryptedEmail   string     `firestore:"garminEmail,omitempty"`
	DisplayName      string     `firestore:"displayName,omitempty"`
	BackfillStatus   string     `firestore:"backfillStatus,omitempty"`
	BackfillProgress int        `firestore:"backfillProgress"`
	ConnectedAt      *time.Time `firestore:"connectedAt,omitempty"`
	DisconnectedAt   *time.Time `firestore:"disconnectedAt,omitempty"`
	LastSyncAt       *time.Time `firestore:"lastSyncAt,omitempty"`
}

// PeriodTotals is one aggregation bucket: either a whole period or a
// single activity type within it.
type PeriodTotals struct {
	Count           int     `firestore:"count" json:"count"`
	DurationSeconds float64 `firestore:"duration" json:"duration"`
	DistanceMeters  float64 `firestore:"distance" json:"distance"`
	Calories        float64 `firestore:"calories" json:"calories"`
}

// ActivityStats is one rollup document at
// users/{uid}/activityStats/{periodType}_{periodKey}. Fully derived from
// the activity log; overwritten wholesale on each aggregation run.
type ActivityStats struct {
	PeriodType           string                  `firestore:"periodType" json:"periodType"` // week | month | year
	PeriodStart          string                  `firestore:"periodStart" json:"periodStart"`
	PeriodEnd            string                  `firestore:"periodEnd" json:"periodEnd"`
	ActivityCount        int                     `firestore:"activityCount" json:"activityCount"`
	TotalDurationSeconds float64                 `firestore:"totalDurationSeconds" json:"totalDurationSeconds"`
	TotalDistanceMeters  float64                 `firestore:"totalDistanceMeters" json:"totalDistanceMeters"`
	TotalCalories        float64                 `firestore:"totalCalories" json:"totalCalories"`
	ByType               map[string]PeriodTotals `firestore:"byType" json:"byType"`
}

// ExecutionRecord is the audit entry written for each function run.
type ExecutionRecord struct {
	ExecutionID string     `firestore:"executionId"`
	Service     string     `firestore:"service"`
	UserID      string     `firestore:"userId,omitempty"`
	TriggerType string     `firestore:"triggerType"`
	Status      string     `firestore:"status"`
	Error       string     `firestore:"error,omitempty"`
	StartedAt   time.Time  `firestore:"startedAt"`
	FinishedAt  *time.Time `firestore:"finishedAt,omitempty"`
}

// Execution statuses.
const (
	StatusStarted = "STARTED"
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)
