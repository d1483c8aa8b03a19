package shared

const (
	ProjectID = "vitalsync-project" // Can be overridden by env var in main if needed

	TopicScheduledSync     = "topic-garmin-scheduled-sync"
	TopicSyncCompleted     = "topic-garmin-sync-completed"
	TopicBackfillCompleted = "topic-garmin-backfill-completed"

	CollectionUsers         = "users"
	CollectionSettings      = "settings"
	CollectionDailies       = "garminDailies"
	CollectionActivities    = "activities"
	CollectionActivityStats = "activityStats"
	CollectionInsights      = "insights"
	CollectionExecutions    = "executions"
	CollectionAuditLog      = "auditLog"

	// Firestore allows 500 operations per batched write; stay under it.
	MaxBatchWrites = 450
)
