// Package mocks provides hand-rolled test doubles for the shared
// interfaces. Behaviour is overridden per test via function fields;
// unset fields fall back to benign defaults.
package mocks

import (
	"context"
	"fmt"
	"sync"

	shared "github.com/vitalsync/server/pkg"
	"github.com/vitalsync/server/pkg/garmin"
	"github.com/vitalsync/server/pkg/types"
)

// --- Mock Batch ---

// StagedWrite is one recorded Set call.
type StagedWrite struct {
	Path   string
	Fields map[string]any
}

// MockBatch mirrors the real batcher's two-phase behaviour: Set stages
// a write (auto-committing when Limit is reached), Flush commits the
// rest. Writes holds only committed writes.
//
// Failure knobs: FailPaths rejects the first Set against a path at
// staging time; CommitErrs fails successive commit attempts wholesale
// (returning a *shared.CommitError carrying the chunk); CommitFailures
// fails that many commit attempts involving a given path, modelling a
// store-side payload rejection that clears once the payload is
// degraded.
type MockBatch struct {
	mu             sync.Mutex
	Pending        []StagedWrite
	Writes         []StagedWrite
	FailPaths      map[string]bool
	CommitErrs     []error
	CommitFailures map[string]int
	Limit          int
	FlushCount     int
}

func (m *MockBatch) Set(ctx context.Context, path string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPaths[path] {
		delete(m.FailPaths, path)
		return fmt.Errorf("staged write rejected for %s", path)
	}
	m.Pending = append(m.Pending, StagedWrite{Path: path, Fields: fields})
	if m.Limit > 0 && len(m.Pending) >= m.Limit {
		return m.commitLocked()
	}
	return nil
}

func (m *MockBatch) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FlushCount++
	if len(m.Pending) == 0 {
		return nil
	}
	return m.commitLocked()
}

func (m *MockBatch) commitLocked() error {
	chunk := m.Pending
	m.Pending = nil

	var cause error
	if len(m.CommitErrs) > 0 {
		cause = m.CommitErrs[0]
		m.CommitErrs = m.CommitErrs[1:]
	}
	if cause == nil {
		for _, w := range chunk {
			if m.CommitFailures[w.Path] > 0 {
				m.CommitFailures[w.Path]--
				cause = fmt.Errorf("commit rejected for %s", w.Path)
				break
			}
		}
	}
	if cause != nil {
		writes := make([]shared.BatchWrite, len(chunk))
		for i, w := range chunk {
			writes[i] = shared.BatchWrite{Path: w.Path, Fields: w.Fields}
		}
		return &shared.CommitError{Writes: writes, Err: cause}
	}

	m.Writes = append(m.Writes, chunk...)
	return nil
}

// WritesFor returns the recorded writes whose path matches exactly.
func (m *MockBatch) WritesFor(path string) []StagedWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StagedWrite
	for _, w := range m.Writes {
		if w.Path == path {
			out = append(out, w)
		}
	}
	return out
}

// --- Mock Database ---

type MockDatabase struct {
	GetGarminConfigFunc    func(ctx context.Context, userID string) (*types.GarminConfig, error)
	UpdateGarminConfigFunc func(ctx context.Context, userID string, fields map[string]any) error
	ListConnectedUsersFunc func(ctx context.Context) ([]string, error)
	StreamActivitiesFunc   func(ctx context.Context, userID string, pageSize int, fn func(id string, data map[string]any) error) error
	ReadCollectionFunc     func(ctx context.Context, path string) (map[string]map[string]any, error)
	DeleteCollectionFunc   func(ctx context.Context, path string, batchSize int) error
	SetExecutionFunc       func(ctx context.Context, record *types.ExecutionRecord) error
	UpdateExecutionFunc    func(ctx context.Context, id string, fields map[string]any) error
	AddAuditEventFunc      func(ctx context.Context, action string) error
	NewBatchFunc           func() shared.Batch

	// Batch is returned by NewBatch when NewBatchFunc is unset, so tests
	// can inspect everything the code under test staged.
	Batch *MockBatch

	// ConfigUpdates records every UpdateGarminConfig call when
	// UpdateGarminConfigFunc is unset.
	mu            sync.Mutex
	ConfigUpdates []map[string]any
}

func (m *MockDatabase) GetGarminConfig(ctx context.Context, userID string) (*types.GarminConfig, error) {
	if m.GetGarminConfigFunc != nil {
		return m.GetGarminConfigFunc(ctx, userID)
	}
	return nil, fmt.Errorf("garmin config not found for %s", userID)
}

func (m *MockDatabase) UpdateGarminConfig(ctx context.Context, userID string, fields map[string]any) error {
	if m.UpdateGarminConfigFunc != nil {
		return m.UpdateGarminConfigFunc(ctx, userID, fields)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConfigUpdates = append(m.ConfigUpdates, fields)
	return nil
}

func (m *MockDatabase) ListConnectedUsers(ctx context.Context) ([]string, error) {
	if m.ListConnectedUsersFunc != nil {
		return m.ListConnectedUsersFunc(ctx)
	}
	return nil, nil
}

func (m *MockDatabase) StreamActivities(ctx context.Context, userID string, pageSize int, fn func(id string, data map[string]any) error) error {
	if m.StreamActivitiesFunc != nil {
		return m.StreamActivitiesFunc(ctx, userID, pageSize, fn)
	}
	return nil
}

func (m *MockDatabase) ReadCollection(ctx context.Context, path string) (map[string]map[string]any, error) {
	if m.ReadCollectionFunc != nil {
		return m.ReadCollectionFunc(ctx, path)
	}
	return nil, nil
}

func (m *MockDatabase) DeleteCollection(ctx context.Context, path string, batchSize int) error {
	if m.DeleteCollectionFunc != nil {
		return m.DeleteCollectionFunc(ctx, path, batchSize)
	}
	return nil
}

func (m *MockDatabase) SetExecution(ctx context.Context, record *types.ExecutionRecord) error {
	if m.SetExecutionFunc != nil {
		return m.SetExecutionFunc(ctx, record)
	}
	return nil
}

func (m *MockDatabase) UpdateExecution(ctx context.Context, id string, fields map[string]any) error {
	if m.UpdateExecutionFunc != nil {
		return m.UpdateExecutionFunc(ctx, id, fields)
	}
	return nil
}

func (m *MockDatabase) AddAuditEvent(ctx context.Context, action string) error {
	if m.AddAuditEventFunc != nil {
		return m.AddAuditEventFunc(ctx, action)
	}
	return nil
}

func (m *MockDatabase) NewBatch() shared.Batch {
	if m.NewBatchFunc != nil {
		return m.NewBatchFunc()
	}
	if m.Batch == nil {
		m.Batch = &MockBatch{}
	}
	return m.Batch
}

// --- Mock Provider ---

// MockProvider stands in for the Garmin client. Metric getters default
// to a one-field payload so staged writes are observable without setup.
type MockProvider struct {
	GetStatsFunc             func(ctx context.Context, date string) (map[string]any, error)
	GetHeartRatesFunc        func(ctx context.Context, date string) (map[string]any, error)
	GetSleepFunc             func(ctx context.Context, date string) (map[string]any, error)
	GetStressFunc            func(ctx context.Context, date string) (map[string]any, error)
	GetBodyCompositionFunc   func(ctx context.Context, date string) (map[string]any, error)
	GetHRVFunc               func(ctx context.Context, date string) (map[string]any, error)
	GetSpO2Func              func(ctx context.Context, date string) (map[string]any, error)
	GetRespirationFunc       func(ctx context.Context, date string) (map[string]any, error)
	GetTrainingReadinessFunc func(ctx context.Context, date string) (map[string]any, error)
	ListActivitiesFunc       func(ctx context.Context, start, limit int) ([]map[string]any, error)
	FullNameFunc             func(ctx context.Context) (string, error)
	SocialProfileFunc        func(ctx context.Context) (map[string]any, error)

	DisplayName string
	Sess        *garmin.Session
}

func defaultMetric(name, date string) (map[string]any, error) {
	return map[string]any{"calendarDate": date, "metric": name}, nil
}

func (m *MockProvider) GetStats(ctx context.Context, date string) (map[string]any, error) {
	if m.GetStatsFunc != nil {
		return m.GetStatsFunc(ctx, date)
	}
	return defaultMetric("stats", date)
}

func (m *MockProvider) GetHeartRates(ctx context.Context, date string) (map[string]any, error) {
	if m.GetHeartRatesFunc != nil {
		return m.GetHeartRatesFunc(ctx, date)
	}
	return defaultMetric("heartRates", date)
}

func (m *MockProvider) GetSleep(ctx context.Context, date string) (map[string]any, error) {
	if m.GetSleepFunc != nil {
		return m.GetSleepFunc(ctx, date)
	}
	return defaultMetric("sleep", date)
}

func (m *MockProvider) GetStress(ctx context.Context, date string) (map[string]any, error) {
	if m.GetStressFunc != nil {
		return m.GetStressFunc(ctx, date)
	}
	return defaultMetric("stress", date)
}

func (m *MockProvider) GetBodyComposition(ctx context.Context, date string) (map[string]any, error) {
	if m.GetBodyCompositionFunc != nil {
		return m.GetBodyCompositionFunc(ctx, date)
	}
	return defaultMetric("bodyComp", date)
}

func (m *MockProvider) GetHRV(ctx context.Context, date string) (map[string]any, error) {
	if m.GetHRVFunc != nil {
		return m.GetHRVFunc(ctx, date)
	}
	return defaultMetric("hrv", date)
}

func (m *MockProvider) GetSpO2(ctx context.Context, date string) (map[string]any, error) {
	if m.GetSpO2Func != nil {
		return m.GetSpO2Func(ctx, date)
	}
	return defaultMetric("spo2", date)
}

func (m *MockProvider) GetRespiration(ctx context.Context, date string) (map[string]any, error) {
	if m.GetRespirationFunc != nil {
		return m.GetRespirationFunc(ctx, date)
	}
	return defaultMetric("respiration", date)
}

func (m *MockProvider) GetTrainingReadiness(ctx context.Context, date string) (map[string]any, error) {
	if m.GetTrainingReadinessFunc != nil {
		return m.GetTrainingReadinessFunc(ctx, date)
	}
	return defaultMetric("trainingReadiness", date)
}

func (m *MockProvider) ListActivities(ctx context.Context, start, limit int) ([]map[string]any, error) {
	if m.ListActivitiesFunc != nil {
		return m.ListActivitiesFunc(ctx, start, limit)
	}
	return nil, nil
}

func (m *MockProvider) FullName(ctx context.Context) (string, error) {
	if m.FullNameFunc != nil {
		return m.FullNameFunc(ctx)
	}
	return "", fmt.Errorf("profile unavailable")
}

func (m *MockProvider) SocialProfile(ctx context.Context) (map[string]any, error) {
	if m.SocialProfileFunc != nil {
		return m.SocialProfileFunc(ctx)
	}
	return nil, fmt.Errorf("social profile unavailable")
}

func (m *MockProvider) SetDisplayName(name string) { m.DisplayName = name }

func (m *MockProvider) Session() *garmin.Session {
	if m.Sess != nil {
		return m.Sess
	}
	return &garmin.Session{OAuth1Token: "t1", OAuth1Secret: "s1", DisplayName: m.DisplayName}
}

// --- Mock Publisher ---

type MockPublisher struct {
	PublishFunc func(ctx context.Context, topicID string, data []byte) (string, error)

	mu        sync.Mutex
	Published []struct {
		Topic string
		Data  []byte
	}
}

func (m *MockPublisher) Publish(ctx context.Context, topicID string, data []byte) (string, error) {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topicID, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, struct {
		Topic string
		Data  []byte
	}{topicID, data})
	return "msg-id", nil
}

// --- Mock Blob Store ---

type MockBlobStore struct {
	WriteFunc func(ctx context.Context, bucket, object string, data []byte) error
	ReadFunc  func(ctx context.Context, bucket, object string) ([]byte, error)

	mu      sync.Mutex
	Objects map[string][]byte
}

func (m *MockBlobStore) Write(ctx context.Context, bucket, object string, data []byte) error {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, bucket, object, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Objects == nil {
		m.Objects = map[string][]byte{}
	}
	m.Objects[bucket+"/"+object] = data
	return nil
}

func (m *MockBlobStore) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, bucket, object)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.Objects[bucket+"/"+object]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("object not found: %s/%s", bucket, object)
}

// --- Mock Notifier ---

type MockNotifier struct {
	SendPushNotificationFunc func(ctx context.Context, userID, title, body string, data map[string]string) error

	mu   sync.Mutex
	Sent []string
}

func (m *MockNotifier) SendPushNotification(ctx context.Context, userID, title, body string, data map[string]string) error {
	if m.SendPushNotificationFunc != nil {
		return m.SendPushNotificationFunc(ctx, userID, title, body, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, userID)
	return nil
}
