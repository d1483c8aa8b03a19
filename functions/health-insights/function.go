package healthinsights

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	shared "github.com/vitalsync/server/pkg"
	"github.com/vitalsync/server/pkg/ai"
	"github.com/vitalsync/server/pkg/apierrors"
	"github.com/vitalsync/server/pkg/bootstrap"
	"github.com/vitalsync/server/pkg/framework"
	"github.com/vitalsync/server/pkg/syncer"
)

// insightWindowDays is how many recent daily records feed the model.
const insightWindowDays = 7

const systemInstruction = `You are a health data analyst. Given a week of daily wellness
metrics (steps, heart rate, sleep, stress, body composition, HRV, SpO2,
respiration, training readiness), respond with a single JSON object:
{"summary": string, "highlights": [string], "suggestions": [string]}.
Base every statement only on the provided data. Respond with JSON only.`

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	functions.HTTP("HealthInsights", HealthInsights)
}

func initService(ctx context.Context) (*bootstrap.Service, error) {
	svcOnce.Do(func() {
		svc, svcErr = bootstrap.NewService(ctx)
	})
	return svc, svcErr
}

type insightsResponse struct {
	Status  string         `json:"status"`
	Insight map[string]any `json:"insight"`
}

// HealthInsights is the HTTP entry point.
func HealthInsights(w http.ResponseWriter, r *http.Request) {
	svc, err := initService(r.Context())
	if err != nil {
		slog.Error("Service init failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	framework.WrapHTTP("health-insights", svc, insightsHandler)(w, r)
}

// insightsHandler summarizes the caller's recent week of daily metrics
// through Gemini and stores the parsed insight document.
func insightsHandler(ctx context.Context, r *http.Request, fwCtx *framework.Context) (interface{}, error) {
	svc := fwCtx.Service
	if svc.Config.GeminiAPIKey == "" {
		return nil, fmt.Errorf("insights unavailable: GEMINI_API_KEY not configured")
	}

	recent, err := recentDailies(ctx, svc.DB, fwCtx.UserID)
	if err != nil {
		return nil, fmt.Errorf("load recent dailies: %w", err)
	}
	if len(recent) == 0 {
		return nil, fmt.Errorf("%w: no synced data to analyze", apierrors.ErrNotConnected)
	}

	prompt, err := json.Marshal(recent)
	if err != nil {
		return nil, fmt.Errorf("encode context: %w", err)
	}

	insight, err := ai.NewClient(svc.Config.GeminiAPIKey).GenerateJSON(ctx, systemInstruction, string(prompt))
	if err != nil {
		return nil, err
	}

	today := time.Now().UTC().Format(syncer.DateLayout)
	path := fmt.Sprintf("%s/%s/%s/%s", shared.CollectionUsers, fwCtx.UserID, shared.CollectionInsights, today)
	batch := svc.DB.NewBatch()
	if err := batch.Set(ctx, path, map[string]any{
		"insight":     insight,
		"windowDays":  insightWindowDays,
		"generatedAt": shared.ServerTimestamp,
	}); err != nil {
		return nil, fmt.Errorf("stage insight: %w", err)
	}
	if err := batch.Flush(ctx); err != nil {
		return nil, fmt.Errorf("store insight: %w", err)
	}

	return insightsResponse{Status: "ok", Insight: insight}, nil
}

// recentDailies returns the last week of daily records ordered by date.
// Document IDs are ISO dates, so the window filter is a string compare.
func recentDailies(ctx context.Context, db shared.Database, userID string) ([]map[string]any, error) {
	path := fmt.Sprintf("%s/%s/%s", shared.CollectionUsers, userID, shared.CollectionDailies)
	docs, err := db.ReadCollection(ctx, path)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -insightWindowDays).Format(syncer.DateLayout)
	var dates []string
	for date := range docs {
		if date >= cutoff {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)

	out := make([]map[string]any, 0, len(dates))
	for _, date := range dates {
		out = append(out, docs[date])
	}
	return out, nil
}
