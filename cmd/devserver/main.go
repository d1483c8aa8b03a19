// Command devserver mounts every HTTP function on one local router so
// the callable surface can be exercised without the functions framework.
// Requires the same environment as production functions (Firestore
// credentials, GARMIN_ENCRYPTION_KEY, ...).
package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	activitystats "github.com/vitalsync/server/functions/activity-stats"
	garminbackfill "github.com/vitalsync/server/functions/garmin-backfill"
	garmindisconnect "github.com/vitalsync/server/functions/garmin-disconnect"
	garminlogin "github.com/vitalsync/server/functions/garmin-login"
	garminsync "github.com/vitalsync/server/functions/garmin-sync"
	healthinsights "github.com/vitalsync/server/functions/health-insights"
	userdata "github.com/vitalsync/server/functions/user-data"
	"github.com/vitalsync/server/pkg/bootstrap"
)

func main() {
	bootstrap.InitLogger()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Post("/garmin-login", garminlogin.GarminLogin)
	r.Post("/garmin-disconnect", garmindisconnect.GarminDisconnect)
	r.Post("/garmin-sync", garminsync.GarminSync)
	r.Post("/garmin-backfill", garminbackfill.GarminBackfill)
	r.Post("/activity-stats", activitystats.ActivityStats)
	r.Post("/health-insights", healthinsights.HealthInsights)
	r.Post("/user-data", userdata.UserData)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	slog.Info("Dev server listening", "port", port)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		slog.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
