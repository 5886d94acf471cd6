package integration__test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/eventhub/internal/domain/event"
	"github.com/geocoder89/eventhub/internal/notifications"
	"github.com/geocoder89/eventhub/internal/observability"
	"github.com/geocoder89/eventhub/internal/queue/worker"
	"github.com/geocoder89/eventhub/internal/repo/postgres"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// TestPublishPipeline_EndToEnd exercises the full event.publish job
// pipeline: the authenticated HTTP handler enqueues a job, the worker
// claims and executes it, and the event row ends up published.
func TestPublishPipeline_EndToEnd(t *testing.T) {
	router, pool, cfg := setupTestRouter(t)
	resetDB(t, pool)
	defer resetDB(t, pool)

	ev := seedEvent(t, pool, []event.Role{{ID: uuid.NewString(), Name: "Attendee", MaxParticipants: 5}})
	// seedEvent already publishes the event via EventsRepo.Create; flip it
	// back to unpublished so the publish pipeline has something to do.
	if _, err := pool.Exec(context.Background(), `UPDATE events SET publish = false WHERE id = $1`, ev.ID); err != nil {
		t.Fatalf("unpublish seeded event: %v", err)
	}

	_, token := seedParticipant(t, pool, cfg, "publisher@example.com")

	req := httptest.NewRequest(http.MethodPost, "/events/"+ev.ID+"/publish", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("publish got %d, want %d, body=%s", w.Code, http.StatusAccepted, w.Body.String())
	}

	prom := observability.NewProm(prometheus.NewRegistry())
	jobsRepo := postgres.NewJobsRepo(pool, prom)
	eventsRepo := postgres.NewEventsRepo(pool)

	wk := worker.New(worker.Config{
		PollInterval:  10 * time.Millisecond,
		WorkerID:      "test-worker",
		Concurrency:   1,
		ShutdownGrace: 1 * time.Second,
	}, jobsRepo, eventsRepo, notifications.NewLogNotifier())

	processed, err := wk.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if !processed {
		t.Fatalf("expected a job to be processed")
	}

	var published bool
	if err := pool.QueryRow(context.Background(),
		`SELECT publish FROM events WHERE id = $1`, ev.ID).Scan(&published); err != nil {
		t.Fatalf("select event: %v", err)
	}
	if !published {
		t.Fatalf("expected event.publish to be true")
	}

	// Re-running the job (e.g. a redelivery) is an idempotent no-op: the
	// job is already done, so a second ProcessOne finds nothing to claim.
	processedAgain, err := wk.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("ProcessOne(2): %v", err)
	}
	if processedAgain {
		t.Fatalf("expected no second job to claim")
	}
}
