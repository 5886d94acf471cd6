package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/eventhub/internal/cache"
	"github.com/geocoder89/eventhub/internal/domain/event"
	"github.com/geocoder89/eventhub/internal/http/handlers"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newUUID() string {
	return uuid.NewString()
}

// fakeEventsRepo is a fake implementation of handlers.EventsCreator.
type fakeEventsRepo struct {
	createFn func(ctx context.Context, e event.Event) (event.Event, error)
	getFn    func(ctx context.Context, id string) (event.Event, error)
	listFn   func(ctx context.Context, filters event.ListEventsFilter) ([]event.Event, int, error)
	deleteFn func(ctx context.Context, id string) error
}

func (f *fakeEventsRepo) Create(ctx context.Context, e event.Event) (event.Event, error) {
	if f.createFn != nil {
		return f.createFn(ctx, e)
	}
	return event.Event{}, nil
}

func (f *fakeEventsRepo) GetByID(ctx context.Context, id string) (event.Event, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return event.Event{}, nil
}

func (f *fakeEventsRepo) List(ctx context.Context, filters event.ListEventsFilter) ([]event.Event, int, error) {
	if f.listFn != nil {
		return f.listFn(ctx, filters)
	}
	return nil, 0, nil
}

func (f *fakeEventsRepo) Delete(ctx context.Context, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

func setupRouter(method, path string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Handle(method, path, h)
	return r
}

func validCreateEventBody(now time.Time) string {
	start := now.Add(24 * time.Hour)
	return `{
		"title": "Go Meetup",
		"description": "Monthly meetup",
		"type": "Workshop",
		"date": "` + start.Format("2006-01-02") + `",
		"time": "` + start.Format("15:04") + `",
		"endDate": "` + start.Format("2006-01-02") + `",
		"endTime": "` + start.Add(time.Hour).Format("15:04") + `",
		"format": "Online",
		"zoomLink": "https://zoom.example.com/go-meetup",
		"meetingId": "123",
		"passcode": "abc",
		"roles": [{"name": "Attendee", "maxParticipants": 50}]
	}`
}

func TestCreateEventHandler(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name           string
		body           string
		repoSetUp      func(*fakeEventsRepo)
		wantStatusCode int
	}{
		{
			name: "success",
			body: validCreateEventBody(now),
			repoSetUp: func(f *fakeEventsRepo) {
				f.createFn = func(ctx context.Context, e event.Event) (event.Event, error) {
					e.ID = newUUID()
					e.CreatedAt = now
					e.UpdatedAt = now
					return e, nil
				}
			},
			wantStatusCode: http.StatusCreated,
		},
		{
			name:      "validation_error",
			body:      `{"title": ""}`,
			repoSetUp: func(f *fakeEventsRepo) {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "repo_error",
			body: validCreateEventBody(now),
			repoSetUp: func(f *fakeEventsRepo) {
				f.createFn = func(ctx context.Context, e event.Event) (event.Event, error) {
					return event.Event{}, errors.New("db error")
				}
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeEventsRepo{}
			if tt.repoSetUp != nil {
				tt.repoSetUp(repo)
			}

			h := handlers.NewEventsHandler(repo)
			r := setupRouter(http.MethodPost, "/events", h.CreateEvent)

			req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}

func TestListEventsHandler(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name           string
		url            string
		repoSetup      func(*fakeEventsRepo)
		wantStatusCode int
		wantCount      int
	}{
		{
			name: "success",
			url:  "/events?limit=20",
			repoSetup: func(f *fakeEventsRepo) {
				f.listFn = func(ctx context.Context, filters event.ListEventsFilter) ([]event.Event, int, error) {
					if filters.Limit != 20 {
						return nil, 0, errors.New("limit not passed through")
					}
					return []event.Event{{ID: "id-1", Title: "Event 1", CreatedAt: now, UpdatedAt: now}}, 1, nil
				}
			},
			wantStatusCode: http.StatusOK,
			wantCount:      1,
		},
		{
			name: "search_query_passed_through",
			url:  "/events?limit=20&search=backend",
			repoSetup: func(f *fakeEventsRepo) {
				f.listFn = func(ctx context.Context, filters event.ListEventsFilter) ([]event.Event, int, error) {
					if filters.Search != "backend" {
						return nil, 0, errors.New("search not passed through")
					}
					return []event.Event{}, 0, nil
				}
			},
			wantStatusCode: http.StatusOK,
			wantCount:      0,
		},
		{
			name: "invalid_limit",
			url:  "/events?limit=0",
			repoSetup: func(f *fakeEventsRepo) {
				// repo should not be called
			},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "repo_error",
			url:  "/events?limit=20",
			repoSetup: func(f *fakeEventsRepo) {
				f.listFn = func(ctx context.Context, filters event.ListEventsFilter) ([]event.Event, int, error) {
					return nil, 0, errors.New("db error")
				}
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeEventsRepo{}
			if tt.repoSetup != nil {
				tt.repoSetup(repo)
			}

			h := handlers.NewEventsHandler(repo)
			r := setupRouter(http.MethodGet, "/events", h.ListEvents)

			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if tt.wantStatusCode == http.StatusOK {
				var resp struct {
					Events []event.Event `json:"events"`
				}
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatalf("failed to unmarshal response: %v", err)
				}
				if len(resp.Events) != tt.wantCount {
					t.Fatalf("got count %d, want %d", len(resp.Events), tt.wantCount)
				}
			}
		})
	}
}

func TestGetEventByIdHandler(t *testing.T) {
	now := time.Now().UTC()
	validID := newUUID()
	missingID := newUUID()

	tests := []struct {
		name           string
		url            string
		repoSetup      func(f *fakeEventsRepo)
		wantStatusCode int
	}{
		{
			name: "success",
			url:  "/events/" + validID,
			repoSetup: func(f *fakeEventsRepo) {
				f.getFn = func(ctx context.Context, id string) (event.Event, error) {
					return event.Event{ID: id, Title: "Event-1", CreatedAt: now.Add(-time.Hour), UpdatedAt: now}, nil
				}
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name: "not_found",
			url:  "/events/" + missingID,
			repoSetup: func(f *fakeEventsRepo) {
				f.getFn = func(ctx context.Context, id string) (event.Event, error) {
					return event.Event{}, event.ErrNotFound
				}
			},
			wantStatusCode: http.StatusNotFound,
		},
		{
			name: "invalid_id",
			url:  "/events/not-a-uuid",
			repoSetup: func(f *fakeEventsRepo) {
				// repo should not be called
			},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "repo_error",
			url:  "/events/" + validID,
			repoSetup: func(f *fakeEventsRepo) {
				f.getFn = func(ctx context.Context, id string) (event.Event, error) {
					return event.Event{}, errors.New("db error")
				}
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeEventsRepo{}
			if tt.repoSetup != nil {
				tt.repoSetup(repo)
			}

			h := handlers.NewEventsHandler(repo)
			r := setupRouter(http.MethodGet, "/events/:id", h.GetEventById)

			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}

func TestDeleteEventHandler(t *testing.T) {
	validID := newUUID()
	missingID := newUUID()

	tests := []struct {
		name           string
		url            string
		repoSetup      func(*fakeEventsRepo)
		wantStatusCode int
	}{
		{
			name: "success",
			url:  "/events/" + validID,
			repoSetup: func(f *fakeEventsRepo) {
				f.deleteFn = func(ctx context.Context, id string) error { return nil }
			},
			wantStatusCode: http.StatusNoContent,
		},
		{
			name: "not_found",
			url:  "/events/" + missingID,
			repoSetup: func(f *fakeEventsRepo) {
				f.deleteFn = func(ctx context.Context, id string) error { return event.ErrNotFound }
			},
			wantStatusCode: http.StatusNotFound,
		},
		{
			name: "repo_error",
			url:  "/events/" + validID,
			repoSetup: func(f *fakeEventsRepo) {
				f.deleteFn = func(ctx context.Context, id string) error { return errors.New("db error") }
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeEventsRepo{}
			if tt.repoSetup != nil {
				tt.repoSetup(repo)
			}

			h := handlers.NewEventsHandler(repo)
			r := setupRouter(http.MethodDelete, "/events/:id", h.DeleteEvent)

			req := httptest.NewRequest(http.MethodDelete, tt.url, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}

func TestListEventsHandler_CacheHit(t *testing.T) {
	repo := &fakeEventsRepo{}
	c := cache.New(30 * time.Second)

	calls := 0
	repo.listFn = func(ctx context.Context, filters event.ListEventsFilter) ([]event.Event, int, error) {
		calls++
		return []event.Event{{ID: "id-1", Title: "Event 1"}}, 1, nil
	}

	h := handlers.NewEventsHandlerWithCache(repo, c)
	r := setupRouter(http.MethodGet, "/events", h.ListEvents)

	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/events?limit=20", nil))
	if w1.Code != http.StatusOK {
		t.Fatalf("first call got %d body=%s", w1.Code, w1.Body.String())
	}

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/events?limit=20", nil))
	if w2.Code != http.StatusOK {
		t.Fatalf("second call got %d body=%s", w2.Code, w2.Body.String())
	}

	if calls != 1 {
		t.Fatalf("expected repo calls=1 (cache hit on second request), got %d", calls)
	}
}

func TestDeleteEventHandler_InvalidatesCache(t *testing.T) {
	validID := newUUID()
	repo := &fakeEventsRepo{}
	c := cache.New(30 * time.Second)

	calls := 0
	repo.listFn = func(ctx context.Context, filters event.ListEventsFilter) ([]event.Event, int, error) {
		calls++
		return []event.Event{{ID: validID, Title: "Event 1"}}, 1, nil
	}
	repo.deleteFn = func(ctx context.Context, id string) error { return nil }

	h := handlers.NewEventsHandlerWithCache(repo, c)
	listRouter := setupRouter(http.MethodGet, "/events", h.ListEvents)
	deleteRouter := setupRouter(http.MethodDelete, "/events/:id", h.DeleteEvent)

	w1 := httptest.NewRecorder()
	listRouter.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/events?limit=20", nil))
	if w1.Code != http.StatusOK {
		t.Fatalf("first list got %d body=%s", w1.Code, w1.Body.String())
	}

	w2 := httptest.NewRecorder()
	deleteRouter.ServeHTTP(w2, httptest.NewRequest(http.MethodDelete, "/events/"+validID, nil))
	if w2.Code != http.StatusNoContent {
		t.Fatalf("delete got %d body=%s", w2.Code, w2.Body.String())
	}

	w3 := httptest.NewRecorder()
	listRouter.ServeHTTP(w3, httptest.NewRequest(http.MethodGet, "/events?limit=20", nil))
	if w3.Code != http.StatusOK {
		t.Fatalf("third list got %d body=%s", w3.Code, w3.Body.String())
	}

	if calls != 2 {
		t.Fatalf("expected repo list calls=2 (cache invalidated by delete), got %d", calls)
	}
}
