package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/geocoder89/eventhub/internal/cache"
	"github.com/geocoder89/eventhub/internal/config"
	"github.com/geocoder89/eventhub/internal/domain/event"
	"github.com/geocoder89/eventhub/internal/utils"
	"github.com/gin-gonic/gin"
)

// EventsCreator is the repo-facing surface EventsHandler's CRUD/listing
// endpoints need. Registration-engine operations (signup/cancel/move/
// assign/remove/workshop-topic/update/time-conflict) live on EngineHandler
// instead, since they need the lock/cache/dispatch machinery the bare repo
// doesn't have.
type EventsCreator interface {
	Create(ctx context.Context, e event.Event) (event.Event, error)
	GetByID(ctx context.Context, id string) (event.Event, error)
	List(ctx context.Context, filter event.ListEventsFilter) ([]event.Event, int, error)
	Delete(ctx context.Context, id string) error
}

type EventsHandler struct {
	repo  EventsCreator
	cache *cache.Cache
}

func NewEventsHandler(repo EventsCreator) *EventsHandler {
	return &EventsHandler{repo: repo, cache: nil}
}

func NewEventsHandlerWithCache(repo EventsCreator, c *cache.Cache) *EventsHandler {
	return &EventsHandler{repo: repo, cache: c}
}

// function to make sure, what is returned is a number for the limit query

func parseIntDefault(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}

	return n
}

func (h *EventsHandler) CreateEvent(ctx *gin.Context) {
	var req event.CreateEventRequest

	if !BindJSON(ctx, &req) {
		return
	}

	ev := event.NewFromCreateRequest(req)
	ev.ApplyFormatDefaults()
	ev.Publish = ev.RequiredFieldsPresent()
	if !ev.Publish {
		ev.AutoUnpublishedReason = "MISSING_REQUIRED_FIELDS"
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	saved, err := h.repo.Create(cctx, ev)
	if err != nil {
		fmt.Println(err)
		RespondInternal(ctx, "Could not create event")
		return
	}

	if h.cache != nil {
		h.cache.InvalidateByTags("events", "listings")
	}

	ctx.JSON(http.StatusCreated, saved)
}

func (h *EventsHandler) ListEvents(ctx *gin.Context) {
	limit := parseIntDefault(ctx.Query("limit"), 20)
	if limit < 1 || limit > 100 {
		RespondBadRequest(ctx, "invalid_query", "limit must be between 1 and 100")
		return
	}
	offset := parseIntDefault(ctx.Query("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	filter := event.ListEventsFilter{
		Type:            ctx.Query("type"),
		ProgramID:       ctx.Query("programId"),
		Category:        ctx.Query("category"),
		Search:          ctx.Query("search"),
		MinParticipants: parseIntDefault(ctx.Query("minParticipants"), 0),
		MaxParticipants: parseIntDefault(ctx.Query("maxParticipants"), 0),
		DateFrom:        ctx.Query("startDate"),
		DateTo:          ctx.Query("endDate"),
		SortBy:          event.SortField(ctx.Query("sortBy")),
		SortOrder:       event.SortOrder(ctx.Query("sortOrder")),
		Limit:           limit,
		Offset:          offset,
	}

	if status := ctx.Query("status"); status != "" {
		filter.Status = event.Status(status)
	}
	if statuses := ctx.Query("statuses"); statuses != "" {
		for _, s := range strings.Split(statuses, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				filter.Statuses = append(filter.Statuses, event.Status(s))
			}
		}
	}

	cacheable := h.cache != nil
	cacheKey := ""

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	var items []event.Event
	var total int
	var err error

	if cacheable {
		cacheKey = utils.BuildEventsListCacheKey(filter)
		var v any
		v, err = h.cache.GetOrSet(cacheKey, 0, []string{"events", "listings"}, func() (any, error) {
			i, t, e := h.repo.List(cctx, filter)
			if e != nil {
				return nil, e
			}
			return listPage{Items: i, Total: t}, nil
		})
		if err != nil {
			RespondInternal(ctx, "Could not list events")
			return
		}
		page := v.(listPage)
		items, total = page.Items, page.Total
	} else {
		items, total, err = h.repo.List(cctx, filter)
		if err != nil {
			RespondInternal(ctx, "Could not list events")
			return
		}
	}

	ctx.JSON(http.StatusOK, gin.H{
		"events": items,
		"pagination": gin.H{
			"limit":  limit,
			"offset": offset,
			"total":  total,
		},
	})
}

type listPage struct {
	Items []event.Event
	Total int
}

func (h *EventsHandler) GetEventById(c *gin.Context) {
	id := c.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(c, "invalid_id", "id must be a valid UUID")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	slog.Default().InfoContext(ctx, "events.get_by_id", "event_id", id)

	e, err := h.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			RespondNotFound(c, "Event not found")
			return
		}
		slog.Default().ErrorContext(ctx, "events.get_by_id_failed", "event_id", id, "err", err)
		RespondInternal(c, "Could not fetch event")
		return
	}

	c.JSON(http.StatusOK, gin.H{"event": e})
}

func (h *EventsHandler) DeleteEvent(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "invalid_id", "id must be a valid UUID")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)

	defer cancel()

	err := h.repo.Delete(cctx, id)

	// checks if the error type is not found, returns a 404
	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			RespondNotFound(ctx, "Event not found")
			return
		}

		// any other error, returns a 500
		RespondInternal(ctx, "Could not delete event")
		return

	}

	if h.cache != nil {
		h.cache.InvalidateByTags("events", "listings", "event:"+id)
	}
	ctx.Status(http.StatusNoContent) //204 empty body.
}
