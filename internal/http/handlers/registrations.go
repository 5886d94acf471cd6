package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/eventhub/internal/config"
	"github.com/geocoder89/eventhub/internal/domain/registration"
	"github.com/geocoder89/eventhub/internal/utils"
)

// RegistrationReader is the read-only surface RegistrationHandler needs.
// Write operations (signup/cancel/assign/move/remove) are owned by
// EngineHandler, which layers locking, capacity/quota checks and
// side-effect dispatch on top of the store - this handler only lists.
type RegistrationReader interface {
	ListByEventCursor(
		ctx context.Context,
		eventID string,
		limit int,
		afterCreatedAt time.Time,
		afterID string,
	) (items []registration.Registration, nextCursor *string, hasMore bool, err error)
	CountForEvent(ctx context.Context, eventID string) (int, error)
}

type RegistrationHandler struct {
	repo RegistrationReader
}

func NewRegistrationHandler(repo RegistrationReader) *RegistrationHandler {
	return &RegistrationHandler{repo: repo}
}

func (h *RegistrationHandler) ListForEvent(ctx *gin.Context) {
	eventID := ctx.Param("id")

	if !utils.IsUUID(eventID) {
		RespondBadRequest(ctx, "invalid_id", "id must be a valid UUID")
		return
	}

	limit := parseIntDefault(ctx.Query("limit"), 20)
	if limit < 1 || limit > 100 {
		RespondBadRequest(ctx, "invalid_query", "limit must be between 1 and 100")
		return
	}

	includeTotal := ctx.Query("includeTotal") == "true"
	cursor := ctx.Query("cursor")

	afterCreatedAt := time.Unix(0, 0).UTC()
	afterID := "00000000-0000-0000-0000-000000000000"

	if cursor != "" {
		cur, err := utils.DecodeRegistrationCursor(cursor)
		if err != nil {
			RespondBadRequest(ctx, "invalid_query", "cursor is invalid")
			return
		}
		afterCreatedAt = cur.CreatedAt
		afterID = cur.ID
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	items, next, hasMore, err := h.repo.ListByEventCursor(cctx, eventID, limit, afterCreatedAt, afterID)
	if err != nil {
		RespondInternal(ctx, "Could not list registrations")
		return
	}

	var total any = nil
	if includeTotal {
		t, err := h.repo.CountForEvent(cctx, eventID)
		if err != nil {
			RespondInternal(ctx, "Could not count registrations")
			return
		}
		total = t
	}

	resp := gin.H{
		"limit":      limit,
		"count":      len(items),
		"items":      items,
		"hasMore":    hasMore,
		"nextCursor": next,
		"total":      total,
	}

	RespondJSONWithETag(ctx, http.StatusOK, resp)
}
