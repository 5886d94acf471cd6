package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/eventhub/internal/actorctx"
	"github.com/geocoder89/eventhub/internal/config"
	"github.com/geocoder89/eventhub/internal/domain/event"
	"github.com/geocoder89/eventhub/internal/domain/user"
	"github.com/geocoder89/eventhub/internal/engine"
	"github.com/geocoder89/eventhub/internal/http/middlewares"
	"github.com/geocoder89/eventhub/internal/utils"
)

// EngineHandler exposes the registration-engine operations (C9/C10/C5) as
// the HTTP surface from §6.
type EngineHandler struct {
	engine        *engine.Engine
	programAccess engine.ProgramAccessChecker
}

func NewEngineHandler(eng *engine.Engine, programAccess engine.ProgramAccessChecker) *EngineHandler {
	if programAccess == nil {
		programAccess = engine.PermissiveProgramAccess{}
	}
	return &EngineHandler{engine: eng, programAccess: programAccess}
}

func actorFromContext(ctx *gin.Context) (actorctx.Actor, bool) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || userID == "" {
		return actorctx.Actor{}, false
	}
	role, _ := middlewares.RoleFromContext(ctx)
	email, _ := middlewares.EmailFromContext(ctx)
	return actorctx.Actor{UserID: userID, Role: user.AuthRole(role), Email: email}, true
}

type signupRequest struct {
	RoleID              string `json:"roleId" binding:"required"`
	Notes               string `json:"notes"`
	SpecialRequirements string `json:"specialRequirements"`
}

func (h *EngineHandler) Signup(ctx *gin.Context) {
	eventID := ctx.Param("id")
	if !utils.IsUUID(eventID) {
		RespondBadRequest(ctx, "invalid_id", "event id must be a valid UUID")
		return
	}
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "missing identity")
		return
	}
	var req signupRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	ev, err := h.engine.Signup(cctx, eventID, userID, req.RoleID, req.Notes, req.SpecialRequirements)
	if err != nil {
		RespondEngineError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"event": ev})
}

type cancelRequest struct {
	RoleID string `json:"roleId" binding:"required"`
}

func (h *EngineHandler) Cancel(ctx *gin.Context) {
	eventID := ctx.Param("id")
	if !utils.IsUUID(eventID) {
		RespondBadRequest(ctx, "invalid_id", "event id must be a valid UUID")
		return
	}
	userID, ok := middlewares.UserIDFromContext(ctx)
	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "missing identity")
		return
	}
	var req cancelRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	ev, err := h.engine.Cancel(cctx, eventID, userID, req.RoleID)
	if err != nil {
		RespondEngineError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"event": ev})
}

type assignRequest struct {
	UserID                string `json:"userId" binding:"required"`
	RoleID                string `json:"roleId" binding:"required"`
	Notes                 string `json:"notes"`
	SpecialRequirements   string `json:"specialRequirements"`
	SuppressNotifications bool   `json:"suppressNotifications"`
}

func (h *EngineHandler) Assign(ctx *gin.Context) {
	eventID := ctx.Param("id")
	if !utils.IsUUID(eventID) {
		RespondBadRequest(ctx, "invalid_id", "event id must be a valid UUID")
		return
	}
	actor, ok := actorFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "missing identity")
		return
	}
	var req assignRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	ev, err := h.engine.AssignUserToRole(cctx, eventID, req.UserID, req.RoleID, actor, req.Notes, req.SpecialRequirements, req.SuppressNotifications)
	if err != nil {
		RespondEngineError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"event": ev})
}

type moveRequest struct {
	UserID     string `json:"userId" binding:"required"`
	FromRoleID string `json:"fromRoleId" binding:"required"`
	ToRoleID   string `json:"toRoleId" binding:"required"`
}

func (h *EngineHandler) Move(ctx *gin.Context) {
	eventID := ctx.Param("id")
	if !utils.IsUUID(eventID) {
		RespondBadRequest(ctx, "invalid_id", "event id must be a valid UUID")
		return
	}
	actor, ok := actorFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "missing identity")
		return
	}
	var req moveRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	ev, err := h.engine.MoveUserBetweenRoles(cctx, eventID, req.UserID, req.FromRoleID, req.ToRoleID, actor)
	if err != nil {
		RespondEngineError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"event": ev})
}

type removeRequest struct {
	UserID string `json:"userId" binding:"required"`
	RoleID string `json:"roleId" binding:"required"`
}

func (h *EngineHandler) Remove(ctx *gin.Context) {
	eventID := ctx.Param("id")
	if !utils.IsUUID(eventID) {
		RespondBadRequest(ctx, "invalid_id", "event id must be a valid UUID")
		return
	}
	actor, ok := actorFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "missing identity")
		return
	}
	var req removeRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	ev, err := h.engine.RemoveUserFromRole(cctx, eventID, req.UserID, req.RoleID, actor)
	if err != nil {
		RespondEngineError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"event": ev})
}

type workshopTopicRequest struct {
	Topic string `json:"topic" binding:"required"`
}

func (h *EngineHandler) SetWorkshopTopic(ctx *gin.Context) {
	eventID := ctx.Param("id")
	group := ctx.Param("group")
	if !utils.IsUUID(eventID) {
		RespondBadRequest(ctx, "invalid_id", "event id must be a valid UUID")
		return
	}
	actor, ok := actorFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "missing identity")
		return
	}
	var req workshopTopicRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	ev, err := h.engine.SetGroupTopic(cctx, eventID, group, req.Topic, actor)
	if err != nil {
		RespondEngineError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"event": ev})
}

func (h *EngineHandler) TimeConflict(ctx *gin.Context) {
	startDate := ctx.Query("startDate")
	startTime := ctx.Query("startTime")
	if startDate == "" || startTime == "" {
		RespondBadRequest(ctx, "invalid_query", "startDate and startTime are required")
		return
	}
	endDate := ctx.Query("endDate")
	endTime := ctx.Query("endTime")
	if ctx.Query("mode") == "point" {
		endTime = ""
	}
	timeZone := ctx.Query("timeZone")
	excludeID := ctx.Query("excludeId")

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	conflicts, err := h.engine.ConflictDetector(cctx, startDate, startTime, endDate, endTime, timeZone, excludeID)
	if err != nil {
		RespondEngineError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"conflict":  len(conflicts) > 0,
		"conflicts": conflicts,
	})
}

func (h *EngineHandler) UpdateEvent(ctx *gin.Context) {
	eventID := ctx.Param("id")
	if !utils.IsUUID(eventID) {
		RespondBadRequest(ctx, "invalid_id", "event id must be a valid UUID")
		return
	}
	actor, ok := actorFromContext(ctx)
	if !ok {
		RespondUnAuthorized(ctx, "unauthorized", "missing identity")
		return
	}

	var body struct {
		event.UpdateEventRequest
		SuppressNotifications bool `json:"suppressNotifications"`
	}
	if !BindJSON(ctx, &body) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	result, err := h.engine.Update(cctx, eventID, engine.UpdateInput{
		Patch:                 body.UpdateEventRequest,
		SuppressNotifications: body.SuppressNotifications,
	}, actor, h.programAccess)
	if err != nil {
		RespondEngineError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"event": result.Event, "autoUnpublished": result.AutoUnpublished})
}

func (h *EngineHandler) HasRegistrations(ctx *gin.Context) {
	eventID := ctx.Param("id")
	if !utils.IsUUID(eventID) {
		RespondBadRequest(ctx, "invalid_id", "event id must be a valid UUID")
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	regs, err := h.engine.Registrations.ListByEvent(cctx, eventID)
	if err != nil {
		RespondInternal(ctx, "could not load registrations")
		return
	}

	userCount, guestCount := 0, 0
	for _, r := range regs {
		if r.RegisteredBy == "organizer" {
			guestCount++
		} else {
			userCount++
		}
	}

	ctx.JSON(http.StatusOK, gin.H{
		"hasRegistrations": len(regs) > 0,
		"userCount":        userCount,
		"guestCount":       guestCount,
		"totalCount":       len(regs),
	})
}
