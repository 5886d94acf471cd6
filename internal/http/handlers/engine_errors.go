package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/geocoder89/eventhub/internal/engineerr"
)

// RespondEngineError maps an engineerr.Kind to the §7 HTTP status table.
// Anything not produced by the engine package falls through to 500, since a
// precondition failure the engine forgot to classify is a bug, not a 4xx.
func RespondEngineError(ctx *gin.Context, err error) {
	kind := engineerr.KindOf(err)
	message := err.Error()

	switch kind {
	case engineerr.KindUnauthorized:
		RespondUnAuthorized(ctx, "unauthorized", message)
	case engineerr.KindForbidden:
		RespondForbidden(ctx, "forbidden", message)
	case engineerr.KindNotFound:
		RespondNotFound(ctx, message)
	case engineerr.KindValidation:
		RespondBadRequest(ctx, message, nil)
	case engineerr.KindInvalidState:
		RespondConflict(ctx, "invalid_state", message)
	case engineerr.KindDuplicate:
		RespondConflict(ctx, "duplicate", message)
	case engineerr.KindCapacityFull:
		RespondConflict(ctx, "capacity_full", message)
	case engineerr.KindQuotaExceeded:
		RespondConflict(ctx, "quota_exceeded", message)
	case engineerr.KindRoleHasRegistrants:
		RespondConflict(ctx, "role_has_registrants", message)
	case engineerr.KindCapacityBelowUsage:
		RespondConflict(ctx, "capacity_below_usage", message)
	case engineerr.KindConflict:
		RespondConflict(ctx, "time_conflict", message)
	case engineerr.KindUnavailable:
		RespondServiceUnavailable(ctx, "lock_timeout", message)
	default:
		RespondInternal(ctx, message)
	}
}
