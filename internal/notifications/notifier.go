package notifications

import "context"

// EmailMessage is one email leg of a side-effect trio (C12).
type EmailMessage struct {
	To      []string
	Subject string
	Body    string
	Kind    string // e.g. "registration_confirmation", "event_updated", "assignment_invitation"
}

// SystemMessage is the in-product notification leg of a trio.
type SystemMessage struct {
	RecipientUserIDs []string
	Title            string
	Body             string
	Kind             string
}

// AuditEntry is the audit-log leg of a trio, recorded independently of the
// Registration.AuditTrail (this one covers event-level and non-registration
// actions such as "event_updated" or "workshop_topic_updated").
type AuditEntry struct {
	EventID string
	Action  string
	Actor   string
	Detail  string
}

// Notifier is the trio's delivery surface. Implementations must never
// block the caller's business transaction on delivery - SideEffectDispatcher
// (C12) calls these fire-and-forget via a worker pool.
type Notifier interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
	SendSystemMessage(ctx context.Context, msg SystemMessage) error
	RecordAudit(ctx context.Context, entry AuditEntry) error
}
