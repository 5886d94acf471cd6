// Package sideeffects implements C12 SideEffectDispatcher: for each
// business event the engine emits, it produces a trio (email, in-product
// system message, audit entry) fired-and-forget relative to the caller's
// response. Delivery failures are logged and counted, never propagated.
package sideeffects

import (
	"context"
	"log/slog"

	"github.com/panjf2000/ants/v2"

	"github.com/geocoder89/eventhub/internal/notifications"
)

// Recipient is a deduped notification target: one user may be both a
// participant and a guest of the same event, and must receive one
// notification, not two (§4.12 dedup rule).
type Recipient struct {
	UserID string
	Email  string
	Name   string
}

// Trio is one business-event notification: an email + system message to
// Recipients, plus an optional audit entry.
type Trio struct {
	EventID     string
	Kind        string // e.g. "user_signed_up", "event_updated", "assignment_invitation"
	Recipients  []Recipient
	EmailSubject string
	EmailBody    string
	SystemTitle  string
	SystemBody   string
	Actor        string
	AuditDetail  string
	// SkipAudit is set for trios that have no natural audit record (e.g. a
	// decline-invitation reminder) - most trios do record one.
	SkipAudit bool
}

// DedupRecipients unions participants and guests, deduping by email, per
// the recipient-computation rule for update notifications.
func DedupRecipients(groups ...[]Recipient) []Recipient {
	seen := make(map[string]struct{})
	out := make([]Recipient, 0)
	for _, g := range groups {
		for _, r := range g {
			if r.Email == "" {
				continue
			}
			if _, ok := seen[r.Email]; ok {
				continue
			}
			seen[r.Email] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// Dispatcher fans Trio deliveries out through a bounded ants pool so a slow
// or failing notification provider never backs up request-handling
// goroutines. Its own lifetime context gates every queued task: deliveries
// outlive the originating request's deadline (§5) but not the process.
type Dispatcher struct {
	notifier notifications.Notifier
	pool     *ants.Pool
	log      *slog.Logger
	bgCtx    context.Context
}

// New builds a Dispatcher with a pool of the given size. poolSize bounds
// how many trio deliveries run concurrently; excess Dispatch calls queue
// inside the pool rather than spawning unbounded goroutines.
func New(bgCtx context.Context, notifier notifications.Notifier, poolSize int, log *slog.Logger) (*Dispatcher, error) {
	if poolSize <= 0 {
		poolSize = 16
	}
	if log == nil {
		log = slog.Default()
	}

	d := &Dispatcher{notifier: notifier, log: log, bgCtx: bgCtx}

	pool, err := ants.NewPool(poolSize,
		ants.WithPanicHandler(func(p interface{}) {
			log.Error("sideeffects: panic recovered", "panic", p)
		}),
		ants.WithNonblocking(false),
	)
	if err != nil {
		return nil, err
	}
	d.pool = pool
	return d, nil
}

// Dispatch queues the trio for fire-and-forget delivery. It returns once
// the pool accepts the task; while every pool worker is busy the call waits
// for a free one. A failed submission (a closed pool) is logged and not
// reported to the caller - a side effect is never allowed to fail the
// caller's business transaction.
func (d *Dispatcher) Dispatch(trio Trio) {
	err := d.pool.Submit(func() {
		d.deliver(trio)
	})
	if err != nil {
		d.log.Error("sideeffects: submit failed", "kind", trio.Kind, "event_id", trio.EventID, "error", err)
	}
}

func (d *Dispatcher) deliver(trio Trio) {
	ctx := d.bgCtx

	recipients := DedupRecipients(trio.Recipients)
	emails := make([]string, 0, len(recipients))
	userIDs := make([]string, 0, len(recipients))
	for _, r := range recipients {
		emails = append(emails, r.Email)
		userIDs = append(userIDs, r.UserID)
	}

	if len(emails) > 0 {
		if err := d.notifier.SendEmail(ctx, notifications.EmailMessage{
			To:      emails,
			Subject: trio.EmailSubject,
			Body:    trio.EmailBody,
			Kind:    trio.Kind,
		}); err != nil {
			d.log.Warn("sideeffects: email delivery failed", "kind", trio.Kind, "event_id", trio.EventID, "error", err)
		}
	}

	if len(userIDs) > 0 {
		if err := d.notifier.SendSystemMessage(ctx, notifications.SystemMessage{
			RecipientUserIDs: userIDs,
			Title:            trio.SystemTitle,
			Body:             trio.SystemBody,
			Kind:             trio.Kind,
		}); err != nil {
			d.log.Warn("sideeffects: system message delivery failed", "kind", trio.Kind, "event_id", trio.EventID, "error", err)
		}
	}

	if !trio.SkipAudit {
		if err := d.notifier.RecordAudit(ctx, notifications.AuditEntry{
			EventID: trio.EventID,
			Action:  trio.Kind,
			Actor:   trio.Actor,
			Detail:  trio.AuditDetail,
		}); err != nil {
			d.log.Warn("sideeffects: audit record failed", "kind", trio.Kind, "event_id", trio.EventID, "error", err)
		}
	}
}

// Shutdown releases the underlying pool; it does not wait for in-flight
// deliveries to finish.
func (d *Dispatcher) Shutdown() {
	d.pool.Release()
}
