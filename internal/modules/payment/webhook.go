package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"autorent/internal/domain"
	"autorent/internal/messaging"
	"autorent/internal/repository"
)

const (
	eventIntentSucceeded = "payment_intent.succeeded"
	eventIntentFailed    = "payment_intent.payment_failed"
	eventChargeRefunded  = "charge.refunded"
)

// gatewayEvent is the slice of the provider's webhook envelope we act on.
type gatewayEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID               string `json:"id"`
			LastPaymentError struct {
				Message string `json:"message"`
			} `json:"last_payment_error"`
		} `json:"object"`
	} `json:"data"`
}

// VerifySignature checks a "t=<unix>,v1=<hex>" header against an HMAC-SHA256
// of "<t>.<body>" keyed with the webhook secret.
func VerifySignature(payload []byte, header, secret string) error {
	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.%s", ts, payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(v1)) {
		return ErrInvalidSignature
	}
	return nil
}

// SignPayload produces a header VerifySignature accepts. Tests and local
// tooling use it to forge deliveries.
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := fmt.Sprintf("%d", at.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.%s", ts, payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// Reconciler applies gateway webhook deliveries to local state. Deliveries
// are at-least-once and unordered, so every write goes through a guarded
// update and a replay is a no-op.
type Reconciler struct {
	sessions     SessionRepository
	reservations ReservationStore
	secret       string
	holdTTL      time.Duration
	events       messaging.Publisher
	log          *slog.Logger
	now          func() time.Time
}

func NewReconciler(sessions SessionRepository, reservations ReservationStore, secret string, holdTTL time.Duration, events messaging.Publisher, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		sessions:     sessions,
		reservations: reservations,
		secret:       secret,
		holdTTL:      holdTTL,
		events:       events,
		log:          log,
		now:          time.Now,
	}
}

// Handle verifies and applies one delivery. A bad signature or body fails
// closed; an event for an unknown intent or of an unhandled type is
// acknowledged so the gateway stops redelivering it; a store error is
// returned so the gateway retries.
func (r *Reconciler) Handle(ctx context.Context, payload []byte, sigHeader string) error {
	if err := VerifySignature(payload, sigHeader, r.secret); err != nil {
		return err
	}
	var evt gatewayEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return ErrMalformedPayload
	}
	ref := evt.Data.Object.ID
	if evt.Type == "" || ref == "" {
		return ErrMalformedPayload
	}

	sess, err := r.sessions.GetByExternalRef(ctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			r.log.Warn("webhook for unknown payment intent", "event", evt.ID, "type", evt.Type, "ref", ref)
			return nil
		}
		return err
	}

	now := r.now().UTC()
	switch evt.Type {
	case eventIntentSucceeded:
		return r.applySucceeded(ctx, sess, string(payload), now)
	case eventIntentFailed:
		return r.applyFailed(ctx, sess, evt.Data.Object.LastPaymentError.Message, string(payload), now)
	case eventChargeRefunded:
		return r.applyRefunded(ctx, sess, string(payload), now)
	default:
		r.log.Info("ignoring webhook event", "event", evt.ID, "type", evt.Type)
		return nil
	}
}

func (r *Reconciler) applySucceeded(ctx context.Context, sess *domain.PaymentSession, body string, now time.Time) error {
	changed, err := r.sessions.MarkCompleted(ctx, sess.ID, body, now)
	if err != nil {
		return err
	}
	if !changed {
		r.log.Info("duplicate success delivery", "session_id", sess.ID)
	}
	moved, err := r.reservations.TransitionStatus(ctx, sess.ReservationID,
		domain.ReservationPending, domain.ReservationApproved, "", now)
	if err != nil {
		return err
	}
	if changed {
		r.publish(messaging.Event{
			Type:          messaging.EventPaymentCompleted,
			ReservationID: sess.ReservationID,
			SessionID:     sess.ID,
			ClientID:      sess.ClientID,
			AmountCents:   sess.AmountCents,
			Currency:      sess.Currency,
			OccurredAt:    now,
		})
	}
	if moved {
		r.publish(messaging.Event{
			Type:          messaging.EventReservationApproved,
			ReservationID: sess.ReservationID,
			ClientID:      sess.ClientID,
			OccurredAt:    now,
		})
	}
	return nil
}

func (r *Reconciler) applyFailed(ctx context.Context, sess *domain.PaymentSession, reason, body string, now time.Time) error {
	if reason == "" {
		reason = "payment failed"
	}
	changed, err := r.sessions.MarkFailed(ctx, sess.ID, reason, body, now)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	// The attempt is dead; put the reservation back on the clock so the
	// sweeper frees the window if the client walks away.
	if err := r.reservations.ResetHold(ctx, sess.ReservationID, now.Add(r.holdTTL), now); err != nil {
		return err
	}
	r.publish(messaging.Event{
		Type:          messaging.EventPaymentFailed,
		ReservationID: sess.ReservationID,
		SessionID:     sess.ID,
		ClientID:      sess.ClientID,
		AmountCents:   sess.AmountCents,
		Currency:      sess.Currency,
		Reason:        reason,
		OccurredAt:    now,
	})
	return nil
}

func (r *Reconciler) applyRefunded(ctx context.Context, sess *domain.PaymentSession, body string, now time.Time) error {
	changed, err := r.sessions.MarkRefunded(ctx, sess.ID, body, now)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if _, err := r.reservations.TransitionStatus(ctx, sess.ReservationID,
		domain.ReservationApproved, domain.ReservationCancelled, "refunded", now); err != nil {
		return err
	}
	r.publish(messaging.Event{
		Type:          messaging.EventPaymentRefunded,
		ReservationID: sess.ReservationID,
		SessionID:     sess.ID,
		ClientID:      sess.ClientID,
		AmountCents:   sess.AmountCents,
		Currency:      sess.Currency,
		OccurredAt:    now,
	})
	return nil
}

func (r *Reconciler) publish(evt messaging.Event) {
	if r.events != nil {
		r.events.Publish(evt)
	}
}
