package payment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"autorent/internal/domain"
	"autorent/internal/messaging"
	"autorent/internal/repository"

	"github.com/google/uuid"
)

type Service struct {
	sessions     SessionRepository
	reservations ReservationStore
	gateway      Gateway
	events       messaging.Publisher
	log          *slog.Logger
	now          func() time.Time
}

func NewService(sessions SessionRepository, reservations ReservationStore, gateway Gateway, events messaging.Publisher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		sessions:     sessions,
		reservations: reservations,
		gateway:      gateway,
		events:       events,
		log:          log,
		now:          time.Now,
	}
}

// OpenSession creates (or returns) the payment attempt for a PENDING
// reservation. A still-open session is reused so the client never gets two
// live charge targets; a completed one makes the call a conflict. Opening a
// session clears the reservation's hold deadline: an in-flight checkout
// keeps its calendar claim.
func (s *Service) OpenSession(ctx context.Context, reservationID string, requesterID int64) (*SessionHandle, error) {
	res, err := s.getReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.ClientID != requesterID {
		return nil, ErrForbidden
	}
	if res.Status != domain.ReservationPending {
		return nil, ErrIllegalState
	}

	paid, err := s.sessions.HasCompletedForReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if paid {
		return nil, ErrAlreadyPaid
	}

	if open, err := s.sessions.GetOpenByReservation(ctx, reservationID); err == nil {
		return handleFor(open), nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	intent, err := s.gateway.CreateIntent(ctx, res.Cost(), map[string]string{
		"reservation_id": res.ID,
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sess := &domain.PaymentSession{
		ID:            uuid.NewString(),
		ReservationID: res.ID,
		ClientID:      res.ClientID,
		AmountCents:   res.CostCents,
		Currency:      res.Currency,
		ExternalRef:   intent.ID,
		ClientSecret:  intent.ClientSecret,
		Status:        domain.PaymentSessionPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	if err := s.reservations.ClearHold(ctx, res.ID, now); err != nil {
		s.log.Error("clear reservation hold", "reservation_id", res.ID, "err", err)
	}
	return handleFor(sess), nil
}

// Confirm re-verifies the session with the gateway (the client's word that
// payment went through is never trusted) and on gateway-reported success
// completes the session and approves the reservation. Racing against the
// webhook is safe: both writers use guarded updates and the loser no-ops.
func (s *Service) Confirm(ctx context.Context, sessionID string, requesterID int64) (*domain.Reservation, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.ClientID != requesterID {
		return nil, ErrForbidden
	}

	switch sess.Status {
	case domain.PaymentSessionCompleted:
		// Idempotent repeat: just report current state.
		return s.getReservation(ctx, sess.ReservationID)
	case domain.PaymentSessionRefunded:
		return nil, ErrIllegalState
	}

	intent, err := s.gateway.RetrieveIntent(ctx, sess.ExternalRef)
	if err != nil {
		return nil, err
	}
	if intent.Status != IntentSucceeded {
		return nil, ErrPaymentRejected
	}

	now := s.now().UTC()
	changed, err := s.sessions.MarkCompleted(ctx, sess.ID, "", now)
	if err != nil {
		return nil, err
	}
	if err := s.approveReservation(ctx, sess, now, changed); err != nil {
		return nil, err
	}
	return s.getReservation(ctx, sess.ReservationID)
}

// Refund reverses a completed payment and cancels its APPROVED reservation.
func (s *Service) Refund(ctx context.Context, sessionID string, requesterID int64) (*domain.Reservation, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.ClientID != requesterID {
		return nil, ErrForbidden
	}
	if sess.Status != domain.PaymentSessionCompleted {
		return nil, ErrIllegalState
	}
	res, err := s.getReservation(ctx, sess.ReservationID)
	if err != nil {
		return nil, err
	}
	if res.Status != domain.ReservationApproved {
		return nil, ErrIllegalState
	}

	if err := s.gateway.RefundIntent(ctx, sess.ExternalRef); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if _, err := s.sessions.MarkRefunded(ctx, sess.ID, "", now); err != nil {
		return nil, err
	}
	if _, err := s.reservations.TransitionStatus(ctx, res.ID,
		domain.ReservationApproved, domain.ReservationCancelled, "refunded", now); err != nil {
		return nil, err
	}
	s.publish(messaging.Event{
		Type:          messaging.EventPaymentRefunded,
		ReservationID: res.ID,
		SessionID:     sess.ID,
		ClientID:      sess.ClientID,
		AmountCents:   sess.AmountCents,
		Currency:      sess.Currency,
		OccurredAt:    now,
	})
	return s.getReservation(ctx, sess.ReservationID)
}

func (s *Service) Get(ctx context.Context, sessionID string, requesterID int64) (*domain.PaymentSession, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.ClientID != requesterID {
		return nil, ErrForbidden
	}
	return sess, nil
}

func (s *Service) ListForRequester(ctx context.Context, requesterID int64) ([]domain.PaymentSession, error) {
	return s.sessions.ListByClient(ctx, requesterID)
}

// approveReservation drives PENDING -> APPROVED after a completed payment.
// A false guarded update is fine when someone else already approved it;
// anything else (the reservation was cancelled mid-payment) is a conflict
// worth surfacing.
func (s *Service) approveReservation(ctx context.Context, sess *domain.PaymentSession, now time.Time, paymentChanged bool) error {
	moved, err := s.reservations.TransitionStatus(ctx, sess.ReservationID,
		domain.ReservationPending, domain.ReservationApproved, "", now)
	if err != nil {
		return err
	}
	if !moved {
		current, err := s.reservations.GetByID(ctx, sess.ReservationID)
		if err != nil {
			return err
		}
		if current.Status != domain.ReservationApproved && current.Status != domain.ReservationCompleted {
			return ErrIllegalState
		}
	}
	if paymentChanged {
		s.publish(messaging.Event{
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
		s.publish(messaging.Event{
			Type:          messaging.EventReservationApproved,
			ReservationID: sess.ReservationID,
			ClientID:      sess.ClientID,
			OccurredAt:    now,
		})
	}
	return nil
}

func (s *Service) getSession(ctx context.Context, id string) (*domain.PaymentSession, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

func (s *Service) getReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return res, nil
}

func (s *Service) publish(evt messaging.Event) {
	if s.events != nil {
		s.events.Publish(evt)
	}
}

func handleFor(sess *domain.PaymentSession) *SessionHandle {
	return &SessionHandle{
		SessionID:    sess.ID,
		ClientSecret: sess.ClientSecret,
		AmountCents:  sess.AmountCents,
		Amount:       sess.Amount().Units(),
		Currency:     sess.Currency,
	}
}
