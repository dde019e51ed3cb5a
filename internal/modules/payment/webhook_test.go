package payment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"autorent/internal/domain"
	"autorent/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec_test"

func newReconciler(sessions SessionRepository, reservations ReservationStore) *Reconciler {
	r := NewReconciler(sessions, reservations, webhookSecret, 15*time.Minute, nil, nil)
	r.now = func() time.Time { return testTime }
	return r
}

func eventPayload(eventType, ref string) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_1","type":%q,"data":{"object":{"id":%q}}}`, eventType, ref))
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := SignPayload(payload, webhookSecret, testTime)

	require.NoError(t, VerifySignature(payload, header, webhookSecret))
	assert.ErrorIs(t, VerifySignature(payload, header, "other-secret"), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature([]byte(`{"id":"evt_2"}`), header, webhookSecret), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(payload, "garbage", webhookSecret), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(payload, "", webhookSecret), ErrInvalidSignature)
}

func TestHandle_RejectsBadSignatureBeforeAnyLookup(t *testing.T) {
	sessions := new(MockSessionRepository)
	rec := newReconciler(sessions, new(MockReservationStore))

	payload := eventPayload(eventIntentSucceeded, "pi_123")
	err := rec.Handle(context.Background(), payload, SignPayload(payload, "wrong", testTime))
	assert.ErrorIs(t, err, ErrInvalidSignature)
	sessions.AssertNotCalled(t, "GetByExternalRef", mock.Anything, mock.Anything)
}

func TestHandle_SucceededCompletesSessionAndApproves(t *testing.T) {
	sessions := new(MockSessionRepository)
	reservations := new(MockReservationStore)
	rec := newReconciler(sessions, reservations)

	payload := eventPayload(eventIntentSucceeded, "pi_123")
	sessions.On("GetByExternalRef", mock.Anything, "pi_123").Return(pendingSession(), nil)
	sessions.On("MarkCompleted", mock.Anything, "sess-1", string(payload), testTime).Return(true, nil)
	reservations.On("TransitionStatus", mock.Anything, "res-1",
		domain.ReservationPending, domain.ReservationApproved, "", testTime).Return(true, nil)

	err := rec.Handle(context.Background(), payload, SignPayload(payload, webhookSecret, testTime))
	require.NoError(t, err)
	sessions.AssertExpectations(t)
	reservations.AssertExpectations(t)
}

func TestHandle_DuplicateSucceededIsNoOp(t *testing.T) {
	sessions := new(MockSessionRepository)
	reservations := new(MockReservationStore)
	rec := newReconciler(sessions, reservations)

	payload := eventPayload(eventIntentSucceeded, "pi_123")
	completed := pendingSession()
	completed.Status = domain.PaymentSessionCompleted
	sessions.On("GetByExternalRef", mock.Anything, "pi_123").Return(completed, nil)
	// The guarded updates find nothing left to change.
	sessions.On("MarkCompleted", mock.Anything, "sess-1", string(payload), testTime).Return(false, nil)
	reservations.On("TransitionStatus", mock.Anything, "res-1",
		domain.ReservationPending, domain.ReservationApproved, "", testTime).Return(false, nil)

	err := rec.Handle(context.Background(), payload, SignPayload(payload, webhookSecret, testTime))
	require.NoError(t, err)
}

func TestHandle_FailedRearmsHold(t *testing.T) {
	sessions := new(MockSessionRepository)
	reservations := new(MockReservationStore)
	rec := newReconciler(sessions, reservations)

	payload := []byte(fmt.Sprintf(
		`{"id":"evt_2","type":%q,"data":{"object":{"id":"pi_123","last_payment_error":{"message":"card declined"}}}}`,
		eventIntentFailed))
	sessions.On("GetByExternalRef", mock.Anything, "pi_123").Return(pendingSession(), nil)
	sessions.On("MarkFailed", mock.Anything, "sess-1", "card declined", string(payload), testTime).Return(true, nil)
	reservations.On("ResetHold", mock.Anything, "res-1", testTime.Add(15*time.Minute), testTime).Return(nil)

	err := rec.Handle(context.Background(), payload, SignPayload(payload, webhookSecret, testTime))
	require.NoError(t, err)
	reservations.AssertExpectations(t)
}

func TestHandle_RefundedCancelsReservation(t *testing.T) {
	sessions := new(MockSessionRepository)
	reservations := new(MockReservationStore)
	rec := newReconciler(sessions, reservations)

	payload := eventPayload(eventChargeRefunded, "pi_123")
	completed := pendingSession()
	completed.Status = domain.PaymentSessionCompleted
	sessions.On("GetByExternalRef", mock.Anything, "pi_123").Return(completed, nil)
	sessions.On("MarkRefunded", mock.Anything, "sess-1", string(payload), testTime).Return(true, nil)
	reservations.On("TransitionStatus", mock.Anything, "res-1",
		domain.ReservationApproved, domain.ReservationCancelled, "refunded", testTime).Return(true, nil)

	err := rec.Handle(context.Background(), payload, SignPayload(payload, webhookSecret, testTime))
	require.NoError(t, err)
	sessions.AssertExpectations(t)
}

func TestHandle_UnknownIntentIsAcknowledged(t *testing.T) {
	sessions := new(MockSessionRepository)
	rec := newReconciler(sessions, new(MockReservationStore))

	payload := eventPayload(eventIntentSucceeded, "pi_unknown")
	sessions.On("GetByExternalRef", mock.Anything, "pi_unknown").Return(nil, repository.ErrNotFound)

	err := rec.Handle(context.Background(), payload, SignPayload(payload, webhookSecret, testTime))
	assert.NoError(t, err)
}

func TestHandle_UnhandledEventTypeIsIgnored(t *testing.T) {
	sessions := new(MockSessionRepository)
	rec := newReconciler(sessions, new(MockReservationStore))

	payload := eventPayload("payment_intent.created", "pi_123")
	sessions.On("GetByExternalRef", mock.Anything, "pi_123").Return(pendingSession(), nil)

	err := rec.Handle(context.Background(), payload, SignPayload(payload, webhookSecret, testTime))
	assert.NoError(t, err)
	sessions.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_MalformedPayload(t *testing.T) {
	rec := newReconciler(new(MockSessionRepository), new(MockReservationStore))

	payload := []byte(`{"type":""}`)
	err := rec.Handle(context.Background(), payload, SignPayload(payload, webhookSecret, testTime))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	payload = []byte(`not json`)
	err = rec.Handle(context.Background(), payload, SignPayload(payload, webhookSecret, testTime))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestHandle_StoreErrorPropagatesForRedelivery(t *testing.T) {
	sessions := new(MockSessionRepository)
	reservations := new(MockReservationStore)
	rec := newReconciler(sessions, reservations)

	payload := eventPayload(eventIntentSucceeded, "pi_123")
	sessions.On("GetByExternalRef", mock.Anything, "pi_123").Return(pendingSession(), nil)
	sessions.On("MarkCompleted", mock.Anything, "sess-1", string(payload), testTime).
		Return(false, assert.AnError)

	err := rec.Handle(context.Background(), payload, SignPayload(payload, webhookSecret, testTime))
	assert.ErrorIs(t, err, assert.AnError)
}
