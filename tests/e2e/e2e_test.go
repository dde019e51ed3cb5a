package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"autorent/internal/database"
	"autorent/internal/domain"
	"autorent/internal/middleware"
	"autorent/internal/modules/auth"
	"autorent/internal/modules/catalog"
	"autorent/internal/modules/payment"
	"autorent/internal/modules/reservation"
	jwtsvc "autorent/internal/pkg/jwt"
	"autorent/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_e2e_test"

// fakeGateway stands in for the payment provider. Every intent it creates
// reports the status the test primed it with.
type fakeGateway struct {
	status  string
	intents int
}

func (g *fakeGateway) CreateIntent(ctx context.Context, amount domain.Money, metadata map[string]string) (*payment.Intent, error) {
	g.intents++
	id := fmt.Sprintf("pi_e2e_%d", g.intents)
	return &payment.Intent{ID: id, ClientSecret: id + "_secret", Status: payment.IntentRequiresAction}, nil
}

func (g *fakeGateway) RetrieveIntent(ctx context.Context, id string) (*payment.Intent, error) {
	return &payment.Intent{ID: id, Status: g.status}, nil
}

func (g *fakeGateway) RefundIntent(ctx context.Context, id string) error { return nil }

type E2ETestSuite struct {
	router  *gin.Engine
	db      *gorm.DB
	gateway *fakeGateway
}

type TestResponse struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   *ErrorDetail           `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func setupTestSuite(t *testing.T) *E2ETestSuite {
	db, err := database.Connect(":memory:")
	require.NoError(t, err, "Failed to connect to test database")
	require.NoError(t, database.Migrate(db), "Failed to migrate schema")

	userRepo := repository.NewUserRepository(db)
	carRepo := repository.NewCarRepository(db)
	reservationRepo := repository.NewReservationRepository(db)
	sessionRepo := repository.NewPaymentSessionRepository(db)

	jwtService := jwtsvc.New("test_secret_key_32_characters_min", 24*time.Hour)

	authService := auth.NewService(userRepo, jwtService, nil)
	authHandler := auth.NewHandler(authService)

	catalogService := catalog.NewService(carRepo, "USD", nil)
	catalogHandler := catalog.NewHandler(catalogService)

	reservationService := reservation.NewService(reservationRepo, carRepo, nil, 15*time.Minute, nil)
	reservationHandler := reservation.NewHandler(reservationService)

	gateway := &fakeGateway{status: payment.IntentSucceeded}
	paymentService := payment.NewService(sessionRepo, reservationRepo, gateway, nil, nil)
	reconciler := payment.NewReconciler(sessionRepo, reservationRepo, webhookSecret, 15*time.Minute, nil, nil)
	paymentHandler := payment.NewHandler(paymentService, reconciler)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")
	authHandler.RegisterPublicRoutes(v1)
	catalogHandler.RegisterPublicRoutes(v1)
	paymentHandler.RegisterWebhook(v1)

	protected := v1.Group("/")
	protected.Use(middleware.JWTAuth(jwtService))
	{
		authHandler.RegisterProtectedRoutes(protected)
		catalogHandler.RegisterProtectedRoutes(protected)
		reservationHandler.RegisterRoutes(protected)
		paymentHandler.RegisterRoutes(protected)

		admin := protected.Group("/admin")
		admin.Use(middleware.AdminOnly())
		{
			catalogHandler.RegisterAdminRoutes(admin)
		}
	}

	// Seed the admin; registration only hands out client and owner roles.
	hash, _ := bcrypt.GenerateFromPassword([]byte("admin-password"), bcrypt.DefaultCost)
	require.NoError(t, db.Create(&domain.User{
		Email:        "admin@test.com",
		PasswordHash: string(hash),
		Role:         domain.RoleAdmin,
		Name:         "Admin",
	}).Error)

	return &E2ETestSuite{router: r, db: db, gateway: gateway}
}

func (s *E2ETestSuite) makeRequest(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewBuffer(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) *TestResponse {
	var resp TestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp),
		"status=%d body=%s", w.Code, w.Body.String())
	return &resp
}

func (s *E2ETestSuite) register(t *testing.T, email, role string) string {
	w := s.makeRequest(t, "POST", "/api/v1/auth/register", map[string]interface{}{
		"email":    email,
		"password": "password123",
		"name":     "Test " + role,
		"role":     role,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := parseResponse(t, w)
	return resp.Data["token"].(string)
}

func (s *E2ETestSuite) login(t *testing.T, email, password string) string {
	w := s.makeRequest(t, "POST", "/api/v1/auth/login", map[string]interface{}{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := parseResponse(t, w)
	return resp.Data["token"].(string)
}

// listCar creates a car as the owner and validates it as the admin.
func (s *E2ETestSuite) listCar(t *testing.T, ownerToken, adminToken, plate string, rateCents int64) float64 {
	w := s.makeRequest(t, "POST", "/api/v1/cars", map[string]interface{}{
		"make":             "Toyota",
		"model":            "Corolla",
		"year":             2022,
		"license_plate":    plate,
		"daily_rate_cents": rateCents,
	}, ownerToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := parseResponse(t, w)
	car := resp.Data["car"].(map[string]interface{})
	carID := car["id"].(float64)
	require.False(t, car["is_validated"].(bool))

	w = s.makeRequest(t, "PATCH", fmt.Sprintf("/api/v1/admin/cars/%.0f/validation", carID),
		map[string]interface{}{"validated": true}, adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return carID
}

func TestFullBookingAndPaymentFlow(t *testing.T) {
	s := setupTestSuite(t)

	clientToken := s.register(t, "client@test.com", "client")
	ownerToken := s.register(t, "owner@test.com", "owner")
	adminToken := s.login(t, "admin@test.com", "admin-password")

	carID := s.listCar(t, ownerToken, adminToken, "KZ-001", 5000)

	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	end := start.Add(3 * 24 * time.Hour)

	// Create: 3 whole days at 50.00/day.
	w := s.makeRequest(t, "POST", "/api/v1/reservations", map[string]interface{}{
		"car_id":   carID,
		"start_at": start.Format(time.RFC3339),
		"end_at":   end.Format(time.RFC3339),
	}, clientToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := parseResponse(t, w)
	res := resp.Data["reservation"].(map[string]interface{})
	reservationID := res["id"].(string)
	assert.Equal(t, "PENDING", res["status"])
	assert.Equal(t, float64(15000), res["cost_cents"])
	assert.NotNil(t, res["hold_expires_at"])

	// Open the payment session.
	w = s.makeRequest(t, "POST", "/api/v1/payments/sessions", map[string]interface{}{
		"reservation_id": reservationID,
	}, clientToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp = parseResponse(t, w)
	session := resp.Data["session"].(map[string]interface{})
	sessionID := session["session_id"].(string)
	assert.Equal(t, float64(15000), session["amount_cents"])
	assert.Equal(t, "150.00", session["amount"])

	// Opening again reuses the same session.
	w = s.makeRequest(t, "POST", "/api/v1/payments/sessions", map[string]interface{}{
		"reservation_id": reservationID,
	}, clientToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp = parseResponse(t, w)
	assert.Equal(t, sessionID, resp.Data["session"].(map[string]interface{})["session_id"])

	// The open session cleared the hold.
	var stored domain.Reservation
	require.NoError(t, s.db.First(&stored, "id = ?", reservationID).Error)
	assert.Nil(t, stored.HoldExpiresAt)

	// Confirm: the fake gateway reports success, the reservation approves.
	w = s.makeRequest(t, "POST", "/api/v1/payments/confirm", map[string]interface{}{
		"session_id": sessionID,
	}, clientToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = parseResponse(t, w)
	assert.Equal(t, "APPROVED", resp.Data["reservation"].(map[string]interface{})["status"])

	// Confirming again is idempotent.
	w = s.makeRequest(t, "POST", "/api/v1/payments/confirm", map[string]interface{}{
		"session_id": sessionID,
	}, clientToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = parseResponse(t, w)
	assert.Equal(t, "APPROVED", resp.Data["reservation"].(map[string]interface{})["status"])

	// A second session for a paid reservation is refused.
	w = s.makeRequest(t, "POST", "/api/v1/payments/sessions", map[string]interface{}{
		"reservation_id": reservationID,
	}, clientToken)
	assert.Equal(t, http.StatusConflict, w.Code)

	// An overlapping window on the same car conflicts.
	otherToken := s.register(t, "client2@test.com", "client")
	w = s.makeRequest(t, "POST", "/api/v1/reservations", map[string]interface{}{
		"car_id":   carID,
		"start_at": start.Add(24 * time.Hour).Format(time.RFC3339),
		"end_at":   end.Add(24 * time.Hour).Format(time.RFC3339),
	}, otherToken)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	resp = parseResponse(t, w)
	assert.Equal(t, "WINDOW_CONFLICT", resp.Error.Code)

	// An adjacent window ([end, end+2d)) does not.
	w = s.makeRequest(t, "POST", "/api/v1/reservations", map[string]interface{}{
		"car_id":   carID,
		"start_at": end.Format(time.RFC3339),
		"end_at":   end.Add(2 * 24 * time.Hour).Format(time.RFC3339),
	}, otherToken)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestReservationRequiresValidatedCar(t *testing.T) {
	s := setupTestSuite(t)

	clientToken := s.register(t, "client@test.com", "client")
	ownerToken := s.register(t, "owner@test.com", "owner")

	w := s.makeRequest(t, "POST", "/api/v1/cars", map[string]interface{}{
		"make":             "Honda",
		"model":            "Civic",
		"license_plate":    "KZ-002",
		"daily_rate_cents": 4000,
	}, ownerToken)
	require.Equal(t, http.StatusCreated, w.Code)
	resp := parseResponse(t, w)
	carID := resp.Data["car"].(map[string]interface{})["id"].(float64)

	start := time.Now().UTC().Add(24 * time.Hour)
	w = s.makeRequest(t, "POST", "/api/v1/reservations", map[string]interface{}{
		"car_id":   carID,
		"start_at": start.Format(time.RFC3339),
		"end_at":   start.Add(48 * time.Hour).Format(time.RFC3339),
	}, clientToken)
	require.Equal(t, http.StatusConflict, w.Code)
	resp = parseResponse(t, w)
	assert.Equal(t, "NOT_BOOKABLE", resp.Error.Code)
}

func TestWebhookDrivesApproval(t *testing.T) {
	s := setupTestSuite(t)

	clientToken := s.register(t, "client@test.com", "client")
	ownerToken := s.register(t, "owner@test.com", "owner")
	adminToken := s.login(t, "admin@test.com", "admin-password")
	carID := s.listCar(t, ownerToken, adminToken, "KZ-003", 5000)

	start := time.Now().UTC().Add(24 * time.Hour)
	w := s.makeRequest(t, "POST", "/api/v1/reservations", map[string]interface{}{
		"car_id":   carID,
		"start_at": start.Format(time.RFC3339),
		"end_at":   start.Add(48 * time.Hour).Format(time.RFC3339),
	}, clientToken)
	require.Equal(t, http.StatusCreated, w.Code)
	resp := parseResponse(t, w)
	reservationID := resp.Data["reservation"].(map[string]interface{})["id"].(string)

	w = s.makeRequest(t, "POST", "/api/v1/payments/sessions", map[string]interface{}{
		"reservation_id": reservationID,
	}, clientToken)
	require.Equal(t, http.StatusCreated, w.Code)

	var sess domain.PaymentSession
	require.NoError(t, s.db.First(&sess, "reservation_id = ?", reservationID).Error)

	payload := []byte(fmt.Sprintf(
		`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":%q}}}`, sess.ExternalRef))

	// Unsigned delivery fails closed.
	req := httptest.NewRequest("POST", "/api/v1/webhooks/gateway", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Properly signed delivery completes the payment and approves.
	deliver := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/v1/webhooks/gateway", bytes.NewReader(payload))
		req.Header.Set("Stripe-Signature", payment.SignPayload(payload, webhookSecret, time.Now()))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec
	}
	rec = deliver()
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res domain.Reservation
	require.NoError(t, s.db.First(&res, "id = ?", reservationID).Error)
	assert.Equal(t, domain.ReservationApproved, res.Status)

	require.NoError(t, s.db.First(&sess, "id = ?", sess.ID).Error)
	assert.Equal(t, domain.PaymentSessionCompleted, sess.Status)

	// Redelivery of the same event changes nothing.
	rec = deliver()
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, s.db.First(&res, "id = ?", reservationID).Error)
	assert.Equal(t, domain.ReservationApproved, res.Status)
}

func TestOwnerAvailabilityToggleGatesNewReservations(t *testing.T) {
	s := setupTestSuite(t)

	clientToken := s.register(t, "client@test.com", "client")
	ownerToken := s.register(t, "owner@test.com", "owner")
	adminToken := s.login(t, "admin@test.com", "admin-password")
	carID := s.listCar(t, ownerToken, adminToken, "KZ-004", 5000)

	w := s.makeRequest(t, "PATCH", fmt.Sprintf("/api/v1/cars/%.0f/availability", carID),
		map[string]interface{}{"available": false}, ownerToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	start := time.Now().UTC().Add(24 * time.Hour)
	w = s.makeRequest(t, "POST", "/api/v1/reservations", map[string]interface{}{
		"car_id":   carID,
		"start_at": start.Format(time.RFC3339),
		"end_at":   start.Add(48 * time.Hour).Format(time.RFC3339),
	}, clientToken)
	require.Equal(t, http.StatusConflict, w.Code)
	resp := parseResponse(t, w)
	assert.Equal(t, "NOT_BOOKABLE", resp.Error.Code)

	// Another user may not flip the owner's listing.
	w = s.makeRequest(t, "PATCH", fmt.Sprintf("/api/v1/cars/%.0f/availability", carID),
		map[string]interface{}{"available": true}, clientToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCancelReleasesWindow(t *testing.T) {
	s := setupTestSuite(t)

	clientToken := s.register(t, "client@test.com", "client")
	ownerToken := s.register(t, "owner@test.com", "owner")
	adminToken := s.login(t, "admin@test.com", "admin-password")
	carID := s.listCar(t, ownerToken, adminToken, "KZ-005", 5000)

	start := time.Now().UTC().Add(24 * time.Hour)
	body := map[string]interface{}{
		"car_id":   carID,
		"start_at": start.Format(time.RFC3339),
		"end_at":   start.Add(48 * time.Hour).Format(time.RFC3339),
	}

	w := s.makeRequest(t, "POST", "/api/v1/reservations", body, clientToken)
	require.Equal(t, http.StatusCreated, w.Code)
	resp := parseResponse(t, w)
	reservationID := resp.Data["reservation"].(map[string]interface{})["id"].(string)

	w = s.makeRequest(t, "POST", "/api/v1/reservations/"+reservationID+"/cancel",
		map[string]interface{}{"reason": "changed plans"}, clientToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The window is free again for someone else.
	otherToken := s.register(t, "client2@test.com", "client")
	w = s.makeRequest(t, "POST", "/api/v1/reservations", body, otherToken)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Cancelling twice is a conflict.
	w = s.makeRequest(t, "POST", "/api/v1/reservations/"+reservationID+"/cancel", nil, clientToken)
	assert.Equal(t, http.StatusConflict, w.Code)
}
