package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/cinema-booking-core/internal/handler"
	"github.com/iliyamo/cinema-booking-core/internal/middleware"
	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/repository"
	"github.com/iliyamo/cinema-booking-core/internal/service"
	"github.com/iliyamo/cinema-booking-core/internal/utils"
)

const testSecret = "test-secret"

type api struct {
	e     *echo.Echo
	clock *clockwork.FakeClock
}

func newAPI(t *testing.T) *api {
	t.Helper()
	log := zaptest.NewLogger(t)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	store := repository.NewMemoryStore()
	opts := []service.Option{service.WithClock(clock), service.WithLogger(log)}

	reaper := service.NewReaper(store, opts...)
	holds := service.NewHoldManager(store, reaper, opts...)
	inv := service.NewInventory(store, reaper, opts...)
	bookings := service.NewBookings(store, opts...)
	payments := service.NewPayments(store, opts...)

	e := echo.New()
	e.Validator = handler.NewValidator()
	Register(e, Handlers{
		Holds:    handler.NewHoldHandler(holds, inv, log),
		Bookings: handler.NewBookingHandler(bookings, log),
		Payments: handler.NewPaymentHandler(payments, bookings, log),
		Admin:    handler.NewAdminHandler(inv, log),
	}, Middleware{JWTSecret: testSecret})

	require.NoError(t, inv.Schedule(context.Background(), 5, []model.SeatSpec{
		{SeatID: 1, SeatTypeID: 1, PriceCents: 1500},
		{SeatID: 2, SeatTypeID: 1, PriceCents: 1500},
		{SeatID: 3, SeatTypeID: 2, PriceCents: 2000},
	}))
	return &api{e: e, clock: clock}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(testSecret, userID, role, time.Hour)
	require.NoError(t, err)
	return tok.Token
}

// do sends a request and decodes a JSON response body into a map.
func (a *api) do(t *testing.T, method, path, tok, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if tok != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	out := map[string]interface{}{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestPublicRoutes(t *testing.T) {
	a := newAPI(t)

	code, body := a.do(t, http.MethodGet, "/v1/shows/5/seats", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["seats"], 3)

	code, body = a.do(t, http.MethodGet, "/v1/shows/6/seats", "", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", body["error"])

	code, _ = a.do(t, http.MethodGet, "/v1/shows/abc/seats", "", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = a.do(t, http.MethodGet, "/v1/payment-methods", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["methods"], 3)
}

func TestAuthRequired(t *testing.T) {
	a := newAPI(t)

	code, body := a.do(t, http.MethodPost, "/v1/shows/5/hold", "", `{"seat_ids":[1]}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "missing bearer token", body["error"])

	code, body = a.do(t, http.MethodPost, "/v1/shows/5/hold", "garbage", `{"seat_ids":[1]}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid token", body["error"])

	code, _ = a.do(t, http.MethodPost, "/v1/shows/5/hold", token(t, "u1", "GUEST"), `{"seat_ids":[1]}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(t, http.MethodGet, "/v1/admin/payments/summary", token(t, "u1", middleware.RoleCustomer), "")
	assert.Equal(t, http.StatusForbidden, code)
}

func TestHoldEndpoints(t *testing.T) {
	a := newAPI(t)
	alice := token(t, "alice", middleware.RoleCustomer)
	bob := token(t, "bob", middleware.RoleCustomer)

	code, body := a.do(t, http.MethodPost, "/v1/shows/5/hold", alice, `{"seat_ids":[1,2]}`)
	require.Equal(t, http.StatusCreated, code)
	assert.NotEmpty(t, body["hold_id"])
	assert.Equal(t, "2026-03-10T09:02:00Z", body["hold_until"])

	code, body = a.do(t, http.MethodPost, "/v1/shows/5/hold", bob, `{"seat_ids":[2,3]}`)
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "seat_unavailable", body["error"])
	assert.Equal(t, []interface{}{float64(2)}, body["unavailable"])

	code, body = a.do(t, http.MethodPost, "/v1/shows/5/hold", bob, `{"seat_ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_argument", body["error"])

	code, _ = a.do(t, http.MethodPost, "/v1/shows/5/hold", bob, `{"seat_ids":`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(t, http.MethodDelete, "/v1/shows/5/hold", alice, `{"seat_ids":[2]}`)
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = a.do(t, http.MethodPost, "/v1/shows/5/hold", bob, `{"seat_ids":[2,3]}`)
	assert.Equal(t, http.StatusCreated, code)
}

// Another customer can neither free nor book seats alice holds, and alice's
// booking still pays through.
func TestHoldsScopedToOwner(t *testing.T) {
	a := newAPI(t)
	alice := token(t, "alice", middleware.RoleCustomer)
	bob := token(t, "bob", middleware.RoleCustomer)

	code, body := a.do(t, http.MethodPost, "/v1/shows/5/hold", alice, `{"seat_ids":[1]}`)
	require.Equal(t, http.StatusCreated, code)
	holdID := body["hold_id"].(string)
	code, body = a.do(t, http.MethodPost, "/v1/bookings", alice, `{"hold_id":"`+holdID+`"}`)
	require.Equal(t, http.StatusCreated, code)
	bookingPath := "/v1/bookings/" + jsonNumber(body["booking_id"].(float64))

	code, body = a.do(t, http.MethodDelete, "/v1/shows/5/hold", bob, `{"seat_ids":[1]}`)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", body["error"])
	assert.Equal(t, []interface{}{float64(1)}, body["seat_ids"])

	code, _ = a.do(t, http.MethodDelete, "/v1/holds/"+holdID, bob, "")
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(t, http.MethodPost, "/v1/bookings", bob, `{"hold_id":"`+holdID+`"}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = a.do(t, http.MethodPost, "/v1/shows/5/hold", bob, `{"seat_ids":[1]}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "seat_unavailable", body["error"])

	// alice cannot drop a booked hold seat by seat either
	code, body = a.do(t, http.MethodDelete, "/v1/shows/5/hold", alice, `{"seat_ids":[1]}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "invalid_state", body["error"])

	_, body = a.do(t, http.MethodPost, bookingPath+"/payments", alice, `{"method_id":1}`)
	payPath := "/v1/payments/" + jsonNumber(body["payment_id"].(float64))
	code, body = a.do(t, http.MethodPost, payPath+"/confirm", alice, `{}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "PAID", body["status"])
}

func TestAdminForceRelease(t *testing.T) {
	a := newAPI(t)
	alice := token(t, "alice", middleware.RoleCustomer)
	bob := token(t, "bob", middleware.RoleCustomer)
	admin := token(t, "root", middleware.RoleAdmin)

	code, _ := a.do(t, http.MethodPost, "/v1/shows/5/hold", alice, `{"seat_ids":[2]}`)
	require.Equal(t, http.StatusCreated, code)

	code, _ = a.do(t, http.MethodDelete, "/v1/admin/shows/5/hold", bob, `{"seat_ids":[2]}`)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(t, http.MethodDelete, "/v1/admin/shows/5/hold", admin, `{"seat_ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(t, http.MethodDelete, "/v1/admin/shows/5/hold", admin, `{"seat_ids":[2]}`)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = a.do(t, http.MethodPost, "/v1/shows/5/hold", bob, `{"seat_ids":[2]}`)
	assert.Equal(t, http.StatusCreated, code)
}

func TestReleaseHoldEndpoint(t *testing.T) {
	a := newAPI(t)
	alice := token(t, "alice", middleware.RoleCustomer)
	bob := token(t, "bob", middleware.RoleCustomer)
	admin := token(t, "root", middleware.RoleAdmin)

	_, body := a.do(t, http.MethodPost, "/v1/shows/5/hold", alice, `{"seat_ids":[1,3]}`)
	holdID := body["hold_id"].(string)

	code, _ := a.do(t, http.MethodDelete, "/v1/holds/"+holdID, bob, "")
	require.Equal(t, http.StatusForbidden, code)

	code, body = a.do(t, http.MethodDelete, "/v1/holds/"+holdID, alice, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []interface{}{float64(1), float64(3)}, body["released"])

	code, _ = a.do(t, http.MethodDelete, "/v1/holds/unknown", alice, "")
	assert.Equal(t, http.StatusNotFound, code)

	_, body = a.do(t, http.MethodPost, "/v1/shows/5/hold", alice, `{"seat_ids":[2]}`)
	code, body = a.do(t, http.MethodDelete, "/v1/holds/"+body["hold_id"].(string), admin, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []interface{}{float64(2)}, body["released"])
}

func TestBookingEndpoints(t *testing.T) {
	a := newAPI(t)
	alice := token(t, "alice", middleware.RoleCustomer)
	bob := token(t, "bob", middleware.RoleCustomer)
	admin := token(t, "root", middleware.RoleAdmin)

	_, body := a.do(t, http.MethodPost, "/v1/shows/5/hold", alice, `{"seat_ids":[1,2],"ttl_seconds":30}`)
	holdID := body["hold_id"].(string)

	code, body := a.do(t, http.MethodPost, "/v1/bookings", alice, `{"hold_id":"`+holdID+`"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "CREATED", body["status"])
	assert.Equal(t, float64(3000), body["total_cents"])
	id := body["booking_id"].(float64)
	path := "/v1/bookings/" + jsonNumber(id)

	code, body = a.do(t, http.MethodGet, path, alice, "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["seats"], 2)

	code, body = a.do(t, http.MethodGet, path, bob, "")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", body["error"])

	code, _ = a.do(t, http.MethodGet, path, admin, "")
	assert.Equal(t, http.StatusOK, code)

	code, body = a.do(t, http.MethodGet, "/v1/my-bookings", alice, "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["bookings"], 1)
	code, body = a.do(t, http.MethodGet, "/v1/my-bookings", bob, "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["bookings"])

	code, _ = a.do(t, http.MethodDelete, path, bob, "")
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(t, http.MethodDelete, path, alice, "")
	assert.Equal(t, http.StatusNoContent, code)
	code, body = a.do(t, http.MethodDelete, path, alice, "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "invalid_transition", body["error"])
	assert.Equal(t, "CANCELLED", body["status"])
}

func TestBookingFromLapsedHold(t *testing.T) {
	a := newAPI(t)
	alice := token(t, "alice", middleware.RoleCustomer)

	_, body := a.do(t, http.MethodPost, "/v1/shows/5/hold", alice, `{"seat_ids":[3],"ttl_seconds":10}`)
	holdID := body["hold_id"].(string)
	a.clock.Advance(11 * time.Second)

	code, body := a.do(t, http.MethodPost, "/v1/bookings", alice, `{"hold_id":"`+holdID+`"}`)
	assert.Equal(t, http.StatusGone, code)
	assert.Equal(t, "hold_expired", body["error"])

	code, _ = a.do(t, http.MethodPost, "/v1/bookings", alice, `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPaymentFlow(t *testing.T) {
	a := newAPI(t)
	alice := token(t, "alice", middleware.RoleCustomer)
	bob := token(t, "bob", middleware.RoleCustomer)
	admin := token(t, "root", middleware.RoleAdmin)

	_, body := a.do(t, http.MethodPost, "/v1/shows/5/hold", alice, `{"seat_ids":[1,2]}`)
	_, body = a.do(t, http.MethodPost, "/v1/bookings", alice, `{"hold_id":"`+body["hold_id"].(string)+`"}`)
	bookingPath := "/v1/bookings/" + jsonNumber(body["booking_id"].(float64))

	code, _ := a.do(t, http.MethodPost, bookingPath+"/payments", alice, `{"method_id":0}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = a.do(t, http.MethodPost, bookingPath+"/payments", bob, `{"method_id":1}`)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(t, http.MethodPost, bookingPath+"/payments", alice, `{"method_id":99}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = a.do(t, http.MethodPost, bookingPath+"/payments", alice, `{"method_id":1}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "INV-20260310-00001", body["invoice_no"])
	assert.Equal(t, float64(3000), body["amount_cents"])
	assert.Equal(t, "PENDING", body["status"])
	payPath := "/v1/payments/" + jsonNumber(body["payment_id"].(float64))

	code, _ = a.do(t, http.MethodPost, payPath+"/confirm", bob, `{}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = a.do(t, http.MethodPost, payPath+"/confirm", alice, `{"provider_txn_id":"txn-1"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "PAID", body["status"])
	assert.Equal(t, "txn-1", body["provider_txn_id"])

	code, body = a.do(t, http.MethodPost, payPath+"/confirm", alice, `{}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "invalid_state", body["error"])

	_, body = a.do(t, http.MethodGet, "/v1/shows/5/seats", "", "")
	seats := body["seats"].([]interface{})
	assert.Equal(t, "BOOKED", seats[0].(map[string]interface{})["status"])

	code, _ = a.do(t, http.MethodPost, "/v1/admin/payments/"+jsonNumber(1)+"/refund", alice, "")
	assert.Equal(t, http.StatusForbidden, code)
	code, body = a.do(t, http.MethodPost, "/v1/admin/payments/1/refund", admin, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "CANCELLED", body["status"])

	code, body = a.do(t, http.MethodGet, "/v1/admin/payments/summary?days=7", admin, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, float64(1), body["cancelled"])
	assert.Len(t, body["revenue"], 7)

	code, _ = a.do(t, http.MethodGet, "/v1/admin/payments/summary?days=x", admin, "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPaymentLapsedHold(t *testing.T) {
	a := newAPI(t)
	alice := token(t, "alice", middleware.RoleCustomer)

	_, body := a.do(t, http.MethodPost, "/v1/shows/5/hold", alice, `{"seat_ids":[3],"ttl_seconds":20}`)
	_, body = a.do(t, http.MethodPost, "/v1/bookings", alice, `{"hold_id":"`+body["hold_id"].(string)+`"}`)
	bookingPath := "/v1/bookings/" + jsonNumber(body["booking_id"].(float64))
	_, body = a.do(t, http.MethodPost, bookingPath+"/payments", alice, `{"method_id":2}`)
	payPath := "/v1/payments/" + jsonNumber(body["payment_id"].(float64))

	a.clock.Advance(time.Minute)
	code, body := a.do(t, http.MethodPost, payPath+"/confirm", alice, `{}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "seat_no_longer_held", body["error"])

	code, body = a.do(t, http.MethodPost, payPath+"/fail", alice, `{"reason":"timeout"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "FAILED", body["status"])

	code, _ = a.do(t, http.MethodPost, "/v1/payments/999/cancel", alice, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAdminSchedule(t *testing.T) {
	a := newAPI(t)
	admin := token(t, "root", middleware.RoleAdmin)
	alice := token(t, "alice", middleware.RoleCustomer)
	seats := `{"seats":[{"seat_id":1,"seat_type_id":1,"price_cents":900}]}`

	code, _ := a.do(t, http.MethodPost, "/v1/admin/shows/7/inventory", alice, seats)
	assert.Equal(t, http.StatusForbidden, code)

	code, body := a.do(t, http.MethodPost, "/v1/admin/shows/7/inventory", admin, seats)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, float64(1), body["seats"])

	code, body = a.do(t, http.MethodPost, "/v1/admin/shows/7/inventory", admin, seats)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", body["error"])

	code, _ = a.do(t, http.MethodPost, "/v1/admin/shows/8/inventory", admin, `{"seats":[{"seat_id":0,"seat_type_id":1}]}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func jsonNumber(f float64) string {
	b, _ := json.Marshal(uint64(f))
	return string(b)
}
