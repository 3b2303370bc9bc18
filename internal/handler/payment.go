package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/service"
)

// PaymentHandler serves payment attempts, the refund endpoint and the
// payment report.  Customer routes act only on payments whose booking
// belongs to the caller; ownership is checked before any state change so a
// 403 never leaves a side effect behind.  The provider itself is out of
// process: whoever talks to it reports the outcome through Confirm, Fail or
// CancelPending.
type PaymentHandler struct {
	Payments *service.Payments
	Bookings *service.Bookings
	Log      *zap.Logger
}

// NewPaymentHandler panics on a nil service.
func NewPaymentHandler(payments *service.Payments, bookings *service.Bookings, log *zap.Logger) *PaymentHandler {
	if payments == nil || bookings == nil {
		panic("nil service passed to NewPaymentHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentHandler{Payments: payments, Bookings: bookings, Log: log}
}

type initiatePaymentRequest struct {
	MethodID uint64 `json:"method_id" validate:"required,gt=0"`
}

type confirmPaymentRequest struct {
	ProviderTxnID string `json:"provider_txn_id" validate:"omitempty,max=128"`
}

type failPaymentRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=255"`
}

// Initiate handles POST /v1/bookings/:id/payments.  The body names an
// active payment method.  The booking must be CREATED and must not already
// have a PAID payment.  On success it returns 201 with the new invoice
// number, which is unique per day and allocated in the same transaction as
// the payment row.
func (h *PaymentHandler) Initiate(c echo.Context) error {
	bookingID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	var req initiatePaymentRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	// ownership first: a stranger must not learn whether the booking is payable
	if _, ok, err := ownedBooking(c, h.Bookings, h.Log, bookingID); !ok {
		return err
	}
	pay, err := h.Payments.Initiate(c.Request().Context(), bookingID, req.MethodID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"payment_id":   pay.ID,
		"booking_id":   pay.BookingID,
		"invoice_no":   pay.InvoiceNo,
		"amount_cents": pay.AmountCents,
		"status":       pay.Status,
	})
}

// Confirm handles POST /v1/payments/:id/confirm.  409 seat_no_longer_held
// means the hold lapsed during payment and nothing was changed.
func (h *PaymentHandler) Confirm(c echo.Context) error {
	var req confirmPaymentRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	pay, ok, err := h.ownedPayment(c)
	if !ok {
		return err
	}
	if err := h.Payments.Confirm(c.Request().Context(), pay.ID, req.ProviderTxnID); err != nil {
		return writeError(c, h.Log, err)
	}
	return h.reply(c, pay.ID)
}

// CancelPending handles POST /v1/payments/:id/cancel.  The booking stays
// CREATED so the customer can try another method while the hold lasts.
func (h *PaymentHandler) CancelPending(c echo.Context) error {
	pay, ok, err := h.ownedPayment(c)
	if !ok {
		return err
	}
	if err := h.Payments.CancelPending(c.Request().Context(), pay.ID); err != nil {
		return writeError(c, h.Log, err)
	}
	return h.reply(c, pay.ID)
}

// Fail handles POST /v1/payments/:id/fail.  The reason is only logged.
func (h *PaymentHandler) Fail(c echo.Context) error {
	var req failPaymentRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	pay, ok, err := h.ownedPayment(c)
	if !ok {
		return err
	}
	if err := h.Payments.Fail(c.Request().Context(), pay.ID, req.Reason); err != nil {
		return writeError(c, h.Log, err)
	}
	return h.reply(c, pay.ID)
}

// Refund handles POST /v1/admin/payments/:id/refund.  It cancels a PAID
// payment together with its booking and returns the seats to sale in one
// transaction; the refund event is published after commit.
func (h *PaymentHandler) Refund(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid payment id")
	}
	if err := h.Payments.CancelPaid(c.Request().Context(), id); err != nil {
		return writeError(c, h.Log, err)
	}
	return h.reply(c, id)
}

// Methods handles GET /v1/payment-methods.
func (h *PaymentHandler) Methods(c echo.Context) error {
	methods, err := h.Payments.Methods(c.Request().Context())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if methods == nil {
		methods = []model.PaymentMethod{}
	}
	return c.JSON(http.StatusOK, echo.Map{"methods": methods})
}

// Summary handles GET /v1/admin/payments/summary?days=&method_id=.
// days defaults to 30 and method_id to every method.  The route sits behind
// the response cache, so figures may trail writes by the cache TTL.
func (h *PaymentHandler) Summary(c echo.Context) error {
	var f service.SummaryFilter
	if v := c.QueryParam("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return badRequest(c, "invalid days")
		}
		f.Days = n
	}
	if v := c.QueryParam("method_id"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return badRequest(c, "invalid method_id")
		}
		f.MethodID = n
	}
	sum, err := h.Payments.Summary(c.Request().Context(), f)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, sum)
}

// ownedPayment loads the payment named by the :id path parameter and checks
// that its booking belongs to the caller.  When ok is false the response has
// been written and err is its result.
func (h *PaymentHandler) ownedPayment(c echo.Context) (pay model.Payment, ok bool, err error) {
	id, valid := pathID(c, "id")
	if !valid {
		return pay, false, badRequest(c, "invalid payment id")
	}
	pay, err = h.Payments.Get(c.Request().Context(), id)
	if err != nil {
		return pay, false, writeError(c, h.Log, err)
	}
	if _, ok, err := ownedBooking(c, h.Bookings, h.Log, pay.BookingID); !ok {
		return pay, false, err
	}
	return pay, true, nil
}

// reply writes the payment's current state.
func (h *PaymentHandler) reply(c echo.Context, id uint64) error {
	pay, err := h.Payments.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, pay)
}
