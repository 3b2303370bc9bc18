package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-core/internal/middleware"
	"github.com/iliyamo/cinema-booking-core/internal/service"
)

// HoldHandler serves seat holds and the public seat map.  The hold routes
// assume JWTAuth and RequireRole already ran, so middleware.UserID is set.
// A customer may only release or book holds they placed themselves; the
// operator override lives under /v1/admin.
type HoldHandler struct {
	Holds     *service.HoldManager
	Inventory *service.Inventory
	Log       *zap.Logger
}

// NewHoldHandler panics on a nil service; wiring errors surface at startup.
func NewHoldHandler(holds *service.HoldManager, inv *service.Inventory, log *zap.Logger) *HoldHandler {
	if holds == nil || inv == nil {
		panic("nil service passed to NewHoldHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HoldHandler{Holds: holds, Inventory: inv, Log: log}
}

type acquireHoldRequest struct {
	SeatIDs    []uint64 `json:"seat_ids" validate:"required,min=1,dive,gt=0"`
	TTLSeconds int      `json:"ttl_seconds" validate:"gte=0"`
}

type releaseSeatsRequest struct {
	SeatIDs []uint64 `json:"seat_ids" validate:"required,min=1,dive,gt=0"`
}

// AcquireHold handles POST /v1/shows/:id/hold.  The body carries a
// "seat_ids" array and an optional "ttl_seconds"; zero means the default
// hold time and anything above the cap is clamped.  All requested seats are
// held for the caller or none are.  On success it returns 201 with the hold
// id and the instant the hold lapses; on 409 the body lists the seats that
// could not be taken.
func (h *HoldHandler) AcquireHold(c echo.Context) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "missing user"})
	}
	showID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid show id")
	}
	var req acquireHoldRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second
	hold, err := h.Holds.Acquire(c.Request().Context(), userID, showID, req.SeatIDs, ttl)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"hold_id":    hold.ID,
		"show_id":    hold.ShowID,
		"seat_ids":   hold.SeatIDs,
		"hold_until": hold.HoldUntil.Format(time.RFC3339),
	})
}

// ReleaseSeats handles DELETE /v1/shows/:id/hold.  Only seats held by the
// caller are freed.  If any requested seat sits under someone else's live
// hold the call fails with 403 and frees nothing, and seats already booked
// give 409.  Seats that are free or whose hold lapsed are ignored, so the
// call is safe to repeat.
func (h *HoldHandler) ReleaseSeats(c echo.Context) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "missing user"})
	}
	showID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid show id")
	}
	var req releaseSeatsRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if _, err := h.Holds.ReleaseOwn(c.Request().Context(), userID, showID, req.SeatIDs); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ForceRelease handles DELETE /v1/admin/shows/:id/hold, the operator
// override that frees HELD seats whoever holds them.
func (h *HoldHandler) ForceRelease(c echo.Context) error {
	showID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid show id")
	}
	var req releaseSeatsRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.Holds.Release(c.Request().Context(), showID, req.SeatIDs); err != nil {
		return writeError(c, h.Log, err)
	}
	h.Log.Info("seats force released",
		zap.String("admin", middleware.UserID(c)),
		zap.Uint64("show_id", showID),
		zap.Uint64s("seat_ids", req.SeatIDs))
	return c.NoContent(http.StatusNoContent)
}

// ReleaseHold handles DELETE /v1/holds/:id and reports the seats it freed.
// The hold must belong to the caller unless the caller is an admin.
func (h *HoldHandler) ReleaseHold(c echo.Context) error {
	holdID := c.Param("id")
	if holdID == "" {
		return badRequest(c, "invalid hold id")
	}
	ctx := c.Request().Context()
	hold, err := h.Holds.Get(ctx, holdID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	// owner is fixed at creation, so checking before the release is safe
	if !middleware.IsAdmin(c) && hold.UserID != middleware.UserID(c) {
		return forbidden(c)
	}
	released, err := h.Holds.ReleaseHold(ctx, holdID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if released == nil {
		released = []uint64{}
	}
	return c.JSON(http.StatusOK, echo.Map{"hold_id": holdID, "released": released})
}

// SeatMap handles GET /v1/shows/:id/seats.  It is public and always read
// live: a lapsed hold shows as AVAILABLE even before the reaper runs.
func (h *HoldHandler) SeatMap(c echo.Context) error {
	showID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid show id")
	}
	seats, err := h.Inventory.SeatMap(c.Request().Context(), showID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"show_id": showID, "seats": seats})
}
