package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/service"
)

// AdminHandler serves show inventory scheduling.  The catalog calls it once
// per show with the enabled seats and their prices.
type AdminHandler struct {
	Inventory *service.Inventory
	Log       *zap.Logger
}

// NewAdminHandler panics on a nil service.
func NewAdminHandler(inv *service.Inventory, log *zap.Logger) *AdminHandler {
	if inv == nil {
		panic("nil service passed to NewAdminHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{Inventory: inv, Log: log}
}

type scheduleRequest struct {
	Seats []model.SeatSpec `json:"seats" validate:"required,min=1,dive"`
}

// Schedule handles POST /v1/admin/shows/:id/inventory.  Every seat is
// created AVAILABLE at the price given for it.  Scheduling a show twice gives
// 409 and leaves the first inventory untouched.
func (h *AdminHandler) Schedule(c echo.Context) error {
	showID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid show id")
	}
	var req scheduleRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.Inventory.Schedule(c.Request().Context(), showID, req.Seats); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"show_id": showID, "seats": len(req.Seats)})
}
