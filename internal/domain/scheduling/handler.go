package scheduling

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/chat-incom/agendamento/internal/domain/clinic"
	"github.com/chat-incom/agendamento/internal/platform/auth"
	"github.com/chat-incom/agendamento/pkg/pagination"
)

const (
	KindCommitInProgress = "commit_in_progress"
	KindFlowCommitted    = "flow_committed"
)

type Handler struct {
	svc   *Service
	flows *FlowStore
}

func NewHandler(svc *Service, flows *FlowStore) *Handler {
	return &Handler{svc: svc, flows: flows}
}

// RegisterRoutes mounts the booking API on api and appointment
// administration on admin.
func (h *Handler) RegisterRoutes(api *echo.Group, admin *echo.Group) {
	api.GET("/availability/dates", h.GetAvailableDates)
	api.GET("/availability/slots", h.GetAvailableSlots)
	api.POST("/bookings", h.SubmitBooking)

	s := api.Group("/booking-sessions")
	s.POST("", h.StartFlow)
	s.GET("/:id", h.GetFlow)
	s.PUT("/:id/selection", h.SelectSlot)
	s.PUT("/:id/patient", h.SetPatient)
	s.POST("/:id/continue", h.Continue)
	s.POST("/:id/back", h.Back)
	s.POST("/:id/confirm", h.Confirm)

	a := admin.Group("/appointments", auth.RequireRole(auth.RoleAdmin))
	a.GET("", h.ListAppointments)
	a.GET("/:id", h.GetAppointment)
	a.POST("/:id/complete", h.CompleteAppointment)
	a.POST("/:id/cancel", h.CancelAppointment)
}

// httpError maps booking errors, falling back to the clinic mapping.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrCommitInProgress):
		return echo.NewHTTPError(http.StatusConflict, clinic.ErrorBody{Kind: KindCommitInProgress, Message: err.Error(), Retry: true})
	case errors.Is(err, ErrFlowCommitted):
		return echo.NewHTTPError(http.StatusConflict, clinic.ErrorBody{Kind: KindFlowCommitted, Message: err.Error()})
	}
	he := clinic.HTTPError(err)
	var conflict *SlotConflict
	if errors.As(err, &conflict) {
		body := he.Message.(clinic.ErrorBody)
		body.Slots = conflict.Slots
		he.Message = body
	}
	return he
}

func scopeFromQuery(c echo.Context) (Scope, error) {
	var s Scope
	if raw := c.QueryParam("doctor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return s, echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		s.DoctorID = id
	}
	if raw := c.QueryParam("specialty_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return s, echo.NewHTTPError(http.StatusBadRequest, "invalid specialty_id")
		}
		s.SpecialtyID = id
	}
	return s, nil
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Availability --

func (h *Handler) GetAvailableDates(c echo.Context) error {
	scope, err := scopeFromQuery(c)
	if err != nil {
		return err
	}
	lookahead := 0
	if raw := c.QueryParam("lookahead"); raw != "" {
		if lookahead, err = strconv.Atoi(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid lookahead")
		}
	}
	dates, err := h.svc.GetAvailableDates(c.Request().Context(), scope, lookahead)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"dates": dates})
}

func (h *Handler) GetAvailableSlots(c echo.Context) error {
	scope, err := scopeFromQuery(c)
	if err != nil {
		return err
	}
	slots, err := h.svc.GetAvailableSlots(c.Request().Context(), scope, c.QueryParam("date"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"date": c.QueryParam("date"), "slots": slots})
}

func (h *Handler) SubmitBooking(c echo.Context) error {
	var req BookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	booking, err := h.svc.SubmitBooking(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, booking)
}

// -- Booking sessions --

func (h *Handler) flow(c echo.Context) (*Flow, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	f, err := h.flows.Get(id)
	if err != nil {
		return nil, httpError(err)
	}
	return f, nil
}

func (h *Handler) StartFlow(c echo.Context) error {
	var scope Scope
	if err := c.Bind(&scope); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := h.svc.StartFlow(c.Request().Context(), scope)
	if err != nil {
		return httpError(err)
	}
	h.flows.Put(f)
	return c.JSON(http.StatusCreated, f.View())
}

func (h *Handler) GetFlow(c echo.Context) error {
	f, err := h.flow(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, f.View())
}

type selectionRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func (h *Handler) SelectSlot(c echo.Context) error {
	f, err := h.flow(c)
	if err != nil {
		return err
	}
	var req selectionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	view, err := f.Select(req.Date, req.Time)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

type patientRequest struct {
	Patient     clinic.PatientInfo `json:"patient"`
	InsuranceID *uuid.UUID         `json:"insurance_id,omitempty"`
}

func (h *Handler) SetPatient(c echo.Context) error {
	f, err := h.flow(c)
	if err != nil {
		return err
	}
	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	view, err := f.SetPatient(req.Patient, req.InsuranceID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) Continue(c echo.Context) error {
	f, err := h.flow(c)
	if err != nil {
		return err
	}
	view, err := f.Continue()
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) Back(c echo.Context) error {
	f, err := h.flow(c)
	if err != nil {
		return err
	}
	view, err := f.Back()
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) Confirm(c echo.Context) error {
	f, err := h.flow(c)
	if err != nil {
		return err
	}
	view, err := h.svc.ConfirmFlow(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, view)
}

// -- Appointment administration --

func (h *Handler) ListAppointments(c echo.Context) error {
	f := clinic.AppointmentFilter{
		From:   c.QueryParam("from"),
		To:     c.QueryParam("to"),
		Status: clinic.AppointmentStatus(c.QueryParam("status")),
	}
	if raw := c.QueryParam("doctor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		f.DoctorID = &id
	}
	items, err := h.svc.ListAppointments(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(items, pagination.FromContext(c)))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) CompleteAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.CompleteAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.CancelAppointment(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}
